package broker

import (
	"context"
)

// Message is a raw payload read from a topic. Payloads are forwarded
// verbatim on requeue, so the broker layer never reinterprets them.
type Message struct {
	Key   []byte
	Value []byte
}

type Producer interface {
	Publish(ctx context.Context, topic string, key []byte, value []byte) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

// HandlerFunc processes one message. Returning a retry.FatalError skips
// in-process retries and routes the message straight to the poison topic.
type HandlerFunc func(ctx context.Context, msg Message) error
