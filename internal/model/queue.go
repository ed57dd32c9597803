package model

import "encoding/json"

// The generation queue carries the full list of events backing a receipt:
// a single-element list for ordinary payments, the complete cart for
// multi-notice ones. Messages are requeued verbatim on retry, so the
// encoding must round-trip without loss.

// EncodeQueueMessage serializes the events for the generation queue.
func EncodeQueueMessage(events []BizEvent) ([]byte, error) {
	return json.Marshal(events)
}

// DecodeQueueMessage parses a generation queue payload.
func DecodeQueueMessage(data []byte) ([]BizEvent, error) {
	var events []BizEvent
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// QueueMessageEventID resolves the receipt lookup key for a queue message:
// the transaction identifier for carts, the event identifier otherwise.
func QueueMessageEventID(events []BizEvent) string {
	if len(events) == 0 {
		return ""
	}
	if len(events) > 1 {
		if id := events[0].TransactionID(); id != "" {
			return id
		}
	}
	return events[0].ID
}
