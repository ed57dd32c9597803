package poison

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"receipthub/internal/broker"
	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
	"receipthub/pkg/logging"
	"receipthub/pkg/metrics"
	"receipthub/pkg/retry"
)

// Service drains the shared poison topic. Each message gets exactly one
// automatic retry back on the topic it came from; a message that poisons
// twice is parked for manual review with its payload intact.
// The payload shape identifies the source: the generation queue carries an
// event list, the ingestion queue a single event object.
type Service struct {
	errors          store.ReceiptErrorStore
	producer        broker.Producer
	ingestionTopic  string
	generationTopic string
	logger          logger.Logger
}

func NewService(
	errors store.ReceiptErrorStore,
	producer broker.Producer,
	ingestionTopic string,
	generationTopic string,
	log logger.Logger,
) *Service {
	return &Service{
		errors:          errors,
		producer:        producer,
		ingestionTopic:  ingestionTopic,
		generationTopic: generationTopic,
		logger:          log,
	}
}

// HandleMessage adapts the service to the broker consumer.
func (s *Service) HandleMessage(ctx context.Context, msg broker.Message) error {
	return s.ProcessMessage(ctx, msg.Value)
}

// ProcessMessage handles one poisoned payload.
func (s *Service) ProcessMessage(ctx context.Context, raw []byte) error {
	status, err := s.processMessage(ctx, raw)
	metrics.PoisonMessagesTotal.WithLabelValues(status).Inc()
	return err
}

func (s *Service) processMessage(ctx context.Context, raw []byte) (string, error) {
	if events, err := model.DecodeQueueMessage(raw); err == nil && len(events) > 0 {
		return s.retryOrPark(ctx, raw, events, s.generationTopic, false)
	}

	if ev, ok := decodeSingleEvent(raw); ok {
		return s.retryOrPark(ctx, raw, []model.BizEvent{*ev}, s.ingestionTopic, true)
	}

	// Nothing to retry when the payload cannot even be read.
	return "undecodable", s.park(ctx, raw, "", "", "unreadable message payload")
}

func (s *Service) retryOrPark(ctx context.Context, raw []byte, events []model.BizEvent, sourceTopic string, single bool) (string, error) {
	eventID := model.QueueMessageEventID(events)
	ctx = logging.WithEventID(ctx, eventID)

	if alreadyRetried(events) {
		s.logger.InfowCtx(ctx, "Poison retry already attempted, parking message for review",
			"event_id", eventID,
			"source_topic", sourceTopic,
		)
		return "parked", s.park(ctx, raw, eventID, sourceTopic, "")
	}

	for i := range events {
		events[i].AttemptedPoisonRetry = true
	}

	var payload []byte
	var err error
	if single {
		payload, err = json.Marshal(&events[0])
	} else {
		payload, err = model.EncodeQueueMessage(events)
	}
	if err != nil {
		return "failed", retry.NewFatalError(fmt.Errorf("re-encode poison message: %w", err))
	}

	if err := s.producer.Publish(ctx, sourceTopic, []byte(eventID), payload); err != nil {
		return "failed", fmt.Errorf("requeue poison message: %w", err)
	}

	s.logger.InfowCtx(ctx, "Poisoned message requeued for one more attempt",
		"event_id", eventID,
		"topic", sourceTopic,
	)
	return "retried", nil
}

// decodeSingleEvent recognizes an ingestion-topic payload: one event
// object instead of the generation queue's event list.
func decodeSingleEvent(raw []byte) (*model.BizEvent, bool) {
	var ev model.BizEvent
	if err := json.Unmarshal(raw, &ev); err != nil || ev.ID == "" {
		return nil, false
	}
	return &ev, true
}

// alreadyRetried reports whether any event in the batch carries the retry
// mark. Events travel together, so one mark covers the whole message.
func alreadyRetried(events []model.BizEvent) bool {
	for i := range events {
		if events[i].AttemptedPoisonRetry {
			return true
		}
	}
	return false
}

func (s *Service) park(ctx context.Context, raw []byte, eventID, sourceTopic, reason string) error {
	record := &model.ReceiptError{
		ID:             uuid.NewString(),
		BizEventID:     eventID,
		MessagePayload: string(raw),
		MessageError:   reason,
		SourceTopic:    sourceTopic,
		Status:         model.ReceiptErrorStatusToReview,
		InsertedAt:     time.Now().UnixMilli(),
	}
	if err := s.errors.Insert(ctx, record); err != nil {
		return fmt.Errorf("store poisoned message: %w", err)
	}
	return nil
}
