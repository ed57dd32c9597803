package ingestion

import (
	"context"
	"time"

	"github.com/google/uuid"

	"receipthub/internal/broker"
	"receipthub/internal/event"
	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
	"receipthub/internal/tokenizer"
	"receipthub/pkg/metrics"
)

// Service turns eligible payment events into receipt documents and queue
// messages for the generator. Single-notice events produce a receipt
// directly; multi-notice events are collected in a cart until every
// declared notice has arrived.
type Service struct {
	receipts        store.ReceiptStore
	carts           store.CartStore
	events          store.BizEventStore
	producer        broker.Producer
	dedup           *Dedup
	build           *ReceiptBuilder
	generationTopic string
	logger          logger.Logger
}

type Config struct {
	GenerationTopic        string
	AuthenticatedChannels  string
	UnwantedRemittanceInfo string
	ECommerceFilterEnabled bool
}

func NewService(
	receipts store.ReceiptStore,
	carts store.CartStore,
	events store.BizEventStore,
	tokens tokenizer.Tokenizer,
	producer broker.Producer,
	dedup *Dedup,
	cfg Config,
	log logger.Logger,
) *Service {
	return &Service{
		receipts:        receipts,
		carts:           carts,
		events:          events,
		producer:        producer,
		dedup:           dedup,
		build:           NewReceiptBuilder(cfg, tokens),
		generationTopic: cfg.GenerationTopic,
		logger:          log,
	}
}

// Builder exposes the receipt builder so recovery paths can rebuild a
// receipt with the same rules the intake applies.
func (s *Service) Builder() *ReceiptBuilder {
	return s.build
}

// ProcessEvent handles one payment event end to end. A nil return means
// the message can be acknowledged; any error means the event must be
// redelivered.
func (s *Service) ProcessEvent(ctx context.Context, ev *model.BizEvent) error {
	start := time.Now()
	status, err := s.processEvent(ctx, ev)
	metrics.IngestionEventsTotal.WithLabelValues(status).Inc()
	metrics.ObserveIngestionDuration(time.Since(start), status)
	return err
}

func (s *Service) processEvent(ctx context.Context, ev *model.BizEvent) (string, error) {
	if err := s.build.validator.CheckEligibility(ev); err != nil {
		if event.IsDiscard(err) {
			s.logger.InfowCtx(ctx, "Event discarded",
				"event_id", eventID(ev),
				"reason", err.Error(),
			)
			return "discarded", nil
		}
		return "failed", err
	}

	totalNotice, err := event.TotalNotice(ev)
	if err != nil {
		return "failed", err
	}

	if totalNotice > 1 {
		return s.processCartEvent(ctx, ev, totalNotice)
	}

	if !s.dedup.MarkIfFirst(ctx, ev.ID) {
		s.logger.DebugwCtx(ctx, "Event already seen recently, verifying against store",
			"event_id", ev.ID,
		)
	}

	existing, err := s.receipts.GetByEventID(ctx, ev.ID)
	if err != nil {
		s.dedup.Clear(ctx, ev.ID)
		return "failed", err
	}
	if existing != nil {
		s.logger.InfowCtx(ctx, "Receipt already exists, skipping",
			"event_id", ev.ID,
			"receipt_id", existing.ID,
			"status", existing.Status,
		)
		return "duplicate", nil
	}

	if err := s.events.Upsert(ctx, ev); err != nil {
		s.dedup.Clear(ctx, ev.ID)
		return "failed", err
	}

	receipt, tokErr := s.buildReceipt(ctx, ev)
	if tokErr != nil {
		// The receipt is parked as failed with the tokenizer reason so
		// helpdesk recovery can replay it once the vault recovers.
		receipt.Status = model.ReceiptStatusFailed
		receipt.ReasonErr = model.NewReasonError(tokenizer.ReasonCodeOf(tokErr), tokErr.Error())
		if err := s.receipts.Insert(ctx, receipt); err != nil {
			s.dedup.Clear(ctx, ev.ID)
			return "failed", err
		}
		s.logger.ErrorwCtx(ctx, "Tokenization failed, receipt parked as failed",
			"event_id", ev.ID,
			"receipt_id", receipt.ID,
			"error", tokErr,
		)
		return "tokenize_failed", nil
	}

	s.enqueueAndSave(ctx, receipt, []model.BizEvent{*ev})
	if err := s.receipts.Insert(ctx, receipt); err != nil {
		s.dedup.Clear(ctx, ev.ID)
		return "failed", err
	}

	return "processed", nil
}

// enqueueAndSave publishes the generation message and stamps the receipt
// status accordingly. A publish failure is not a processing failure: the
// receipt is saved as not-queue-sent and recovered later.
func (s *Service) enqueueAndSave(ctx context.Context, receipt *model.Receipt, events []model.BizEvent) {
	payload, err := model.EncodeQueueMessage(events)
	if err == nil {
		err = s.producer.Publish(ctx, s.generationTopic, []byte(receipt.EventID), payload)
	}

	if err != nil {
		receipt.Status = model.ReceiptStatusNotQueueSent
		receipt.ReasonErr = model.NewReasonError(model.ReasonCodeQueue, err.Error())
		s.logger.ErrorwCtx(ctx, "Failed to enqueue receipt for generation",
			"receipt_id", receipt.ID,
			"event_id", receipt.EventID,
			"error", err,
		)
		return
	}

	receipt.Status = model.ReceiptStatusInserted
	metrics.IncKafkaMessagesWritten("ingestion-service", s.generationTopic)
}

// buildReceipt assembles the receipt document, swapping every fiscal code
// for its token before anything is persisted.
func (s *Service) buildReceipt(ctx context.Context, ev *model.BizEvent) (*model.Receipt, error) {
	receipt := &model.Receipt{
		ID:         ev.ID + "-" + uuid.NewString(),
		EventID:    ev.ID,
		InsertedAt: time.Now().UnixMilli(),
	}

	data, err := s.build.eventData(ctx, ev)
	receipt.EventData = data
	return receipt, err
}

func eventID(ev *model.BizEvent) string {
	if ev == nil {
		return ""
	}
	return ev.ID
}
