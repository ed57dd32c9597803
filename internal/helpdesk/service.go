package helpdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"receipthub/internal/broker"
	"receipthub/internal/constants"
	"receipthub/internal/event"
	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
	"receipthub/pkg/errors"
	"receipthub/pkg/metrics"
)

// Service exposes the recovery operations behind the helpdesk API and the
// scheduled self-healing jobs.
type Service interface {
	GetReceipt(ctx context.Context, eventID string) (*model.Receipt, error)
	RecoverReceipt(ctx context.Context, eventID string) error
	RecoverReceiptsMassive(ctx context.Context, status string) (*model.MassiveRecoverResult, error)
	RecoverNotNotified(ctx context.Context, eventID string) error
	RecoverNotNotifiedMassive(ctx context.Context, status string) (*model.MassiveRecoverResult, error)
	ReviewReceiptError(ctx context.Context, errorID string) (*model.ReceiptError, error)
	RequeueReviewed(ctx context.Context) (*model.MassiveRecoverResult, error)
}

// Rebuilder recreates a receipt's event data from its source events,
// re-running validation and fiscal-code tokenization.
type Rebuilder interface {
	Rebuild(ctx context.Context, receipt *model.Receipt, events []model.BizEvent) error
}

type service struct {
	receipts        store.ReceiptStore
	carts           store.CartStore
	events          store.BizEventStore
	errs            store.ReceiptErrorStore
	producer        broker.Producer
	rebuild         Rebuilder
	audit           AuditRepository
	ingestionTopic  string
	generationTopic string
	lookbackDays    int
	pageSize        int
	logger          logger.Logger
}

func NewService(
	receipts store.ReceiptStore,
	carts store.CartStore,
	events store.BizEventStore,
	errs store.ReceiptErrorStore,
	producer broker.Producer,
	rebuild Rebuilder,
	audit AuditRepository,
	ingestionTopic string,
	generationTopic string,
	lookbackDays int,
	log logger.Logger,
) Service {
	if lookbackDays <= 0 {
		lookbackDays = constants.DefaultLookbackDays
	}
	if ingestionTopic == "" {
		ingestionTopic = constants.DefaultIngestionTopic
	}
	if generationTopic == "" {
		generationTopic = constants.DefaultGenerationTopic
	}
	return &service{
		receipts:        receipts,
		carts:           carts,
		events:          events,
		errs:            errs,
		producer:        producer,
		rebuild:         rebuild,
		audit:           audit,
		ingestionTopic:  ingestionTopic,
		generationTopic: generationTopic,
		lookbackDays:    lookbackDays,
		pageSize:        constants.RecoveryPageSize,
		logger:          log,
	}
}

// GetReceipt looks a receipt up by its source event id.
func (s *service) GetReceipt(ctx context.Context, eventID string) (*model.Receipt, error) {
	receipt, err := s.receipts.GetByEventID(ctx, eventID)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	if receipt == nil {
		return nil, errors.ErrNotFound.WithDetail("eventId", eventID)
	}
	return receipt, nil
}

// RecoverReceipt puts a stuck receipt back on the generation queue. Only
// receipts that never made it past the datastore step are eligible.
func (s *service) RecoverReceipt(ctx context.Context, eventID string) error {
	receipt, err := s.receipts.GetByEventID(ctx, eventID)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	if receipt == nil {
		// A cart can be stuck before any receipt exists, when not every
		// declared notice arrived or completion crashed mid-way.
		return s.recoverStuckCart(ctx, eventID)
	}

	if !statusIn(receipt.Status, model.DatastoreFailedStatuses) {
		return errors.ErrUnprocessable.WithDetail("message",
			fmt.Sprintf("receipt %s is in status %s and cannot be recovered", eventID, receipt.Status))
	}

	if err := s.requeueReceipt(ctx, receipt); err != nil {
		return err
	}

	metrics.IncRecoveryReceipt("failed", "success")
	s.logger.InfowCtx(ctx, "Receipt recovered", "event_id", eventID)
	return nil
}

// requeueReceipt rebuilds the receipt from its stored source events,
// tokens included, then puts it back on the generation queue as INSERTED.
// A receipt parked by a tokenizer outage gets fresh tokens here instead
// of carrying its empty ones into generation.
func (s *service) requeueReceipt(ctx context.Context, receipt *model.Receipt) error {
	events, err := s.sourceEvents(ctx, receipt)
	if err != nil {
		return err
	}

	if err := s.rebuild.Rebuild(ctx, receipt, events); err != nil {
		if event.IsDiscard(err) {
			return errors.ErrUnprocessable.WithDetail("message",
				fmt.Sprintf("source events of %s are no longer eligible: %v", receipt.EventID, err))
		}
		return errors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "could not rebuild receipt from source events")
	}

	payload, err := model.EncodeQueueMessage(events)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	eventID := model.QueueMessageEventID(events)
	if err := s.producer.Publish(ctx, s.generationTopic, []byte(eventID), payload); err != nil {
		return errors.ErrServiceUnavailable.WithCause(err).
			WithDetail("message", "could not requeue receipt for generation")
	}

	receipt.Status = model.ReceiptStatusInserted
	receipt.ReasonErr = nil
	receipt.ReasonErrPayer = nil
	receipt.NumRetry = 0
	if err := s.receipts.Update(ctx, receipt); err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	if receipt.IsCart {
		s.resetCart(ctx, receipt.EventID)
	}
	return nil
}

// sourceEvents loads the events a receipt was built from. Cart receipts
// carry the transaction id as their event id and span several events.
func (s *service) sourceEvents(ctx context.Context, receipt *model.Receipt) ([]model.BizEvent, error) {
	if receipt.IsCart {
		events, err := s.events.GetByTransactionID(ctx, receipt.EventID)
		if err != nil {
			return nil, errors.ErrInternal.WithCause(err)
		}
		if len(events) == 0 {
			return nil, errors.ErrUnprocessable.WithDetail("message",
				fmt.Sprintf("no source events stored for cart %s", receipt.EventID))
		}
		return events, nil
	}

	event, err := s.events.GetByID(ctx, receipt.EventID)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	if event == nil {
		return nil, errors.ErrUnprocessable.WithDetail("message",
			fmt.Sprintf("no source event stored for receipt %s", receipt.EventID))
	}
	return []model.BizEvent{*event}, nil
}

// resetCart mirrors the receipt reset on the cart document. A missing or
// unreadable cart is not fatal for the recovery itself.
func (s *service) resetCart(ctx context.Context, cartID string) {
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil || cart == nil {
		return
	}
	cart.Status = model.CartStatusInserted
	cart.ReasonErr = nil
	if err := s.carts.Update(ctx, cart); err != nil {
		s.logger.WarnwCtx(ctx, "Could not reset cart after receipt recovery",
			"cart_id", cartID, "error", err)
	}
}

// recoverStuckCart re-drives the stored events of a receipt-less cart
// through the intake pipeline. Event handling is idempotent, so replaying
// events already recorded in the cart is harmless.
func (s *service) recoverStuckCart(ctx context.Context, cartID string) error {
	cart, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	if cart == nil {
		return errors.ErrNotFound.WithDetail("eventId", cartID)
	}
	if !cartStatusIn(cart.Status, model.RecoverableCartStatuses) {
		return errors.ErrUnprocessable.WithDetail("message",
			fmt.Sprintf("cart %s is in status %s and cannot be recovered", cartID, cart.Status))
	}

	events, err := s.events.GetByTransactionID(ctx, cartID)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	if len(events) == 0 {
		return errors.ErrUnprocessable.WithDetail("message",
			fmt.Sprintf("no source events stored for cart %s", cartID))
	}

	for i := range events {
		payload, err := json.Marshal(&events[i])
		if err != nil {
			return errors.ErrInternal.WithCause(err)
		}
		if err := s.producer.Publish(ctx, s.ingestionTopic, []byte(events[i].ID), payload); err != nil {
			return errors.ErrServiceUnavailable.WithCause(err).
				WithDetail("message", "could not replay cart events")
		}
	}

	cart.Status = model.CartStatusWaitingForBizEvent
	cart.ReasonErr = nil
	if err := s.carts.Update(ctx, cart); err != nil {
		return errors.ErrInternal.WithCause(err)
	}

	metrics.IncRecoveryReceipt("failed", "success")
	s.logger.InfowCtx(ctx, "Stuck cart events replayed",
		"cart_id", cartID, "events", len(events))
	return nil
}

func cartStatusIn(status model.CartStatus, set []model.CartStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

// RecoverReceiptsMassive sweeps every recoverable receipt in the lookback
// window. A single status narrows the sweep; empty means all of them.
func (s *service) RecoverReceiptsMassive(ctx context.Context, status string) (*model.MassiveRecoverResult, error) {
	statuses, err := resolveStatuses(status, model.DatastoreFailedStatuses)
	if err != nil {
		return nil, err
	}

	result, err := s.sweep(ctx, statuses, func(ctx context.Context, receipt *model.Receipt) error {
		return s.requeueReceipt(ctx, receipt)
	})
	if err != nil {
		return nil, err
	}
	result.Status = statusLabel(status, "failed")

	s.recordAudit(ctx, "recover_failed_massive", result)
	return result, nil
}

// RecoverNotNotified resets a generated receipt whose user notification
// got stuck, clearing the notification counters so the notifier retries.
func (s *service) RecoverNotNotified(ctx context.Context, eventID string) error {
	receipt, err := s.receipts.GetByEventID(ctx, eventID)
	if err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	if receipt == nil {
		return errors.ErrNotFound.WithDetail("eventId", eventID)
	}

	if !statusIn(receipt.Status, model.NotNotifiedStatuses) {
		return errors.ErrUnprocessable.WithDetail("message",
			fmt.Sprintf("receipt %s is in status %s and has no notification to recover", eventID, receipt.Status))
	}

	if err := s.resetNotification(ctx, receipt); err != nil {
		return err
	}

	metrics.IncRecoveryReceipt("not_notified", "success")
	s.logger.InfowCtx(ctx, "Receipt notification state reset", "event_id", eventID)
	return nil
}

func (s *service) resetNotification(ctx context.Context, receipt *model.Receipt) error {
	receipt.Status = model.ReceiptStatusGenerated
	receipt.NotificationNumRetry = 0
	receipt.ReasonErr = nil
	receipt.ReasonErrPayer = nil
	if err := s.receipts.Update(ctx, receipt); err != nil {
		return errors.ErrInternal.WithCause(err)
	}
	return nil
}

// RecoverNotNotifiedMassive is the sweep variant of RecoverNotNotified.
func (s *service) RecoverNotNotifiedMassive(ctx context.Context, status string) (*model.MassiveRecoverResult, error) {
	statuses, err := resolveStatuses(status, model.NotNotifiedStatuses)
	if err != nil {
		return nil, err
	}

	result, err := s.sweep(ctx, statuses, s.resetNotification)
	if err != nil {
		return nil, err
	}
	result.Status = statusLabel(status, "not_notified")

	s.recordAudit(ctx, "recover_not_notified_massive", result)
	return result, nil
}

// sweep pages through receipts in the given states and applies recover to
// each. Item failures are counted and listed, never aborting the scan.
func (s *service) sweep(
	ctx context.Context,
	statuses []model.ReceiptStatus,
	recover func(context.Context, *model.Receipt) error,
) (*model.MassiveRecoverResult, error) {
	start := time.Now()
	notBefore := start.AddDate(0, 0, -s.lookbackDays).UnixMilli()
	result := &model.MassiveRecoverResult{}

	page := store.PageRequest{Limit: s.pageSize}
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.ErrInternal.WithCause(err)
		}

		receipts, err := s.receipts.FindByStatus(ctx, statuses, notBefore, page)
		if err != nil {
			return nil, errors.ErrInternal.WithCause(err)
		}

		result.PagesScanned++
		result.ItemsScanned += len(receipts.Items)

		for i := range receipts.Items {
			receipt := receipts.Items[i]
			if err := recover(ctx, &receipt); err != nil {
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, receipt.EventID)
				s.logger.WarnwCtx(ctx, "Receipt recovery failed during sweep",
					"event_id", receipt.EventID, "error", err)
				continue
			}
			result.Succeeded++
		}

		if receipts.ContinuationToken == "" {
			break
		}
		page.ContinuationToken = receipts.ContinuationToken
	}

	result.ElapsedMillis = time.Since(start).Milliseconds()
	return result, nil
}

// ReviewReceiptError moves a parked poison record to REVIEWED so the
// periodic sweep picks it up for one more requeue.
func (s *service) ReviewReceiptError(ctx context.Context, errorID string) (*model.ReceiptError, error) {
	record, err := s.errs.GetByID(ctx, errorID)
	if err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	if record == nil {
		return nil, errors.ErrNotFound.WithDetail("errorId", errorID)
	}
	if record.Status != model.ReceiptErrorStatusToReview {
		return nil, errors.ErrUnprocessable.WithDetail("message",
			fmt.Sprintf("receipt error %s is in status %s, only TO_REVIEW can be reviewed", errorID, record.Status))
	}

	record.Status = model.ReceiptErrorStatusReviewed
	record.UpdatedAt = time.Now().UnixMilli()
	if err := s.errs.Update(ctx, record); err != nil {
		return nil, errors.ErrInternal.WithCause(err)
	}
	return record, nil
}

// RequeueReviewed forwards every REVIEWED poison payload back onto the
// generation topic. A failed requeue returns the record to TO_REVIEW with
// the error message so an operator sees what happened.
func (s *service) RequeueReviewed(ctx context.Context) (*model.MassiveRecoverResult, error) {
	start := time.Now()
	result := &model.MassiveRecoverResult{Status: "reviewed"}

	page := store.PageRequest{Limit: s.pageSize}
	for {
		errPage, err := s.errs.FindByStatus(ctx, model.ReceiptErrorStatusReviewed, page)
		if err != nil {
			return nil, errors.ErrInternal.WithCause(err)
		}

		result.PagesScanned++
		result.ItemsScanned += len(errPage.Items)

		for i := range errPage.Items {
			record := errPage.Items[i]
			if err := s.requeueReviewedRecord(ctx, &record); err != nil {
				result.Failed++
				result.FailedIDs = append(result.FailedIDs, record.ID)
				continue
			}
			result.Succeeded++
		}

		if errPage.ContinuationToken == "" {
			break
		}
		page.ContinuationToken = errPage.ContinuationToken
	}

	result.ElapsedMillis = time.Since(start).Milliseconds()
	s.recordAudit(ctx, "requeue_reviewed", result)
	return result, nil
}

// requeueReviewedRecord sends a reviewed payload back to the topic it was
// poisoned on. Records written before topics were tracked fall back to
// the generation topic.
func (s *service) requeueReviewedRecord(ctx context.Context, record *model.ReceiptError) error {
	now := time.Now().UnixMilli()

	topic := record.SourceTopic
	if topic == "" {
		topic = s.generationTopic
	}
	err := s.producer.Publish(ctx, topic, []byte(record.BizEventID), []byte(record.MessagePayload))
	if err != nil {
		record.Status = model.ReceiptErrorStatusToReview
		record.MessageError = err.Error()
		record.UpdatedAt = now
		if updateErr := s.errs.Update(ctx, record); updateErr != nil {
			s.logger.ErrorwCtx(ctx, "Could not return poison record to review",
				"error_id", record.ID, "error", updateErr)
		}
		return err
	}

	record.Status = model.ReceiptErrorStatusRequeued
	record.MessageError = ""
	record.UpdatedAt = now
	if err := s.errs.Update(ctx, record); err != nil {
		return err
	}

	metrics.PoisonMessagesTotal.WithLabelValues("requeued").Inc()
	return nil
}

// recordAudit persists the sweep outcome. Auditing is best effort and a
// write failure never fails the recovery that produced it.
func (s *service) recordAudit(ctx context.Context, operation string, result *model.MassiveRecoverResult) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordSweep(ctx, operation, result); err != nil {
		s.logger.WarnwCtx(ctx, "Could not persist recovery audit entry",
			"operation", operation, "error", err)
	}
}

// resolveStatuses maps the optional status filter to the concrete set,
// rejecting anything outside the allowed states for the operation.
func resolveStatuses(status string, allowed []model.ReceiptStatus) ([]model.ReceiptStatus, error) {
	if status == "" {
		return allowed, nil
	}

	candidate := model.ReceiptStatus(strings.ToUpper(status))
	if !statusIn(candidate, allowed) {
		return nil, errors.ErrValidation.WithDetail("message",
			fmt.Sprintf("status %s is not recoverable by this operation", status))
	}
	return []model.ReceiptStatus{candidate}, nil
}

func statusIn(status model.ReceiptStatus, set []model.ReceiptStatus) bool {
	for _, s := range set {
		if s == status {
			return true
		}
	}
	return false
}

func statusLabel(status, fallback string) string {
	if status != "" {
		return strings.ToUpper(status)
	}
	return fallback
}
