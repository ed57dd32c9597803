package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"receipthub/internal/event"
	"receipthub/internal/model"
	"receipthub/internal/tokenizer"
	"receipthub/pkg/errors"
	"receipthub/pkg/metrics"
)

// cartAppendAttempts bounds the optimistic append loop: one try plus one
// re-read after a version conflict. A second conflict hands the event back
// to the broker for redelivery.
const cartAppendAttempts = 2

func (s *Service) processCartEvent(ctx context.Context, ev *model.BizEvent, totalNotice int) (string, error) {
	txID := ev.TransactionID()
	if txID == "" {
		s.logger.WarnwCtx(ctx, "Multi-notice event without transaction id discarded",
			"event_id", ev.ID,
		)
		metrics.CartEventsTotal.WithLabelValues("discarded").Inc()
		return "discarded", nil
	}

	if err := s.events.Upsert(ctx, ev); err != nil {
		metrics.CartEventsTotal.WithLabelValues("failed").Inc()
		return "failed", err
	}

	cart, err := s.appendToCart(ctx, ev, txID, totalNotice)
	if err != nil {
		metrics.CartEventsTotal.WithLabelValues("failed").Inc()
		return "failed", err
	}

	metrics.CartEventsTotal.WithLabelValues("appended").Inc()

	if cart.Status == model.CartStatusWaitingForBizEvent && cart.Complete() {
		if err := s.completeCart(ctx, cart); err != nil {
			return "failed", err
		}
		metrics.CartsCompletedTotal.Inc()
		return "cart_completed", nil
	}

	return "cart_appended", nil
}

// appendToCart records the event in the cart document using the version
// token as an optimistic lock. A conflict means another consumer moved the
// cart first: the state is re-read once and the append retried on top of
// it.
func (s *Service) appendToCart(ctx context.Context, ev *model.BizEvent, txID string, totalNotice int) (*model.Cart, error) {
	for attempt := 0; attempt < cartAppendAttempts; attempt++ {
		cart, err := s.carts.Get(ctx, txID)
		if err != nil {
			return nil, err
		}

		if cart == nil {
			cart = &model.Cart{
				ID:          txID,
				Version:     model.CartVersionInsert,
				Status:      model.CartStatusWaitingForBizEvent,
				TotalNotice: totalNotice,
				InsertedAt:  time.Now().UnixMilli(),
				Payload: &model.CartPayload{
					TransactionCreationDate: event.TransactionCreationDate(ev),
					TotalAmount:             event.Amount(ev),
					Payments:                []model.CartPayment{newCartPayment(s.build.extractor, ev)},
				},
			}
			err = s.carts.Insert(ctx, cart)
			if errors.IsConflict(err) {
				// Lost the creation race, fold into the winner's cart.
				continue
			}
			if err != nil {
				return nil, err
			}
			return cart, nil
		}

		if cart.Payload.Contains(ev.ID) {
			s.logger.InfowCtx(ctx, "Event already recorded in cart, skipping append",
				"event_id", ev.ID,
				"cart_id", txID,
			)
			return cart, nil
		}

		expectedVersion := cart.Version
		cart.Payload.Payments = append(cart.Payload.Payments, newCartPayment(s.build.extractor, ev))
		cart.Version = uuid.NewString()

		err = s.carts.ReplaceIfVersion(ctx, cart, expectedVersion)
		if errors.IsConflict(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return cart, nil
	}

	return nil, fmt.Errorf("cart %s contended beyond retry budget for event %s", txID, ev.ID)
}

func newCartPayment(x *event.Extractor, ev *model.BizEvent) model.CartPayment {
	return model.CartPayment{
		BizEventID: ev.ID,
		Amount:     event.NoticeAmount(ev),
		PayeeName:  event.PayeeName(ev),
		Subject:    x.Subject(ev),
	}
}

// completeCart builds the aggregate receipt once every declared notice has
// arrived and hands the full event list to the generator.
func (s *Service) completeCart(ctx context.Context, cart *model.Cart) error {
	existing, err := s.receipts.GetByEventID(ctx, cart.ID)
	if err != nil {
		return err
	}
	if existing != nil {
		s.logger.InfowCtx(ctx, "Cart receipt already exists, skipping completion",
			"cart_id", cart.ID,
			"receipt_id", existing.ID,
		)
		return nil
	}

	events, err := s.collectCartEvents(ctx, cart)
	if err != nil {
		return err
	}

	receipt, tokErr := s.buildCartReceipt(ctx, cart, events)
	if tokErr != nil {
		receipt.Status = model.ReceiptStatusFailed
		receipt.ReasonErr = model.NewReasonError(tokenizer.ReasonCodeOf(tokErr), tokErr.Error())
		cart.Status = model.CartStatusFailed
		cart.ReasonErr = receipt.ReasonErr
		if err := s.receipts.Insert(ctx, receipt); err != nil {
			return err
		}
		if err := s.carts.Update(ctx, cart); err != nil {
			return err
		}
		s.logger.ErrorwCtx(ctx, "Cart tokenization failed, receipt parked as failed",
			"cart_id", cart.ID,
			"receipt_id", receipt.ID,
			"error", tokErr,
		)
		return nil
	}

	s.enqueueAndSave(ctx, receipt, events)
	if err := s.receipts.Insert(ctx, receipt); err != nil {
		return err
	}

	switch receipt.Status {
	case model.ReceiptStatusInserted:
		cart.Status = model.CartStatusInserted
	case model.ReceiptStatusNotQueueSent:
		cart.Status = model.CartStatusNotQueueSent
		cart.ReasonErr = receipt.ReasonErr
	}
	return s.carts.Update(ctx, cart)
}

// collectCartEvents loads the stored events in cart arrival order.
func (s *Service) collectCartEvents(ctx context.Context, cart *model.Cart) ([]model.BizEvent, error) {
	stored, err := s.events.GetByTransactionID(ctx, cart.ID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.BizEvent, len(stored))
	for _, ev := range stored {
		byID[ev.ID] = ev
	}

	events := make([]model.BizEvent, 0, len(cart.Payload.Payments))
	for _, payment := range cart.Payload.Payments {
		ev, ok := byID[payment.BizEventID]
		if !ok {
			return nil, fmt.Errorf("cart %s references missing event %s", cart.ID, payment.BizEventID)
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *Service) buildCartReceipt(ctx context.Context, cart *model.Cart, events []model.BizEvent) (*model.Receipt, error) {
	receipt := &model.Receipt{
		ID:         cart.ID + "-" + uuid.NewString(),
		EventID:    cart.ID,
		IsCart:     true,
		InsertedAt: time.Now().UnixMilli(),
	}

	data, debtorTokens, err := s.build.cartEventData(ctx, events)
	receipt.EventData = data
	if err != nil {
		return receipt, err
	}

	// collectCartEvents returns the events in payment order, so the
	// tokens line up with the cart payload entries.
	for i, token := range debtorTokens {
		cart.Payload.Payments[i].DebtorFiscalCode = token
	}
	cart.Payload.PayerFiscalCode = data.PayerFiscalCode

	return receipt, nil
}
