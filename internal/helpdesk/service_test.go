package helpdesk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/ingestion"
	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
	pkgerrors "receipthub/pkg/errors"
)

type fakeTokenizer struct{}

func (fakeTokenizer) Tokenize(_ context.Context, pii string) (string, error) {
	return "tok-" + pii, nil
}

type fakeProducer struct {
	mu       sync.Mutex
	err      error
	topics   []string
	messages [][]byte
}

func (f *fakeProducer) Publish(_ context.Context, topic string, _ []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	f.topics = append(f.topics, topic)
	f.messages = append(f.messages, copied)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}

type fakeAudit struct {
	mu     sync.Mutex
	sweeps []string
}

func (f *fakeAudit) RecordSweep(_ context.Context, operation string, _ *model.MassiveRecoverResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps = append(f.sweeps, operation)
	return nil
}

func (f *fakeAudit) ListSweeps(context.Context, int) ([]SweepRecord, error) {
	return nil, nil
}

type helpdeskEnv struct {
	service  Service
	receipts *store.MemoryReceiptStore
	carts    *store.MemoryCartStore
	events   *store.MemoryBizEventStore
	errs     *store.MemoryReceiptErrorStore
	producer *fakeProducer
	audit    *fakeAudit
}

func newHelpdeskEnv(t *testing.T) *helpdeskEnv {
	t.Helper()
	env := &helpdeskEnv{
		receipts: store.NewMemoryReceiptStore(),
		carts:    store.NewMemoryCartStore(),
		events:   store.NewMemoryBizEventStore(),
		errs:     store.NewMemoryReceiptErrorStore(),
		producer: &fakeProducer{},
		audit:    &fakeAudit{},
	}
	rebuild := ingestion.NewReceiptBuilder(ingestion.Config{}, fakeTokenizer{})
	env.service = NewService(
		env.receipts, env.carts, env.events, env.errs,
		env.producer, rebuild, env.audit, "payment_events", "receipt_generation", 7, logger.NopLogger(),
	)
	return env
}

func (env *helpdeskEnv) seedReceipt(t *testing.T, eventID string, status model.ReceiptStatus) *model.Receipt {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, env.events.Upsert(ctx, &model.BizEvent{
		ID:          eventID,
		EventStatus: model.EventStatusDone,
		Debtor:      &model.Subject{EntityUniqueIdentifier: "RSSMRA80A01H501U"},
		Creditor:    &model.Creditor{CompanyName: "Comune di Roma"},
		PaymentInfo: &model.PaymentInfo{
			Amount:                "100.00",
			RemittanceInformation: "TARI 2024",
		},
	}))
	receipt := &model.Receipt{
		ID:         eventID + "-r",
		EventID:    eventID,
		Status:     status,
		NumRetry:   3,
		ReasonErr:  model.NewReasonError(model.ReasonCodeQueue, "queue down"),
		InsertedAt: time.Now().UnixMilli(),
	}
	require.NoError(t, env.receipts.Insert(ctx, receipt))
	return receipt
}

func TestRecoverReceiptRequeuesAndResets(t *testing.T) {
	env := newHelpdeskEnv(t)
	env.seedReceipt(t, "evt-1", model.ReceiptStatusFailed)
	ctx := context.Background()

	require.NoError(t, env.service.RecoverReceipt(ctx, "evt-1"))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusInserted, receipt.Status)
	assert.Nil(t, receipt.ReasonErr)
	assert.Zero(t, receipt.NumRetry)

	env.producer.mu.Lock()
	defer env.producer.mu.Unlock()
	require.Len(t, env.producer.messages, 1)
	events, err := model.DecodeQueueMessage(env.producer.messages[0])
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
}

func TestRecoverReceiptRebuildsTokens(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	receipt := env.seedReceipt(t, "evt-1", model.ReceiptStatusFailed)
	receipt.EventData = &model.EventData{DebtorFiscalCode: ""}
	require.NoError(t, env.receipts.Update(ctx, receipt))

	require.NoError(t, env.service.RecoverReceipt(ctx, "evt-1"))

	updated, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusInserted, updated.Status)
	require.NotNil(t, updated.EventData)
	assert.Equal(t, "tok-RSSMRA80A01H501U", updated.EventData.DebtorFiscalCode,
		"recovered receipt must carry a rebuilt debtor token")
	require.Len(t, updated.EventData.Cart, 1)
	assert.Equal(t, "TARI 2024", updated.EventData.Cart[0].Subject)
}

func TestRecoverReceiptRejectsIneligibleSourceEvent(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	require.NoError(t, env.events.Upsert(ctx, &model.BizEvent{
		ID:          "evt-bad",
		EventStatus: "FAILED",
	}))
	require.NoError(t, env.receipts.Insert(ctx, &model.Receipt{
		ID:         "evt-bad-r",
		EventID:    "evt-bad",
		Status:     model.ReceiptStatusFailed,
		InsertedAt: time.Now().UnixMilli(),
	}))

	err := env.service.RecoverReceipt(ctx, "evt-bad")
	require.Error(t, err)
	assert.Equal(t, 422, pkgerrors.ToHTTPStatus(err))
	assert.Zero(t, env.producer.count())
}

func TestRecoverReceiptRejectsIneligibleStatus(t *testing.T) {
	env := newHelpdeskEnv(t)
	env.seedReceipt(t, "evt-1", model.ReceiptStatusGenerated)

	err := env.service.RecoverReceipt(context.Background(), "evt-1")
	require.Error(t, err)
	assert.Equal(t, 422, pkgerrors.ToHTTPStatus(err))
	assert.Zero(t, env.producer.count())
}

func TestRecoverReceiptNotFound(t *testing.T) {
	env := newHelpdeskEnv(t)

	err := env.service.RecoverReceipt(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestRecoverReceiptWithoutSourceEvent(t *testing.T) {
	env := newHelpdeskEnv(t)
	receipt := &model.Receipt{
		ID:         "orphan-r",
		EventID:    "orphan",
		Status:     model.ReceiptStatusFailed,
		InsertedAt: time.Now().UnixMilli(),
	}
	require.NoError(t, env.receipts.Insert(context.Background(), receipt))

	err := env.service.RecoverReceipt(context.Background(), "orphan")
	require.Error(t, err)
	assert.Equal(t, 422, pkgerrors.ToHTTPStatus(err))
}

func (env *helpdeskEnv) seedCart(t *testing.T, cartID string, status model.CartStatus, eventIDs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range eventIDs {
		require.NoError(t, env.events.Upsert(ctx, &model.BizEvent{
			ID: id,
			TransactionDetails: &model.TransactionDetails{
				Transaction: &model.Transaction{TransactionID: cartID},
			},
		}))
	}
	require.NoError(t, env.carts.Insert(ctx, &model.Cart{
		ID:          cartID,
		Version:     model.CartVersionInsert,
		Status:      status,
		TotalNotice: len(eventIDs) + 1,
		ReasonErr:   model.NewReasonError(model.ReasonCodeQueue, "queue down"),
		Payload:     &model.CartPayload{},
		InsertedAt:  time.Now().UnixMilli(),
	}))
}

func TestRecoverStuckCartReplaysEvents(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	env.seedCart(t, "tx-9", model.CartStatusFailed, "evt-a", "evt-b")

	require.NoError(t, env.service.RecoverReceipt(ctx, "tx-9"))

	assert.Equal(t, 2, env.producer.count())
	assert.Equal(t, []string{"payment_events", "payment_events"}, env.producer.topics)

	cart, err := env.carts.Get(ctx, "tx-9")
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusWaitingForBizEvent, cart.Status)
	assert.Nil(t, cart.ReasonErr)
}

func TestRecoverStuckCartRejectsGeneratedCart(t *testing.T) {
	env := newHelpdeskEnv(t)
	env.seedCart(t, "tx-9", model.CartStatusGenerated, "evt-a")

	err := env.service.RecoverReceipt(context.Background(), "tx-9")
	require.Error(t, err)
	assert.Equal(t, 422, pkgerrors.ToHTTPStatus(err))
	assert.Equal(t, 0, env.producer.count())
}

func TestMassiveRecoverCountsFailuresAndContinues(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	env.seedReceipt(t, "evt-1", model.ReceiptStatusFailed)
	env.seedReceipt(t, "evt-2", model.ReceiptStatusNotQueueSent)
	// No source event stored; the sweep must count this one and move on.
	require.NoError(t, env.receipts.Insert(ctx, &model.Receipt{
		ID:         "orphan-r",
		EventID:    "orphan",
		Status:     model.ReceiptStatusFailed,
		InsertedAt: time.Now().UnixMilli(),
	}))

	result, err := env.service.RecoverReceiptsMassive(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, []string{"orphan"}, result.FailedIDs)
	assert.Equal(t, 3, result.ItemsScanned)
	assert.Equal(t, 2, env.producer.count())

	env.audit.mu.Lock()
	defer env.audit.mu.Unlock()
	assert.Contains(t, env.audit.sweeps, "recover_failed_massive")
}

func TestMassiveRecoverRejectsInvalidStatus(t *testing.T) {
	env := newHelpdeskEnv(t)

	_, err := env.service.RecoverReceiptsMassive(context.Background(), "GENERATED")
	require.Error(t, err)
	assert.Equal(t, 400, pkgerrors.ToHTTPStatus(err))
}

func TestMassiveRecoverFiltersBySingleStatus(t *testing.T) {
	env := newHelpdeskEnv(t)
	env.seedReceipt(t, "evt-1", model.ReceiptStatusFailed)
	env.seedReceipt(t, "evt-2", model.ReceiptStatusNotQueueSent)

	result, err := env.service.RecoverReceiptsMassive(context.Background(), "failed")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, "FAILED", result.Status)
}

func TestMassiveRecoverSkipsReceiptsOutsideLookback(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	require.NoError(t, env.events.Upsert(ctx, &model.BizEvent{ID: "old"}))
	require.NoError(t, env.receipts.Insert(ctx, &model.Receipt{
		ID:         "old-r",
		EventID:    "old",
		Status:     model.ReceiptStatusFailed,
		InsertedAt: time.Now().AddDate(0, 0, -30).UnixMilli(),
	}))

	result, err := env.service.RecoverReceiptsMassive(ctx, "")
	require.NoError(t, err)
	assert.Zero(t, result.ItemsScanned)
}

func TestRecoverNotNotifiedResetsCounters(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	receipt := env.seedReceipt(t, "evt-1", model.ReceiptStatusIOErrorToNotify)
	receipt.NotificationNumRetry = 4
	require.NoError(t, env.receipts.Update(ctx, receipt))

	require.NoError(t, env.service.RecoverNotNotified(ctx, "evt-1"))

	updated, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusGenerated, updated.Status)
	assert.Zero(t, updated.NotificationNumRetry)
	assert.Nil(t, updated.ReasonErr)
	assert.Zero(t, env.producer.count(), "notification recovery must not touch the generation queue")
}

func TestRecoverNotNotifiedRejectsFailedReceipt(t *testing.T) {
	env := newHelpdeskEnv(t)
	env.seedReceipt(t, "evt-1", model.ReceiptStatusFailed)

	err := env.service.RecoverNotNotified(context.Background(), "evt-1")
	require.Error(t, err)
	assert.Equal(t, 422, pkgerrors.ToHTTPStatus(err))
}

func TestReviewReceiptError(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	require.NoError(t, env.errs.Insert(ctx, &model.ReceiptError{
		ID:             "err-1",
		BizEventID:     "evt-1",
		MessagePayload: `[{"id":"evt-1"}]`,
		Status:         model.ReceiptErrorStatusToReview,
	}))

	record, err := env.service.ReviewReceiptError(ctx, "err-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptErrorStatusReviewed, record.Status)
	assert.NotZero(t, record.UpdatedAt)

	_, err = env.service.ReviewReceiptError(ctx, "err-1")
	require.Error(t, err, "a record can only be reviewed once")
	assert.Equal(t, 422, pkgerrors.ToHTTPStatus(err))
}

func TestRequeueReviewedForwardsPayloadVerbatim(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	payload := `[{"id":"evt-1","attemptedPoisonRetry":true}]`
	require.NoError(t, env.errs.Insert(ctx, &model.ReceiptError{
		ID:             "err-1",
		BizEventID:     "evt-1",
		MessagePayload: payload,
		Status:         model.ReceiptErrorStatusReviewed,
	}))

	result, err := env.service.RequeueReviewed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	env.producer.mu.Lock()
	require.Len(t, env.producer.messages, 1)
	assert.Equal(t, payload, string(env.producer.messages[0]))
	assert.Equal(t, "receipt_generation", env.producer.topics[0],
		"records without a source topic fall back to the generation topic")
	env.producer.mu.Unlock()

	record, err := env.errs.GetByID(ctx, "err-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptErrorStatusRequeued, record.Status)
}

func TestRequeueReviewedTargetsSourceTopic(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	payload := `{"id":"evt-9","attemptedPoisonRetry":true}`
	require.NoError(t, env.errs.Insert(ctx, &model.ReceiptError{
		ID:             "err-9",
		BizEventID:     "evt-9",
		MessagePayload: payload,
		SourceTopic:    "payment_events",
		Status:         model.ReceiptErrorStatusReviewed,
	}))

	result, err := env.service.RequeueReviewed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Succeeded)

	env.producer.mu.Lock()
	require.Len(t, env.producer.messages, 1)
	assert.Equal(t, payload, string(env.producer.messages[0]))
	assert.Equal(t, "payment_events", env.producer.topics[0])
	env.producer.mu.Unlock()
}

func TestRequeueReviewedReturnsRecordOnFailure(t *testing.T) {
	env := newHelpdeskEnv(t)
	ctx := context.Background()
	require.NoError(t, env.errs.Insert(ctx, &model.ReceiptError{
		ID:             "err-1",
		BizEventID:     "evt-1",
		MessagePayload: `[{"id":"evt-1"}]`,
		Status:         model.ReceiptErrorStatusReviewed,
	}))
	env.producer.err = errors.New("broker down")

	result, err := env.service.RequeueReviewed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	record, err := env.errs.GetByID(ctx, "err-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptErrorStatusToReview, record.Status)
	assert.Contains(t, record.MessageError, "broker down")
}
