package ingestion

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
)

type fakeTokenizer struct {
	mu    sync.Mutex
	err   error
	calls []string
}

func (f *fakeTokenizer) Tokenize(_ context.Context, fiscalCode string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, fiscalCode)
	return "tok-" + fiscalCode, nil
}

type publishedMessage struct {
	Topic string
	Key   string
	Value []byte
}

type fakeProducer struct {
	mu       sync.Mutex
	err      error
	messages []publishedMessage
}

func (f *fakeProducer) Publish(_ context.Context, topic string, key []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, publishedMessage{Topic: topic, Key: string(key), Value: value})
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func (f *fakeProducer) published() []publishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishedMessage, len(f.messages))
	copy(out, f.messages)
	return out
}

type testEnv struct {
	service  *Service
	receipts *store.MemoryReceiptStore
	carts    *store.MemoryCartStore
	events   *store.MemoryBizEventStore
	producer *fakeProducer
	tokens   *fakeTokenizer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		receipts: store.NewMemoryReceiptStore(),
		carts:    store.NewMemoryCartStore(),
		events:   store.NewMemoryBizEventStore(),
		producer: &fakeProducer{},
		tokens:   &fakeTokenizer{},
	}
	env.service = NewService(
		env.receipts, env.carts, env.events, env.tokens, env.producer, nil,
		Config{GenerationTopic: "receipt_generation"},
		logger.NopLogger(),
	)
	return env
}

func singleEvent(id string) *model.BizEvent {
	return &model.BizEvent{
		ID:          id,
		EventStatus: model.EventStatusDone,
		Debtor: &model.Subject{
			EntityUniqueIdentifier: "RSSMRA80A01H501U",
			FullName:               "Mario Rossi",
		},
		Creditor: &model.Creditor{CompanyName: "Comune di Roma"},
		PaymentInfo: &model.PaymentInfo{
			Amount:                "100.00",
			RemittanceInformation: "TARI 2024",
		},
		TransactionDetails: &model.TransactionDetails{
			Transaction: &model.Transaction{
				TransactionID: "tx-" + id,
				GrandTotal:    10000,
				Origin:        "IO",
				CreationDate:  "2024-05-01T10:00:00Z",
			},
			User: &model.User{FiscalCode: "VRDLGI85B02H501X"},
		},
	}
}

func cartEvent(id, txID string, totalNotice int, amountCents int64) *model.BizEvent {
	ev := singleEvent(id)
	ev.PaymentInfo.TotalNotice = fmt.Sprintf("%d", totalNotice)
	ev.PaymentInfo.Amount = fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100)
	ev.TransactionDetails.Transaction.TransactionID = txID
	return ev
}

func TestProcessSingleEvent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, singleEvent("evt-1")))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, receipt)

	assert.Equal(t, model.ReceiptStatusInserted, receipt.Status)
	assert.Equal(t, "evt-1", receipt.EventID)
	assert.NotEqual(t, "evt-1", receipt.ID, "receipt id must not collide with the event id")
	assert.Equal(t, "tok-RSSMRA80A01H501U", receipt.EventData.DebtorFiscalCode)
	assert.Equal(t, "tok-VRDLGI85B02H501X", receipt.EventData.PayerFiscalCode)
	assert.Equal(t, "100,00", receipt.EventData.Amount)
	require.Len(t, receipt.EventData.Cart, 1)
	assert.Equal(t, "Comune di Roma", receipt.EventData.Cart[0].PayeeName)
	assert.Equal(t, "TARI 2024", receipt.EventData.Cart[0].Subject)

	msgs := env.producer.published()
	require.Len(t, msgs, 1)
	assert.Equal(t, "receipt_generation", msgs[0].Topic)
	assert.Equal(t, "evt-1", msgs[0].Key)

	events, err := model.DecodeQueueMessage(msgs[0].Value)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)

	stored, err := env.events.GetByID(ctx, "evt-1")
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestProcessEventIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, singleEvent("evt-1")))
	require.NoError(t, env.service.ProcessEvent(ctx, singleEvent("evt-1")))

	assert.Len(t, env.producer.published(), 1, "redelivery must not enqueue twice")
}

func TestProcessEventQueueFailure(t *testing.T) {
	env := newTestEnv(t)
	env.producer.err = fmt.Errorf("broker down")
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, singleEvent("evt-1")))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, receipt, "receipt must be saved even when the queue is down")
	assert.Equal(t, model.ReceiptStatusNotQueueSent, receipt.Status)
	require.NotNil(t, receipt.ReasonErr)
	assert.Equal(t, model.ReasonCodeQueue, receipt.ReasonErr.Code)
}

func TestProcessEventTokenizerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.tokens.err = fmt.Errorf("vault unavailable")
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, singleEvent("evt-1")))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, model.ReceiptStatusFailed, receipt.Status)
	require.NotNil(t, receipt.ReasonErr)
	assert.Equal(t, model.ReasonCodeTokenizerIO, receipt.ReasonErr.Code)
	assert.Empty(t, env.producer.published(), "failed receipts must not reach the generator")
}

func TestProcessEventDiscarded(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := singleEvent("evt-1")
	ev.EventStatus = "CREATED"
	require.NoError(t, env.service.ProcessEvent(ctx, ev))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Nil(t, receipt)
	assert.Empty(t, env.producer.published())
}

func TestAnonymousDebtorWithAuthenticatedPayer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	ev := singleEvent("evt-1")
	ev.Debtor.EntityUniqueIdentifier = model.FiscalCodeAnonymous
	require.NoError(t, env.service.ProcessEvent(ctx, ev))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, model.FiscalCodeAnonymous, receipt.EventData.DebtorFiscalCode)
	assert.Equal(t, "tok-VRDLGI85B02H501X", receipt.EventData.PayerFiscalCode)
}

func TestCartCollectsUntilComplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-a", "tx-cart", 2, 4000)))

	cart, err := env.carts.Get(ctx, "tx-cart")
	require.NoError(t, err)
	require.NotNil(t, cart)
	assert.Equal(t, model.CartStatusWaitingForBizEvent, cart.Status)
	assert.Len(t, cart.Payload.Payments, 1)
	assert.Empty(t, env.producer.published(), "incomplete cart must not enqueue")

	receipt, err := env.receipts.GetByEventID(ctx, "tx-cart")
	require.NoError(t, err)
	assert.Nil(t, receipt)

	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-b", "tx-cart", 2, 6000)))

	cart, err = env.carts.Get(ctx, "tx-cart")
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusInserted, cart.Status)
	assert.Len(t, cart.Payload.Payments, 2)

	receipt, err = env.receipts.GetByEventID(ctx, "tx-cart")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, model.ReceiptStatusInserted, receipt.Status)
	assert.True(t, receipt.IsCart)
	require.Len(t, receipt.EventData.Cart, 2)

	msgs := env.producer.published()
	require.Len(t, msgs, 1)
	events, err := model.DecodeQueueMessage(msgs[0].Value)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "evt-a", events[0].ID)
	assert.Equal(t, "evt-b", events[1].ID)
}

func TestCartOrderIndependence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-b", "tx-cart", 2, 6000)))
	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-a", "tx-cart", 2, 4000)))

	receipt, err := env.receipts.GetByEventID(ctx, "tx-cart")
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Len(t, receipt.EventData.Cart, 2)

	msgs := env.producer.published()
	require.Len(t, msgs, 1)
	events, err := model.DecodeQueueMessage(msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, "evt-b", events[0].ID, "queue order follows arrival order")
	assert.Equal(t, "evt-a", events[1].ID)
}

func TestCartRedeliveredEventNotDuplicated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-a", "tx-cart", 3, 1000)))
	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-a", "tx-cart", 3, 1000)))

	cart, err := env.carts.Get(ctx, "tx-cart")
	require.NoError(t, err)
	require.NotNil(t, cart)
	assert.Len(t, cart.Payload.Payments, 1, "redelivered event must not be counted twice")
	assert.Equal(t, model.CartStatusWaitingForBizEvent, cart.Status)
}

func TestCartCompletionIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-a", "tx-cart", 2, 4000)))
	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-b", "tx-cart", 2, 6000)))
	require.NoError(t, env.service.ProcessEvent(ctx, cartEvent("evt-b", "tx-cart", 2, 6000)))

	assert.Len(t, env.producer.published(), 1, "completed cart must enqueue exactly once")
}
