package generator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
	"receipthub/pkg/retry"
)

type fakeRenderer struct {
	mu      sync.Mutex
	err     error
	renders []TemplateData
}

func (f *fakeRenderer) Render(_ context.Context, data TemplateData) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.renders = append(f.renders, data)
	return []byte("%PDF-fake"), nil
}

func (f *fakeRenderer) rendered() []TemplateData {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TemplateData, len(f.renders))
	copy(out, f.renders)
	return out
}

type fakeProducer struct {
	mu       sync.Mutex
	err      error
	messages [][]byte
}

func (f *fakeProducer) Publish(_ context.Context, _ string, _ []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	f.messages = append(f.messages, copied)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

type genEnv struct {
	service  *Service
	receipts *store.MemoryReceiptStore
	blobs    *store.MemoryBlobStore
	renderer *fakeRenderer
	producer *fakeProducer
}

func newGenEnv(t *testing.T, maxRetries int) *genEnv {
	t.Helper()
	env := &genEnv{
		receipts: store.NewMemoryReceiptStore(),
		blobs:    store.NewMemoryBlobStore(),
		renderer: &fakeRenderer{},
		producer: &fakeProducer{},
	}
	env.service = NewService(
		env.receipts, env.blobs, env.renderer, env.producer,
		"receipt_generation", maxRetries, logger.NopLogger(),
	)
	return env
}

func storedReceipt(t *testing.T, env *genEnv, payerToken string) *model.Receipt {
	t.Helper()
	receipt := &model.Receipt{
		ID:      "rcpt-1",
		EventID: "evt-1",
		Status:  model.ReceiptStatusInserted,
		EventData: &model.EventData{
			DebtorFiscalCode:        "tok-debtor",
			PayerFiscalCode:         payerToken,
			Amount:                  "100,00",
			TransactionCreationDate: "2024-05-01T10:00:00Z",
			Cart: []model.CartItem{
				{PayeeName: "Comune di Roma", Subject: "TARI 2024"},
			},
		},
	}
	require.NoError(t, env.receipts.Insert(context.Background(), receipt))
	return receipt
}

func queuePayload(t *testing.T) []byte {
	t.Helper()
	raw, err := model.EncodeQueueMessage([]model.BizEvent{{
		ID: "evt-1",
		PaymentInfo: &model.PaymentInfo{
			Amount:        "100.00",
			PaymentMethod: "CP",
		},
		TransactionDetails: &model.TransactionDetails{
			Transaction: &model.Transaction{
				TransactionID: "tx-1",
				RRN:           "rrn-1",
				PSP:           &model.PSP{BusinessName: "Test PSP"},
			},
		},
	}})
	require.NoError(t, err)
	return raw
}

func TestGenerateSingleDocumentWhenPayerEqualsDebtor(t *testing.T) {
	env := newGenEnv(t, 5)
	storedReceipt(t, env, "tok-debtor")
	ctx := context.Background()

	require.NoError(t, env.service.ProcessMessage(ctx, queuePayload(t)))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusGenerated, receipt.Status)
	assert.NotZero(t, receipt.GeneratedAt)
	require.NotNil(t, receipt.MdAttach)
	assert.NotEmpty(t, receipt.MdAttach.URL)
	assert.Nil(t, receipt.MdAttachPayer, "identical payer and debtor need one document")

	renders := env.renderer.rendered()
	require.Len(t, renders, 1)
	assert.False(t, renders[0].OnlyDebtor, "the single document must be the complete one")
}

func TestGenerateTwoDocumentsWhenPayerDiffers(t *testing.T) {
	env := newGenEnv(t, 5)
	storedReceipt(t, env, "tok-payer")
	ctx := context.Background()

	require.NoError(t, env.service.ProcessMessage(ctx, queuePayload(t)))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusGenerated, receipt.Status)
	require.NotNil(t, receipt.MdAttach)
	require.NotNil(t, receipt.MdAttachPayer)
	assert.NotEqual(t, receipt.MdAttach.Name, receipt.MdAttachPayer.Name)

	renders := env.renderer.rendered()
	require.Len(t, renders, 2)
	assert.True(t, renders[0].OnlyDebtor, "debtor rendition is partial when payer differs")
	assert.False(t, renders[1].OnlyDebtor)
	require.NotNil(t, renders[1].User)
	assert.Equal(t, "tok-payer", renders[1].User.TaxCode)
}

func TestGenerateDebtorOnlyWithoutPayer(t *testing.T) {
	env := newGenEnv(t, 5)
	storedReceipt(t, env, "")
	ctx := context.Background()

	require.NoError(t, env.service.ProcessMessage(ctx, queuePayload(t)))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusGenerated, receipt.Status)
	require.NotNil(t, receipt.MdAttach)
	assert.Nil(t, receipt.MdAttachPayer)
}

func TestSkipWhenDocumentsAlreadyAttached(t *testing.T) {
	env := newGenEnv(t, 5)
	receipt := storedReceipt(t, env, "tok-debtor")
	receipt.MdAttach = &model.ReceiptMetadata{Name: "rcpt-1-debtor.pdf", URL: "memory://rcpt-1-debtor.pdf"}
	receipt.Status = model.ReceiptStatusGenerated
	require.NoError(t, env.receipts.Update(context.Background(), receipt))

	require.NoError(t, env.service.ProcessMessage(context.Background(), queuePayload(t)))
	assert.Empty(t, env.renderer.rendered(), "attached documents must not be regenerated")
}

func TestGenerationFailureRequeuesVerbatim(t *testing.T) {
	env := newGenEnv(t, 5)
	storedReceipt(t, env, "")
	env.renderer.err = &RenderError{StatusCode: 503, Message: "engine down"}
	ctx := context.Background()

	raw := queuePayload(t)
	require.NoError(t, env.service.ProcessMessage(ctx, raw))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusRetry, receipt.Status)
	assert.Equal(t, 1, receipt.NumRetry)
	require.NotNil(t, receipt.ReasonErr)
	assert.Equal(t, 503, receipt.ReasonErr.Code)

	env.producer.mu.Lock()
	defer env.producer.mu.Unlock()
	require.Len(t, env.producer.messages, 1)
	assert.Equal(t, raw, env.producer.messages[0], "requeued payload must match the original byte for byte")
}

func TestGenerationBudgetExhausted(t *testing.T) {
	env := newGenEnv(t, 2)
	receipt := storedReceipt(t, env, "")
	receipt.NumRetry = 2
	receipt.Status = model.ReceiptStatusRetry
	require.NoError(t, env.receipts.Update(context.Background(), receipt))
	env.renderer.err = &RenderError{StatusCode: 500, Message: "engine down"}

	require.NoError(t, env.service.ProcessMessage(context.Background(), queuePayload(t)))

	updated, err := env.receipts.GetByEventID(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusFailed, updated.Status)
	assert.Equal(t, 3, updated.NumRetry, "every failed attempt must be counted, the exhausting one included")

	env.producer.mu.Lock()
	defer env.producer.mu.Unlock()
	assert.Empty(t, env.producer.messages, "exhausted receipts must not be requeued")
}

func TestFirstFailureReasonPreserved(t *testing.T) {
	env := newGenEnv(t, 5)
	storedReceipt(t, env, "")
	ctx := context.Background()

	env.renderer.err = &RenderError{StatusCode: 503, Message: "first outage"}
	require.NoError(t, env.service.ProcessMessage(ctx, queuePayload(t)))

	env.renderer.err = &RenderError{StatusCode: 400, Message: "second failure"}
	require.NoError(t, env.service.ProcessMessage(ctx, queuePayload(t)))

	receipt, err := env.receipts.GetByEventID(ctx, "evt-1")
	require.NoError(t, err)
	require.NotNil(t, receipt.ReasonErr)
	assert.Equal(t, 503, receipt.ReasonErr.Code, "the first recorded reason wins")
	assert.Contains(t, receipt.ReasonErr.Message, "first outage")
	assert.Equal(t, 2, receipt.NumRetry)
}

func TestPartialAttemptKeepsDebtorDocument(t *testing.T) {
	env := newGenEnv(t, 5)
	receipt := storedReceipt(t, env, "tok-payer")
	receipt.MdAttach = &model.ReceiptMetadata{Name: "rcpt-1-debtor.pdf", URL: "memory://rcpt-1-debtor.pdf"}
	require.NoError(t, env.receipts.Update(context.Background(), receipt))

	require.NoError(t, env.service.ProcessMessage(context.Background(), queuePayload(t)))

	renders := env.renderer.rendered()
	require.Len(t, renders, 1, "only the missing payer rendition is generated")
	require.NotNil(t, renders[0].User)

	updated, err := env.receipts.GetByEventID(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, model.ReceiptStatusGenerated, updated.Status)
	require.NotNil(t, updated.MdAttachPayer)
}

func TestUndecodableMessageIsFatal(t *testing.T) {
	env := newGenEnv(t, 5)

	err := env.service.ProcessMessage(context.Background(), []byte("not json"))
	require.Error(t, err)

	var fatal retry.FatalError
	assert.ErrorAs(t, err, &fatal, "undecodable payloads must be fatal, not retried")
}

func TestMissingReceiptIsRetried(t *testing.T) {
	env := newGenEnv(t, 5)

	err := env.service.ProcessMessage(context.Background(), queuePayload(t))
	require.Error(t, err)

	var fatal retry.FatalError
	assert.False(t, errors.As(err, &fatal), "a not-yet-visible receipt must stay retryable")
}
