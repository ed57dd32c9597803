package poison

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/internal/store"
)

type fakeProducer struct {
	mu       sync.Mutex
	err      error
	messages [][]byte
	topics   []string
}

func (f *fakeProducer) Publish(_ context.Context, topic string, _ []byte, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	copied := make([]byte, len(value))
	copy(copied, value)
	f.messages = append(f.messages, copied)
	f.topics = append(f.topics, topic)
	return nil
}

func (f *fakeProducer) Close() error { return nil }

func poisonPayload(t *testing.T, attempted bool) []byte {
	t.Helper()
	raw, err := model.EncodeQueueMessage([]model.BizEvent{{
		ID:                   "evt-1",
		AttemptedPoisonRetry: attempted,
	}})
	require.NoError(t, err)
	return raw
}

func TestFirstPoisoningGetsOneRetry(t *testing.T) {
	errs := store.NewMemoryReceiptErrorStore()
	producer := &fakeProducer{}
	svc := NewService(errs, producer, "payment_events", "receipt_generation", logger.NopLogger())

	require.NoError(t, svc.ProcessMessage(context.Background(), poisonPayload(t, false)))

	producer.mu.Lock()
	defer producer.mu.Unlock()
	require.Len(t, producer.messages, 1)
	assert.Equal(t, "receipt_generation", producer.topics[0])

	events, err := model.DecodeQueueMessage(producer.messages[0])
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].AttemptedPoisonRetry, "the requeued message must carry the retry mark")

	page, err := errs.FindByStatus(context.Background(), model.ReceiptErrorStatusToReview, store.PageRequest{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "a first poisoning must not be parked")
}

func TestSecondPoisoningIsParkedForReview(t *testing.T) {
	errs := store.NewMemoryReceiptErrorStore()
	producer := &fakeProducer{}
	svc := NewService(errs, producer, "payment_events", "receipt_generation", logger.NopLogger())

	raw := poisonPayload(t, true)
	require.NoError(t, svc.ProcessMessage(context.Background(), raw))

	producer.mu.Lock()
	assert.Empty(t, producer.messages, "an already retried message must not be requeued again")
	producer.mu.Unlock()

	page, err := errs.FindByStatus(context.Background(), model.ReceiptErrorStatusToReview, store.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	parked := page.Items[0]
	assert.Equal(t, "evt-1", parked.BizEventID)
	assert.Equal(t, string(raw), parked.MessagePayload, "the payload must be preserved verbatim")
	assert.Equal(t, "receipt_generation", parked.SourceTopic)
	assert.NotZero(t, parked.InsertedAt)
}

func TestPoisonedIngestionEventRetriedToIngestionTopic(t *testing.T) {
	errs := store.NewMemoryReceiptErrorStore()
	producer := &fakeProducer{}
	svc := NewService(errs, producer, "payment_events", "receipt_generation", logger.NopLogger())

	raw, err := json.Marshal(&model.BizEvent{ID: "evt-7"})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessMessage(context.Background(), raw))

	producer.mu.Lock()
	defer producer.mu.Unlock()
	require.Len(t, producer.messages, 1)
	assert.Equal(t, "payment_events", producer.topics[0],
		"a single-event payload must go back to the ingestion topic")

	var ev model.BizEvent
	require.NoError(t, json.Unmarshal(producer.messages[0], &ev))
	assert.Equal(t, "evt-7", ev.ID)
	assert.True(t, ev.AttemptedPoisonRetry)
}

func TestTwicePoisonedIngestionEventParkedWithSourceTopic(t *testing.T) {
	errs := store.NewMemoryReceiptErrorStore()
	producer := &fakeProducer{}
	svc := NewService(errs, producer, "payment_events", "receipt_generation", logger.NopLogger())

	raw, err := json.Marshal(&model.BizEvent{ID: "evt-7", AttemptedPoisonRetry: true})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessMessage(context.Background(), raw))

	producer.mu.Lock()
	assert.Empty(t, producer.messages)
	producer.mu.Unlock()

	page, err := errs.FindByStatus(context.Background(), model.ReceiptErrorStatusToReview, store.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "evt-7", page.Items[0].BizEventID)
	assert.Equal(t, "payment_events", page.Items[0].SourceTopic)
	assert.Equal(t, string(raw), page.Items[0].MessagePayload)
}

func TestUndecodablePoisonIsParkedDirectly(t *testing.T) {
	errs := store.NewMemoryReceiptErrorStore()
	producer := &fakeProducer{}
	svc := NewService(errs, producer, "payment_events", "receipt_generation", logger.NopLogger())

	require.NoError(t, svc.ProcessMessage(context.Background(), []byte("garbage")))

	page, err := errs.FindByStatus(context.Background(), model.ReceiptErrorStatusToReview, store.PageRequest{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "garbage", page.Items[0].MessagePayload)
	assert.NotEmpty(t, page.Items[0].MessageError)
	assert.Empty(t, page.Items[0].BizEventID)
}

func TestRequeueFailureSurfacesError(t *testing.T) {
	errs := store.NewMemoryReceiptErrorStore()
	producer := &fakeProducer{err: errors.New("broker down")}
	svc := NewService(errs, producer, "payment_events", "receipt_generation", logger.NopLogger())

	err := svc.ProcessMessage(context.Background(), poisonPayload(t, false))
	require.Error(t, err, "a failed requeue must redeliver the poison message")
}
