package tokenizer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receipthub/internal/config"
	"receipthub/internal/logger"
	"receipthub/internal/model"
)

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	return NewClient(config.TokenizerConfig{
		BaseURL: serverURL,
		APIKey:  "test-key",
		Retry: config.RetryConfig{
			MaxAttempts:     3,
			InitialInterval: time.Millisecond,
			MaxInterval:     5 * time.Millisecond,
			Multiplier:      2.0,
		},
	}, logger.NopLogger())
}

func TestTokenizeSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/tokens", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"token":"tok-123"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	token, err := client.Tokenize(context.Background(), "RSSMRA80A01H501U")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestTokenizeAnonymousPassthrough(t *testing.T) {
	client := newTestClient(t, "http://unreachable.invalid")
	token, err := client.Tokenize(context.Background(), model.FiscalCodeAnonymous)
	require.NoError(t, err)
	assert.Equal(t, model.FiscalCodeAnonymous, token)
}

func TestTokenizeClientErrorIsFatal(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Tokenize(context.Background(), "not-a-code")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "client errors must not be retried")
	assert.Equal(t, model.ReasonCodeTokenizerMapping, ReasonCodeOf(err))
}

func TestTokenizeServerErrorIsRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"token":"tok-after-retry"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	token, err := client.Tokenize(context.Background(), "RSSMRA80A01H501U")
	require.NoError(t, err)
	assert.Equal(t, "tok-after-retry", token)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestTokenizeExhaustedRetriesReportsIOReason(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Tokenize(context.Background(), "RSSMRA80A01H501U")
	require.Error(t, err)
	assert.Equal(t, model.ReasonCodeTokenizerIO, ReasonCodeOf(err))
}

func TestTokenizeEmptyTokenRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	_, err := client.Tokenize(context.Background(), "RSSMRA80A01H501U")
	require.Error(t, err)
	assert.Equal(t, model.ReasonCodeTokenizerMapping, ReasonCodeOf(err))
}
