// Package tokenizer replaces fiscal codes with opaque tokens before any
// personal identifier is persisted. Stored receipts only ever carry
// tokens; the mapping lives in the external vault service.
package tokenizer

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"receipthub/internal/config"
	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/pkg/metrics"
	"receipthub/pkg/retry"
)

type Tokenizer interface {
	Tokenize(ctx context.Context, fiscalCode string) (string, error)
}

type tokenRequest struct {
	PII string `json:"pii"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Error carries the reason code recorded on the receipt when
// tokenization fails.
type Error struct {
	ReasonCode int
	Message    string
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tokenizer error %d: %s: %v", e.ReasonCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("tokenizer error %d: %s", e.ReasonCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
	logger     logger.Logger
}

func NewClient(cfg config.TokenizerConfig, log logger.Logger) *Client {
	timeout := cfg.TimeoutSeconds * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialInterval > 0 {
		policy.InitialInterval = cfg.Retry.InitialInterval
	}
	if cfg.Retry.MaxInterval > 0 {
		policy.MaxInterval = cfg.Retry.MaxInterval
	}
	if cfg.Retry.Multiplier > 0 {
		policy.Multiplier = cfg.Retry.Multiplier
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		logger:     log,
	}
}

// Tokenize exchanges a fiscal code for its token. The anonymous
// placeholder passes through untouched: it identifies nobody. Transport
// and server failures are retried; a rejected identifier is final.
func (c *Client) Tokenize(ctx context.Context, fiscalCode string) (string, error) {
	if fiscalCode == model.FiscalCodeAnonymous {
		return model.FiscalCodeAnonymous, nil
	}

	var token string
	start := time.Now()
	err := retry.Retry(ctx, c.policy, func() error {
		var attemptErr error
		token, attemptErr = c.tokenizeOnce(ctx, fiscalCode)
		return attemptErr
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.TokenizerRequestsTotal.WithLabelValues(status).Inc()
	metrics.ObserveTokenizerDuration(time.Since(start), status)

	return token, err
}

func (c *Client) tokenizeOnce(ctx context.Context, fiscalCode string) (string, error) {
	body, err := json.Marshal(tokenRequest{PII: fiscalCode})
	if err != nil {
		return "", retry.NewFatalError(&Error{
			ReasonCode: model.ReasonCodeTokenizerMapping,
			Message:    "failed to encode token request",
			Cause:      err,
		})
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/tokens", bytes.NewReader(body))
	if err != nil {
		return "", retry.NewFatalError(&Error{
			ReasonCode: model.ReasonCodeTokenizerIO,
			Message:    "failed to build token request",
			Cause:      err,
		})
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", retry.NewRetryableError(&Error{
			ReasonCode: model.ReasonCodeTokenizerIO,
			Message:    "token request failed",
			Cause:      err,
		})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", retry.NewRetryableError(&Error{
			ReasonCode: model.ReasonCodeTokenizerIO,
			Message:    "failed to read token response",
			Cause:      err,
		})
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", retry.NewFatalError(&Error{
			ReasonCode: model.ReasonCodeTokenizerMapping,
			Message:    fmt.Sprintf("identifier rejected with status %d: %s", resp.StatusCode, string(respBody)),
		})
	default:
		return "", retry.NewRetryableError(&Error{
			ReasonCode: model.ReasonCodeTokenizerIO,
			Message:    fmt.Sprintf("tokenizer returned status %d", resp.StatusCode),
		})
	}

	var tr tokenResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return "", retry.NewFatalError(&Error{
			ReasonCode: model.ReasonCodeTokenizerMapping,
			Message:    "failed to decode token response",
			Cause:      err,
		})
	}
	if tr.Token == "" {
		return "", retry.NewFatalError(&Error{
			ReasonCode: model.ReasonCodeTokenizerMapping,
			Message:    "tokenizer returned empty token",
		})
	}

	return tr.Token, nil
}

// ReasonCodeOf extracts the reason code from a tokenizer failure, falling
// back to the generic I/O code.
func ReasonCodeOf(err error) int {
	var te *Error
	if stderrors.As(err, &te) {
		return te.ReasonCode
	}
	return model.ReasonCodeTokenizerIO
}
