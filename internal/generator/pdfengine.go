package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"receipthub/internal/config"
	"receipthub/internal/logger"
	"receipthub/internal/model"
	"receipthub/pkg/circuitbreaker"
)

// Renderer produces the PDF bytes for one receipt rendition.
type Renderer interface {
	Render(ctx context.Context, data TemplateData) ([]byte, error)
}

// RenderError carries the engine HTTP status so the receipt records a
// precise reason code.
type RenderError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("pdf engine error (status %d): %s: %v", e.StatusCode, e.Message, e.Cause)
	}
	return fmt.Sprintf("pdf engine error (status %d): %s", e.StatusCode, e.Message)
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// ReasonCode maps the failure to the code stored on the receipt.
func (e *RenderError) ReasonCode() int {
	return model.PDFEngineReasonCode(e.StatusCode)
}

// PDFEngineClient calls the external rendering engine. The circuit breaker
// sheds load while the engine is down so queued receipts fail fast into
// the retry path instead of piling up on timeouts.
type PDFEngineClient struct {
	engineURL  string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.Wrapper
	logger     logger.Logger
}

func NewPDFEngineClient(cfg config.GeneratorConfig, cbCfg config.CircuitBreakerConfig, log logger.Logger) *PDFEngineClient {
	timeout := cfg.TimeoutSeconds * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	client := &PDFEngineClient{
		engineURL:  cfg.EngineURL,
		apiKey:     cfg.EngineAPIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}

	if cbCfg.Enabled {
		breakerCfg := circuitbreaker.DefaultConfig("pdf-engine")
		if cbCfg.MaxRequests > 0 {
			breakerCfg.MaxRequests = cbCfg.MaxRequests
		}
		if cbCfg.Interval > 0 {
			breakerCfg.Interval = cbCfg.Interval
		}
		if cbCfg.Timeout > 0 {
			breakerCfg.Timeout = cbCfg.Timeout
		}
		client.breaker = circuitbreaker.NewWrapper(breakerCfg)
	}

	return client
}

func (c *PDFEngineClient) Render(ctx context.Context, data TemplateData) ([]byte, error) {
	if c.breaker == nil {
		return c.renderOnce(ctx, data)
	}

	result, err := c.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return c.renderOnce(ctx, data)
	})
	if err != nil {
		c.breaker.RecordRequest(false)
		if _, ok := err.(*RenderError); !ok {
			// Breaker-open and context errors have no HTTP status.
			return nil, &RenderError{StatusCode: 0, Message: "engine unavailable", Cause: err}
		}
		return nil, err
	}

	c.breaker.RecordRequest(true)
	return result.([]byte), nil
}

func (c *PDFEngineClient) renderOnce(ctx context.Context, data TemplateData) ([]byte, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, &RenderError{StatusCode: 0, Message: "failed to encode template", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.engineURL+"/generate-pdf", bytes.NewReader(body))
	if err != nil {
		return nil, &RenderError{StatusCode: 0, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &RenderError{StatusCode: 0, Message: "engine request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &RenderError{
			StatusCode: resp.StatusCode,
			Message:    string(msg),
		}
	}

	pdf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RenderError{StatusCode: 0, Message: "failed to read engine response", Cause: err}
	}
	if len(pdf) == 0 {
		return nil, &RenderError{StatusCode: 0, Message: "engine returned empty document"}
	}

	return pdf, nil
}
