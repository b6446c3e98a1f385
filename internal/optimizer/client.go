package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/starford/basket/internal/apperr"
)

// maxResponseBytes bounds how much of an optimizer response is read.
const maxResponseBytes = 4 << 20

// Client issues optimize calls.
type Client interface {
	Optimize(ctx context.Context, req Request) (*Response, error)
}

// CredentialSource supplies the bearer credential for optimizer calls.
// Token lifecycle is owned by the caller.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
}

// StaticToken is a CredentialSource with a fixed token and no refresh.
type StaticToken string

// Token returns the fixed token.
func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// Refresh is a no-op.
func (s StaticToken) Refresh(context.Context) error { return nil }

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	URL           string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// HTTPClient calls the optimizer over HTTP with JSON bodies.
type HTTPClient struct {
	url     string
	http    *http.Client
	creds   CredentialSource
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewHTTPClient creates an HTTPClient. A zero RatePerSecond disables pacing.
func NewHTTPClient(cfg HTTPConfig, creds CredentialSource, logger *slog.Logger) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if creds == nil {
		creds = StaticToken("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		url:     cfg.URL,
		http:    &http.Client{Timeout: cfg.Timeout},
		creds:   creds,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}
}

// Optimize sends req and decodes the response. A 401 triggers one credential
// refresh and one retry; every request, the retry included, waits on the limiter. A success:false body is returned as *apperr.RejectedError.
func (c *HTTPClient) Optimize(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("optimizer: encode request: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrTransportFailure, err)
	}

	resp, status, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		c.logger.Info("optimizer: unauthorized, refreshing credentials")
		if err := c.creds.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("%w: refresh credentials: %w", apperr.ErrTransportFailure, err)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", apperr.ErrTransportFailure, err)
		}
		resp, status, err = c.post(ctx, body)
		if err != nil {
			return nil, err
		}
	}
	if status < 200 || status > 299 {
		if resp != nil && !resp.Success && resp.Message != "" && status < 500 {
			return nil, &apperr.RejectedError{Message: resp.Message}
		}
		return nil, fmt.Errorf("%w: status %d", apperr.ErrTransportFailure, status)
	}
	if resp == nil {
		return nil, fmt.Errorf("%w: empty response", apperr.ErrTransportFailure)
	}
	if !resp.Success {
		return nil, &apperr.RejectedError{Message: resp.Message}
	}
	return resp, nil
}

// post performs one round trip. A body that fails to decode is only an error on 2xx.
func (c *HTTPClient) post(ctx context.Context, body []byte) (*Response, int, error) {
	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: credentials: %w", apperr.ErrTransportFailure, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %w", apperr.ErrTransportFailure, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", apperr.ErrTransportFailure, err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("%w: read body: %w", apperr.ErrTransportFailure, err)
	}
	c.logger.Debug("optimizer: response",
		slog.Int("status", httpResp.StatusCode),
		slog.Int("bytes", len(raw)),
		slog.Duration("elapsed", time.Since(start)))

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		if httpResp.StatusCode >= 200 && httpResp.StatusCode <= 299 {
			return nil, httpResp.StatusCode, fmt.Errorf("%w: decode response: %w", apperr.ErrTransportFailure, err)
		}
		return nil, httpResp.StatusCode, nil
	}
	return &resp, httpResp.StatusCode, nil
}
