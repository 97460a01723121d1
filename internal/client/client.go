package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"capstan/internal/api"
	"capstan/internal/backoff"
)

const (
	defaultHTTPTimeout   = 30 * time.Second
	defaultRetryAttempts = 3
	defaultRetryBase     = 500 * time.Millisecond
	defaultRetryMax      = 15 * time.Second
	apiPrefix            = "/api/v1"
)

// Config captures the runtime settings required to talk to the orchestrator.
type Config struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
	RetryAttempts  int
	RetryBase      time.Duration
	RetryMax       time.Duration
	Headers        map[string]string
}

// HTTPDoer is the transport surface the client depends on. *http.Client
// satisfies it; tests substitute fakes.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client issues REST calls against the orchestrator API with automatic
// retries for transient failures.
type Client struct {
	cfg     Config
	baseURL string
	doer    HTTPDoer
	logger  *slog.Logger

	retryAttempts int
	strategy      backoff.Strategy
	sleeper       func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP transport.
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.doer = doer
		}
	}
}

// WithLogger attaches a logger for retry visibility.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		if sleeper != nil {
			c.sleeper = sleeper
		}
	}
}

// WithJitter overrides the backoff jitter source (useful for tests).
func WithJitter(jitter func() time.Duration) Option {
	return func(c *Client) {
		c.strategy.Jitter = jitter
	}
}

// New constructs an orchestrator client from the supplied configuration.
func New(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("client: base url required")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if !strings.HasSuffix(base, apiPrefix) {
		base += apiPrefix
	}

	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	attempts := defaultRetryAttempts
	if cfg.RetryAttempts > 0 {
		attempts = cfg.RetryAttempts
	}
	strategy := backoff.Strategy{Base: defaultRetryBase, Max: defaultRetryMax}
	if cfg.RetryBase > 0 {
		strategy.Base = cfg.RetryBase
	}
	if cfg.RetryMax > 0 {
		strategy.Max = cfg.RetryMax
	}

	c := &Client{
		cfg:           cfg,
		baseURL:       base,
		doer:          &http.Client{Timeout: timeout},
		logger:        slog.Default(),
		retryAttempts: attempts,
		strategy:      strategy,
		sleeper:       time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do issues one API call, retrying transient failures, and decodes the
// success envelope's data into out when out is non-nil.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: encode body: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return cancelledErr(err, lastErr, attempt-1)
		}

		data, err := c.doOnce(ctx, method, path, encoded)
		if err == nil {
			if out == nil || len(data) == 0 {
				return nil
			}
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("client: decode response: %w", err)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return lastErr
		}
		if attempt == c.retryAttempts {
			return &RetriesExhaustedError{Attempts: attempt, Last: lastErr}
		}
		if cErr := ctx.Err(); cErr != nil {
			return cancelledErr(cErr, lastErr, attempt)
		}
		delay := c.delayFor(err, attempt)
		c.logger.Debug("retrying request",
			"method", method,
			"path", path,
			"attempt", attempt,
			"delay", delay,
			"error", err)
		c.sleeper(delay)
	}
	return lastErr
}

// cancelledErr surfaces a cancelled request as a cancellation, never as
// retry exhaustion. attempts counts the requests actually issued.
func cancelledErr(ctxErr, lastErr error, attempts int) error {
	if lastErr != nil {
		return fmt.Errorf("client: cancelled after %d attempts (last error: %v): %w", attempts, lastErr, ctxErr)
	}
	return ctxErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	endpoint := c.baseURL + path
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("client: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := strings.TrimSpace(c.cfg.Token); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for key, value := range c.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, classifyTransport(err, c.timeoutDuration())
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classifyTransport(err, c.timeoutDuration())
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyStatus(resp.StatusCode, resp.Header, payload, c.timeoutDuration())
	}

	var env api.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("client: decode envelope: %w", err)
	}
	if !env.Success {
		// A 2xx with a failure envelope is a server contract violation.
		return nil, classifyStatus(resp.StatusCode, resp.Header, payload, c.timeoutDuration())
	}
	return env.Data, nil
}

// delayFor picks the sleep before the next attempt. Rate limit hints from
// the server win over the computed backoff, clamped to the strategy ceiling.
func (c *Client) delayFor(err error, attempt int) time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind == KindRateLimited && apiErr.RetryAfter > 0 {
		return c.strategy.Cap(apiErr.RetryAfter)
	}
	return c.strategy.Delay(attempt)
}

func (c *Client) timeoutDuration() time.Duration {
	if hc, ok := c.doer.(*http.Client); ok && hc.Timeout > 0 {
		return hc.Timeout
	}
	if c.cfg.TimeoutSeconds > 0 {
		return time.Duration(c.cfg.TimeoutSeconds) * time.Second
	}
	return defaultHTTPTimeout
}
