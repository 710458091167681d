// Package httpx is the HTTP client shared by every source adapter. It owns
// per-request timeouts, retry with exponential backoff, request throttling and
// the mapping of transport failures onto the domain error taxonomy.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"program_catalog/internal/domain"
)

const (
	userAgent   = "ProgramCatalogSync/1.0"
	maxBodySize = 16 << 20
)

// Config holds client configuration for one source.
type Config struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RatePerSecond  float64
	// Session keeps cookies between requests, as scraped boards expect.
	Session bool
}

// Client is safe for concurrent use. The underlying http.Client is acquired
// lazily and dropped by Release.
type Client struct {
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger

	mu   sync.Mutex
	http *http.Client
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Client{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// Get performs a GET with retries and returns the response body.
func (c *Client) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	var body []byte
	var err error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		body, err = c.do(ctx, url, header)
		if err == nil {
			return body, nil
		}

		if !isTransient(err) || attempt == c.cfg.MaxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", domain.ErrSourceUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
	}

	if c.cfg.MaxAttempts > 1 && isTransient(err) {
		return nil, fmt.Errorf("after %d attempts: %w", c.cfg.MaxAttempts, err)
	}
	return nil, err
}

// GetJSON performs Get and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, out any) error {
	body, err := c.Get(ctx, url, header)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrParse, err)
	}
	return nil
}

// Release drops idle connections and any session cookies.
func (c *Client) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http != nil {
		c.http.CloseIdleConnections()
		c.http = nil
	}
	return nil
}

func (c *Client) client() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.http == nil {
		hc := &http.Client{Timeout: c.cfg.Timeout}
		if c.cfg.Session {
			// cookiejar.New only fails on a bad PublicSuffixList.
			jar, _ := cookiejar.New(nil)
			hc.Jar = jar
		}
		c.http = hc
	}
	return c.http
}

func (c *Client) do(ctx context.Context, url string, header http.Header) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: throttle: %w", domain.ErrSourceUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrSourceUnavailable, err)
	}

	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, transient{fmt.Errorf("%w: execute request: %w", domain.ErrSourceUnavailable, err)}
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, transient{fmt.Errorf("%w: read body: %w", domain.ErrSourceUnavailable, err)}
	}
	return body, nil
}

func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		return &RateLimitError{RetryAfter: retryAfter(resp.Header)}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: authentication failed: status %d", domain.ErrSourceUnavailable, resp.StatusCode)
	case resp.StatusCode >= 500:
		return transient{fmt.Errorf("%w: unexpected status: %d", domain.ErrSourceUnavailable, resp.StatusCode)}
	default:
		return fmt.Errorf("%w: unexpected status: %d", domain.ErrSourceUnavailable, resp.StatusCode)
	}
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if c.cfg.MaxBackoff > 0 && backoff > c.cfg.MaxBackoff {
		backoff = c.cfg.MaxBackoff
	}
	return backoff
}

// RateLimitError is returned when a provider refuses a request for quota
// reasons. It matches domain.ErrRateLimited.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: retry after %s", domain.ErrRateLimited, e.RetryAfter)
	}
	return domain.ErrRateLimited.Error()
}

func (e *RateLimitError) Is(target error) bool {
	return target == domain.ErrRateLimited
}

func retryAfter(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return 0
}

// transient marks failures worth retrying within a single fetch.
type transient struct{ err error }

func (t transient) Error() string { return t.err.Error() }
func (t transient) Unwrap() error { return t.err }

func isTransient(err error) bool {
	var t transient
	return errors.As(err, &t)
}
