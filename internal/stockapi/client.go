// Package stockapi fetches stock snapshots from the dashboard's data service.
//
// The service exposes a single endpoint:
//
//	GET {origin}/api/stocks/{symbol}
//
// Each FetchStock call issues exactly one request. There is no retry and no
// cache; a non-2xx status is reported as a *StatusError.
package stockapi

import (
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

	"github.com/seenimoa/stockdash/internal/metrics"
	"github.com/seenimoa/stockdash/pkg/models"
)

// DefaultBaseURL is the data service origin used when none is configured.
const DefaultBaseURL = "http://localhost:8080"

// DefaultTimeout bounds a single fetch.
const DefaultTimeout = 30 * time.Second

const (
	defaultUserAgent = "stockdash"
	maxBodyBytes     = 4 << 20
	maxErrorBody     = 1024
)

// Client talks to the data service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	userAgent  string
	log        *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics records fetch outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewClient creates a client for the service at baseURL.
// An empty baseURL falls back to DefaultBaseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		userAgent:  defaultUserAgent,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured origin without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// StockURL returns the request URL for symbol. The symbol is path-escaped,
// so "BRK/A" stays a single path segment.
func (c *Client) StockURL(symbol string) string {
	return c.baseURL + "/api/stocks/" + url.PathEscape(symbol)
}

// FetchStock retrieves the snapshot for symbol.
func (c *Client) FetchStock(ctx context.Context, symbol string) (*models.StockSnapshot, error) {
	if symbol == "" {
		return nil, ErrEmptySymbol
	}

	start := time.Now()
	snap, err := c.fetch(ctx, symbol)
	elapsed := time.Since(start)
	c.metrics.ObserveFetch(outcome(err), elapsed)

	if err != nil {
		c.log.Warn("stock fetch failed", "symbol", symbol, "duration", elapsed, "error", err)
		return nil, err
	}
	c.log.Debug("stock fetched", "symbol", symbol, "duration", elapsed)
	return snap, nil
}

func (c *Client) fetch(ctx context.Context, symbol string) (*models.StockSnapshot, error) {
	body, err := c.doGet(ctx, symbol)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var snap *models.StockSnapshot
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	if err := dec.Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedResponse, symbol, err)
	}
	if snap == nil {
		return nil, fmt.Errorf("%w: %s: null body", ErrMalformedResponse, symbol)
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: %s: trailing data after snapshot", ErrMalformedResponse, symbol)
	}
	return snap, nil
}

// doGet performs the GET and returns the body of a 2xx response.
// The caller closes the returned ReadCloser.
func (c *Client) doGet(ctx context.Context, symbol string) (io.ReadCloser, error) {
	target := c.StockURL(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: target, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Symbol:     symbol,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(b),
		}
	}
	return resp.Body, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrStockNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, ErrTransport):
		return metrics.OutcomeTransport
	default:
		return metrics.OutcomeMalformed
	}
}
