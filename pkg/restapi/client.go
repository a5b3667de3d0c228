package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

// Metadata is the pagination block of a list response.
type Metadata struct {
	CurrentPage int `json:"current_page"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
	From        int `json:"from"`
	To          int `json:"to"`
}

// Page is one page of backend notifications.
type Page struct {
	Data        []notifications.APIRecord `json:"data"`
	Metadata    Metadata                  `json:"metadata"`
	UnreadCount int                       `json:"unread_count"`
}

// HasMore reports whether pages after this one exist.
func (p Page) HasMore() bool {
	return p.Metadata.CurrentPage < p.Metadata.LastPage
}

// Client is the backend notification client. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	timeout    time.Duration
	maxRetries int
	backoff    time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger for the Client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a backend client from cfg.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.Join(ErrInvalidBaseURL, err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, cfg.BaseURL)
	}

	c := &Client{
		base:  base,
		token: cfg.Token,
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger:     slog.Default(),
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("restapi"))
	return c, nil
}

// List fetches one page of notifications. Pages start at 1.
func (c *Client) List(ctx context.Context, page, perPage int) (Page, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}

	var out Page
	body, err := c.do(ctx, http.MethodGet, c.endpoint(q, "notifications"))
	if err != nil {
		return Page{}, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return Page{}, errors.Join(ErrDecode, err)
	}
	return out, nil
}

// ListAll walks every page up to maxPages, in backend order. A zero maxPages
// means no limit.
func (c *Client) ListAll(ctx context.Context, perPage, maxPages int) ([]notifications.APIRecord, error) {
	var all []notifications.APIRecord
	for page := 1; maxPages <= 0 || page <= maxPages; page++ {
		p, err := c.List(ctx, page, perPage)
		if err != nil {
			return all, err
		}
		all = append(all, p.Data...)
		if !p.HasMore() || len(p.Data) == 0 {
			break
		}
	}
	return all, nil
}

// MarkRead marks a backend notification as read.
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	_, err := c.do(ctx, http.MethodPatch, c.endpoint(nil, "notifications", id, "read"))
	return err
}

// Delete removes a backend notification.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}
	_, err := c.do(ctx, http.MethodDelete, c.endpoint(nil, "notifications", id))
	return err
}

func (c *Client) endpoint(q url.Values, segments ...string) string {
	u := c.base.JoinPath(segments...)
	if q != nil {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// do runs the request with retries and returns the response body of the
// first successful attempt.
func (c *Client) do(ctx context.Context, method, endpoint string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.nextInterval(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		body, status, err := c.attempt(ctx, method, endpoint)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil || isPermanent(status) {
			break
		}
		c.logger.LogAttrs(ctx, slog.LevelDebug, "backend request failed, retrying",
			logger.Method(method),
			logger.Attempt(attempt+1),
			logger.StatusCode(status),
			logger.Error(err),
		)
	}
	return nil, lastErr
}

func (c *Client) attempt(ctx context.Context, method, endpoint string) ([]byte, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("restapi: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, 0, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, 0, fmt.Errorf("%w: %w", ErrTemporaryFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	// 1MB is far above any page the backend serves.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read body: %w", ErrTemporaryFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.ReplaceAll(string(body), "\n", " ")
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		kind := ErrTemporaryFailure
		if isPermanent(resp.StatusCode) {
			kind = ErrPermanentFailure
		}
		return nil, resp.StatusCode, fmt.Errorf("%w: %s %s returned %d: %s", kind, method, req.URL.Path, resp.StatusCode, msg)
	}
	return body, resp.StatusCode, nil
}

// nextInterval doubles the base backoff per attempt, capped at 30s.
func (c *Client) nextInterval(attempt int) time.Duration {
	d := float64(c.backoff) * math.Pow(2, float64(attempt-1))
	if max := float64(30 * time.Second); d > max {
		d = max
	}
	return time.Duration(d)
}

// isPermanent reports client errors that will not resolve with a retry.
func isPermanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}
