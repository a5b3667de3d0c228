package restapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

// Lister fetches a page of backend notifications.
type Lister interface {
	List(ctx context.Context, page, perPage int) (Page, error)
}

// Ingester stores fetched records. *notifications.Engine implements it.
type Ingester interface {
	IngestAPI(ctx context.Context, records []notifications.APIRecord) int
}

// Poller periodically pulls the first page of notifications into an Ingester.
type Poller struct {
	lister   Lister
	sink     Ingester
	interval time.Duration
	perPage  int
	logger   *slog.Logger
	unread   func(int)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithPollerLogger sets the logger for the Poller.
func WithPollerLogger(l *slog.Logger) PollerOption {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithPageSize sets the per_page value of each poll.
func WithPageSize(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.perPage = n
		}
	}
}

// WithUnreadCount registers a callback receiving the backend's unread_count
// after every successful poll.
func WithUnreadCount(fn func(int)) PollerOption {
	return func(p *Poller) {
		p.unread = fn
	}
}

// NewPoller creates a poller. A non-positive interval falls back to one minute.
func NewPoller(lister Lister, sink Ingester, interval time.Duration, opts ...PollerOption) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	p := &Poller{
		lister:   lister,
		sink:     sink,
		interval: interval,
		perPage:  50,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(logger.Component("restapi.poller"))
	return p
}

// Poll runs one fetch and returns how many new records were stored.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	start := time.Now()
	page, err := p.lister.List(ctx, 1, p.perPage)
	if err != nil {
		return 0, err
	}

	added := p.sink.IngestAPI(ctx, page.Data)
	if p.unread != nil {
		p.unread(page.UnreadCount)
	}
	p.logger.LogAttrs(ctx, slog.LevelDebug, "backend poll complete",
		logger.Count(added),
		logger.Duration(time.Since(start)),
	)
	return added, nil
}

// Run polls immediately and then every interval until ctx is done. Poll
// failures are logged and the next tick retries.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			p.logger.LogAttrs(ctx, slog.LevelWarn, "backend poll failed", logger.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
