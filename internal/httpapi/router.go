package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/schoolfeed/pkg/feed"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

// Feed is the part of *feed.Feed the HTTP surface serves.
type Feed interface {
	View(f notifications.Filters) feed.View
	Stats(f notifications.Filters) notifications.Stats
	Get(id string) (notifications.Notification, bool)
	Send(ctx context.Context, in notifications.Input) string
	MarkRead(ctx context.Context, id string) bool
	MarkAllRead(ctx context.Context, f notifications.Filters) int
	Delete(ctx context.Context, id string) bool
	Act(ctx context.Context, id, actionID string, data map[string]any) bool
	Subscribe(ctx context.Context, f notifications.Filters) *feed.Subscription
}

// HealthCheck reports whether a dependency is ready.
type HealthCheck func(ctx context.Context) error

type handler struct {
	feed      Feed
	logger    *slog.Logger
	heartbeat time.Duration
	checks    map[string]HealthCheck
}

// RouterOption configures the router.
type RouterOption func(*handler)

// WithLogger sets the logger used by the handlers.
func WithLogger(l *slog.Logger) RouterOption {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithHeartbeat sets the heartbeat interval on event streams.
func WithHeartbeat(d time.Duration) RouterOption {
	return func(h *handler) {
		if d > 0 {
			h.heartbeat = d
		}
	}
}

// WithHealthCheck adds a named readiness check to /healthz.
func WithHealthCheck(name string, check HealthCheck) RouterOption {
	return func(h *handler) {
		if check != nil {
			h.checks[name] = check
		}
	}
}

// NewRouter mounts the notification routes:
//
//	GET    /healthz
//	GET    /notifications
//	POST   /notifications
//	GET    /notifications/stats
//	GET    /notifications/stream
//	POST   /notifications/read
//	GET    /notifications/{id}
//	DELETE /notifications/{id}
//	POST   /notifications/{id}/read
//	POST   /notifications/{id}/actions/{actionID}
func NewRouter(f Feed, opts ...RouterOption) chi.Router {
	h := &handler{
		feed:      f,
		logger:    slog.Default(),
		heartbeat: 20 * time.Second,
		checks:    make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.send)
		r.Get("/stats", h.stats)
		r.Get("/stream", h.stream)
		r.Post("/read", h.markAllRead)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Delete("/", h.delete)
			r.Post("/read", h.markRead)
			r.Post("/actions/{actionID}", h.act)
		})
	})

	return r
}
