package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dmitrymomot/schoolfeed/pkg/listeners"
	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

// Engine is the part of the notification engine the feed consumes.
// *notifications.Engine implements it.
type Engine interface {
	AddListener(fn func(notifications.Notification)) listeners.ID
	RemoveListener(id listeners.ID) bool
	AddStatsListener(fn func(notifications.Stats)) listeners.ID
	RemoveStatsListener(id listeners.ID) bool

	GetNotifications(f notifications.Filters) []notifications.Notification
	GetNotification(id string) (notifications.Notification, bool)
	GetStats(f notifications.Filters) notifications.Stats

	SendNotification(ctx context.Context, in notifications.Input) string
	MarkAsRead(ctx context.Context, id string) bool
	MarkAllAsRead(ctx context.Context, f notifications.Filters) int
	DeleteNotification(ctx context.Context, id string) bool
	HandleNotificationAction(ctx context.Context, id, actionID string, data map[string]any) bool
}

// View is a filtered snapshot: the records and the statistics computed with the same filters.
type View struct {
	Notifications []notifications.Notification `json:"notifications"`
	Stats         notifications.Stats          `json:"stats"`
}

// Feed fans engine changes out to channel subscribers and exposes the
// imperative actions UI surfaces need. All methods are safe for concurrent use.
type Feed struct {
	engine     Engine
	logger     *slog.Logger
	bufferSize int

	addedID listeners.ID
	statsID listeners.ID

	mu      sync.RWMutex
	subs    map[*Subscription]struct{}
	closed  bool
	cleanup sync.WaitGroup
}

// Option configures a Feed.
type Option func(*Feed)

// WithLogger sets the logger for the Feed.
func WithLogger(l *slog.Logger) Option {
	return func(f *Feed) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithBufferSize sets the per-subscription channel buffer. Minimum is 1.
func WithBufferSize(n int) Option {
	return func(f *Feed) {
		f.bufferSize = max(n, 1)
	}
}

// New creates a feed on top of engine and starts listening to it.
func New(engine Engine, opts ...Option) *Feed {
	f := &Feed{
		engine:     engine,
		logger:     slog.Default(),
		bufferSize: 32,
		subs:       make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(logger.Component("feed"))
	f.addedID = engine.AddListener(f.onAdded)
	f.statsID = engine.AddStatsListener(f.onStats)
	return f
}

// Subscribe registers a subscriber for records and statistics matching
// filters. The first event is the current statistics. The subscription ends
// when ctx is done, on Close, or when the subscriber falls behind. After the
// feed is closed, Subscribe returns an already closed subscription.
func (f *Feed) Subscribe(ctx context.Context, filters notifications.Filters) *Subscription {
	sub := &Subscription{
		id:      uuid.NewString(),
		filters: filters,
		ch:      make(chan Event, f.bufferSize),
		done:    make(chan struct{}),
		onDone:  f.unsubscribe,
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		sub.close()
		return sub
	}
	f.subs[sub] = struct{}{}

	stats := f.engine.GetStats(filters)
	sub.send(Event{Kind: KindStats, Stats: &stats})

	if ctx.Done() != nil {
		f.cleanup.Add(1)
		go func() {
			defer f.cleanup.Done()
			select {
			case <-ctx.Done():
				_ = sub.Close()
			case <-sub.done:
			}
		}()
	}

	f.logger.LogAttrs(ctx, slog.LevelDebug, "feed subscription added", slog.String("subscription_id", sub.id))
	return sub
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

// View returns the records matching filters, newest first, with their statistics.
func (f *Feed) View(filters notifications.Filters) View {
	return View{
		Notifications: f.engine.GetNotifications(filters),
		Stats:         f.engine.GetStats(filters),
	}
}

// Stats returns the statistics of the records matching filters.
func (f *Feed) Stats(filters notifications.Filters) notifications.Stats {
	return f.engine.GetStats(filters)
}

// Get returns one record.
func (f *Feed) Get(id string) (notifications.Notification, bool) {
	return f.engine.GetNotification(id)
}

// Send stores and surfaces a local notification and returns its id.
func (f *Feed) Send(ctx context.Context, in notifications.Input) string {
	return f.engine.SendNotification(ctx, in)
}

// MarkRead marks one record as read.
func (f *Feed) MarkRead(ctx context.Context, id string) bool {
	return f.engine.MarkAsRead(ctx, id)
}

// MarkAllRead marks every unread record matching filters as read.
func (f *Feed) MarkAllRead(ctx context.Context, filters notifications.Filters) int {
	return f.engine.MarkAllAsRead(ctx, filters)
}

// Delete removes one record.
func (f *Feed) Delete(ctx context.Context, id string) bool {
	return f.engine.DeleteNotification(ctx, id)
}

// Act performs actionID on record id.
func (f *Feed) Act(ctx context.Context, id, actionID string, data map[string]any) bool {
	return f.engine.HandleNotificationAction(ctx, id, actionID, data)
}

// Close stops listening to the engine and closes every subscription.
func (f *Feed) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	subs := make([]*Subscription, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	clear(f.subs)
	f.mu.Unlock()

	f.engine.RemoveListener(f.addedID)
	f.engine.RemoveStatsListener(f.statsID)
	for _, sub := range subs {
		sub.close()
	}
	f.cleanup.Wait()
	return nil
}

func (f *Feed) onAdded(n notifications.Notification) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subs {
		if !sub.filters.Match(n) {
			continue
		}
		rec := n
		if !sub.send(Event{Kind: KindAdded, Notification: &rec}) && !sub.isClosed() {
			f.drop(sub)
		}
	}
}

func (f *Feed) onStats(all notifications.Stats) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for sub := range f.subs {
		stats := all
		if !unfiltered(sub.filters) {
			stats = f.engine.GetStats(sub.filters)
		}
		if !sub.send(Event{Kind: KindStats, Stats: &stats}) && !sub.isClosed() {
			f.drop(sub)
		}
	}
}

// drop removes a slow subscriber without taking the write lock under the
// caller's read lock. Callers hold f.mu, so Close cannot be waiting on
// cleanup while a drop is scheduled.
func (f *Feed) drop(sub *Subscription) {
	if f.closed {
		return
	}
	f.logger.LogAttrs(context.Background(), slog.LevelWarn, "dropping slow feed subscriber",
		slog.String("subscription_id", sub.id),
	)
	f.cleanup.Add(1)
	go func() {
		defer f.cleanup.Done()
		_ = sub.Close()
	}()
}

func (f *Feed) unsubscribe(sub *Subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subs, sub)
}

func unfiltered(f notifications.Filters) bool {
	return f.Type == "" && f.Priority == "" && f.Source == "" && f.Read == nil &&
		f.StudentID == "" && f.UserID == "" && f.From.IsZero() && f.To.IsZero()
}
