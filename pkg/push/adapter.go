package push

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/schoolfeed/pkg/listeners"
	"github.com/dmitrymomot/schoolfeed/pkg/logger"
)

// Adapter is the push delivery adapter. All methods are safe for concurrent use.
type Adapter struct {
	platform  Platform
	logger    *slog.Logger
	now       func() time.Time
	received  *listeners.Registry[Message]
	responded *listeners.Registry[Response]

	mu          sync.Mutex
	initialized bool
	closed      bool
	caps        Capabilities
	stopListen  func()
	scheduled   map[string]*scheduledNotification
	badge       int
}

type scheduledNotification struct {
	content Content
	trigger Trigger
	timer   *time.Timer
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithLogger sets the logger for the Adapter.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithClock overrides the time source used for scheduling.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAdapter creates an adapter on top of platform.
func NewAdapter(platform Platform, opts ...Option) *Adapter {
	a := &Adapter{
		platform:  platform,
		logger:    slog.Default(),
		now:       time.Now,
		scheduled: make(map[string]*scheduledNotification),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(logger.Component("push"))
	a.received = listeners.New[Message]("push.received", listeners.WithLogger(a.logger))
	a.responded = listeners.New[Response]("push.response", listeners.WithLogger(a.logger))
	return a
}

// Initialize requests permission, registers for remote push and starts
// listening for platform events. Each step is isolated: failures are logged
// and show up in the returned Capabilities. Subsequent calls return the
// capabilities of the first run.
func (a *Adapter) Initialize(ctx context.Context) Capabilities {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized || a.closed {
		return a.caps
	}

	var caps Capabilities

	a.step(ctx, "request_permissions", func() error {
		granted, err := a.platform.RequestPermissions(ctx)
		caps.PermissionGranted = granted
		if err == nil && !granted {
			err = ErrPermissionDenied
		}
		return err
	})

	a.step(ctx, "register_token", func() error {
		token, err := a.platform.RegisterToken(ctx)
		if err != nil {
			return err
		}
		if token == "" {
			return ErrNoToken
		}
		caps.Token = token
		caps.PushAvailable = true
		return nil
	})

	a.step(ctx, "local_support", func() error {
		caps.LocalAvailable = a.platform.LocalSupported()
		return nil
	})

	a.step(ctx, "listen", func() error {
		stop, err := a.platform.Listen(a.dispatchReceived, a.dispatchResponse)
		if err != nil {
			return err
		}
		a.stopListen = stop
		return nil
	})

	a.caps = caps
	a.initialized = true

	a.logger.LogAttrs(ctx, slog.LevelInfo, "push adapter initialized",
		slog.Bool("permission_granted", caps.PermissionGranted),
		slog.Bool("push_available", caps.PushAvailable),
		slog.Bool("local_available", caps.LocalAvailable),
	)
	return caps
}

// step runs one initialization step, converting errors and panics into log records.
func (a *Adapter) step(ctx context.Context, name string, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.LogAttrs(ctx, slog.LevelError, "push initialization step panicked",
				slog.String("step", name),
				logger.Panic(rec),
			)
		}
	}()
	if err := fn(); err != nil {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "push initialization step failed, continuing with reduced capability",
			slog.String("step", name),
			logger.Error(err),
		)
	}
}

// Capabilities returns what Initialize set up.
func (a *Adapter) Capabilities() Capabilities {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.caps
}

// IsPushNotificationAvailable reports whether a remote push token was obtained.
func (a *Adapter) IsPushNotificationAvailable() bool {
	return a.Capabilities().PushAvailable
}

// IsLocalNotificationAvailable reports whether local notifications can be
// presented, independently of remote push.
func (a *Adapter) IsLocalNotificationAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initialized {
		return a.caps.LocalAvailable
	}
	return a.platform.LocalSupported()
}

// SendLocalNotification presents content immediately and returns its delivery id.
func (a *Adapter) SendLocalNotification(ctx context.Context, content Content) (string, error) {
	if err := a.checkLocal(); err != nil {
		return "", err
	}

	id := "local-" + uuid.NewString()
	if err := a.platform.Present(ctx, id, content); err != nil {
		return "", fmt.Errorf("push: present local notification: %w", err)
	}
	return id, nil
}

// ScheduleNotification arranges for content to be presented when trigger
// fires. The returned id cancels it.
func (a *Adapter) ScheduleNotification(ctx context.Context, content Content, trigger Trigger) (string, error) {
	if err := a.checkLocal(); err != nil {
		return "", err
	}

	now := a.now()
	if err := validateTrigger(trigger, now); err != nil {
		return "", err
	}

	id := "scheduled-" + uuid.NewString()
	entry := &scheduledNotification{content: content, trigger: trigger}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return "", ErrClosed
	}
	entry.timer = time.AfterFunc(trigger.Next(now).Sub(now), func() { a.fire(id) })
	a.scheduled[id] = entry

	a.logger.LogAttrs(ctx, slog.LevelDebug, "notification scheduled",
		slog.String("delivery_id", id),
		slog.String("trigger", trigger.String()),
	)
	return id, nil
}

func (a *Adapter) fire(id string) {
	a.mu.Lock()
	entry, ok := a.scheduled[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	if entry.trigger.Repeats() {
		now := a.now()
		entry.timer = time.AfterFunc(entry.trigger.Next(now).Sub(now), func() { a.fire(id) })
	} else {
		delete(a.scheduled, id)
	}
	content := entry.content
	a.mu.Unlock()

	if err := a.platform.Present(context.Background(), id, content); err != nil {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "failed to present scheduled notification",
			slog.String("delivery_id", id),
			logger.Error(err),
		)
	}
}

// CancelNotification cancels a scheduled notification.
func (a *Adapter) CancelNotification(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.scheduled[id]
	if !ok {
		return false
	}
	entry.timer.Stop()
	delete(a.scheduled, id)
	return true
}

// CancelAllNotifications cancels every scheduled notification and returns how many were pending.
func (a *Adapter) CancelAllNotifications() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.scheduled)
	for id, entry := range a.scheduled {
		entry.timer.Stop()
		delete(a.scheduled, id)
	}
	return n
}

// Pending returns the number of scheduled notifications that have not fired yet.
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.scheduled)
}

// BadgeCount returns the last badge count set through the adapter.
func (a *Adapter) BadgeCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.badge
}

// SetBadgeCount updates the application badge. Negative counts clamp to zero.
func (a *Adapter) SetBadgeCount(ctx context.Context, count int) error {
	count = max(count, 0)
	if err := a.platform.SetBadge(ctx, count); err != nil {
		return fmt.Errorf("push: set badge: %w", err)
	}
	a.mu.Lock()
	a.badge = count
	a.mu.Unlock()
	return nil
}

// ClearBadge resets the badge to zero.
func (a *Adapter) ClearBadge(ctx context.Context) error {
	return a.SetBadgeCount(ctx, 0)
}

// OnNotificationReceived registers fn for notifications delivered while in the foreground.
func (a *Adapter) OnNotificationReceived(fn func(Message)) listeners.ID {
	return a.received.Add(fn)
}

// RemoveReceivedListener unregisters a listener added with OnNotificationReceived.
func (a *Adapter) RemoveReceivedListener(id listeners.ID) bool {
	return a.received.Remove(id)
}

// OnNotificationResponse registers fn for user interactions with notifications.
func (a *Adapter) OnNotificationResponse(fn func(Response)) listeners.ID {
	return a.responded.Add(fn)
}

// RemoveResponseListener unregisters a listener added with OnNotificationResponse.
func (a *Adapter) RemoveResponseListener(id listeners.ID) bool {
	return a.responded.Remove(id)
}

// Close stops platform listening and cancels scheduled notifications.
func (a *Adapter) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	stop := a.stopListen
	a.stopListen = nil
	for id, entry := range a.scheduled {
		entry.timer.Stop()
		delete(a.scheduled, id)
	}
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
	a.received.Clear()
	a.responded.Clear()
	return nil
}

func (a *Adapter) checkLocal() error {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if !a.IsLocalNotificationAvailable() {
		return ErrLocalUnavailable
	}
	return nil
}

func (a *Adapter) dispatchReceived(msg Message) {
	if msg.Date.IsZero() {
		msg.Date = a.now()
	}
	a.received.Emit(context.Background(), msg)
}

func (a *Adapter) dispatchResponse(resp Response) {
	if resp.ActionID == "" {
		resp.ActionID = DefaultActionID
	}
	a.responded.Emit(context.Background(), resp)
}
