// Package listeners provides the ordered callback registry behind every
// fan-out in schoolfeed.
//
// Callbacks run synchronously in registration order. A panicking callback is
// recovered and reported to the registry's logger; the remaining callbacks in
// the same fan-out still run and the caller that triggered the fan-out never
// sees the panic.
package listeners

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
)

// ID identifies a registered callback. Zero is never issued.
type ID uint64

type entry[T any] struct {
	id ID
	fn func(T)
}

// Registry holds callbacks receiving values of type T.
// All methods are safe for concurrent use.
type Registry[T any] struct {
	name    string
	logger  *slog.Logger
	mu      sync.RWMutex
	nextID  ID
	entries []entry[T]
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger *slog.Logger
}

// WithLogger sets the logger used to report recovered panics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an empty registry. The name shows up in panic reports.
func New[T any](name string, opts ...Option) *Registry[T] {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	return &Registry[T]{name: name, logger: o.logger}
}

// Add appends fn and returns its id. Nil callbacks are ignored and get id 0.
func (r *Registry[T]) Add(fn func(T)) ID {
	if fn == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.entries = append(r.entries, entry[T]{id: r.nextID, fn: fn})
	return r.nextID
}

// Remove unregisters the callback with the given id.
func (r *Registry[T]) Remove(id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered callbacks.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes all callbacks.
func (r *Registry[T]) Clear() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Emit invokes every callback with v. The set of callbacks is captured
// before the first call, so callbacks may add or remove listeners freely.
// It returns the number of callbacks that panicked.
func (r *Registry[T]) Emit(ctx context.Context, v T) int {
	r.mu.RLock()
	snapshot := make([]entry[T], len(r.entries))
	copy(snapshot, r.entries)
	r.mu.RUnlock()

	failed := 0
	for _, e := range snapshot {
		if !r.call(ctx, e, v) {
			failed++
		}
	}
	return failed
}

func (r *Registry[T]) call(ctx context.Context, e entry[T], v T) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			r.logger.LogAttrs(ctx, slog.LevelError, "listener panicked",
				logger.Component(r.name),
				logger.ListenerID(uint64(e.id)),
				logger.Panic(rec),
			)
		}
	}()
	e.fn(v)
	return true
}
