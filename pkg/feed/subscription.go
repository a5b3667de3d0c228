package feed

import (
	"sync"

	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

// Kind tells subscribers what an Event carries.
type Kind string

const (
	KindAdded Kind = "added"
	KindStats Kind = "stats"
)

// Event is one feed update. Added events carry Notification, stats events carry Stats.
type Event struct {
	Kind         Kind                        `json:"kind"`
	Notification *notifications.Notification `json:"notification,omitempty"`
	Stats        *notifications.Stats        `json:"stats,omitempty"`
}

// Subscription receives feed events matching its filters. Events are
// delivered on a buffered channel; a subscriber that lets the buffer fill up
// is dropped and its channel closed.
type Subscription struct {
	id      string
	filters notifications.Filters
	ch      chan Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
	onDone func(*Subscription)
}

// ID identifies the subscription.
func (s *Subscription) ID() string { return s.id }

// Filters returns the filters the subscription was created with.
func (s *Subscription) Filters() notifications.Filters { return s.filters }

// Events returns the event channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	if s.close() && s.onDone != nil {
		s.onDone(s)
	}
	return nil
}

func (s *Subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	close(s.done)
	return true
}

func (s *Subscription) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// send delivers ev without blocking. It reports false when the subscription
// is closed or its buffer is full.
func (s *Subscription) send(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}
