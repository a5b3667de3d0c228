package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
)

// LogPlatform is a device-less Platform. Presented notifications are written
// to the logger and, like a foreground app on a real device, echoed back as
// received messages. It stands in for the OS on simulators and in tests.
type LogPlatform struct {
	logger *slog.Logger
	token  string
	grant  bool
	local  bool
	echo   bool

	mu        sync.Mutex
	presented []Message
	badge     int
	received  func(Message)
	responded func(Response)
}

// LogPlatformOption configures a LogPlatform.
type LogPlatformOption func(*LogPlatform)

// WithPlatformLogger sets the logger presentations are written to.
func WithPlatformLogger(l *slog.Logger) LogPlatformOption {
	return func(p *LogPlatform) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithToken makes RegisterToken succeed with token.
func WithToken(token string) LogPlatformOption {
	return func(p *LogPlatform) { p.token = token }
}

// WithPermission sets the answer to permission requests.
func WithPermission(granted bool) LogPlatformOption {
	return func(p *LogPlatform) { p.grant = granted }
}

// WithoutLocal disables local presentation.
func WithoutLocal() LogPlatformOption {
	return func(p *LogPlatform) { p.local = false }
}

// WithoutEcho stops presented notifications from being echoed as received messages.
func WithoutEcho() LogPlatformOption {
	return func(p *LogPlatform) { p.echo = false }
}

// NewLogPlatform creates a platform that grants permission, supports local
// notifications and has no remote push token unless WithToken is given.
func NewLogPlatform(opts ...LogPlatformOption) *LogPlatform {
	p := &LogPlatform{
		logger: slog.Default(),
		grant:  true,
		local:  true,
		echo:   true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *LogPlatform) RequestPermissions(context.Context) (bool, error) {
	return p.grant, nil
}

func (p *LogPlatform) RegisterToken(context.Context) (string, error) {
	if p.token == "" {
		return "", ErrNoToken
	}
	return p.token, nil
}

func (p *LogPlatform) LocalSupported() bool {
	return p.local
}

func (p *LogPlatform) Present(ctx context.Context, id string, content Content) error {
	if !p.local {
		return ErrLocalUnavailable
	}

	msg := Message{
		Identifier: id,
		Title:      content.Title,
		Body:       content.Body,
		Data:       content.Data,
		Level:      content.Level,
		Date:       time.Now(),
	}

	p.mu.Lock()
	p.presented = append(p.presented, msg)
	received := p.received
	p.mu.Unlock()

	p.logger.LogAttrs(ctx, slog.LevelInfo, "notification presented",
		logger.Component("push.platform"),
		slog.String("delivery_id", id),
		slog.String("title", content.Title),
		slog.String("level", string(content.Level)),
	)

	if p.echo && received != nil {
		received(msg)
	}
	return nil
}

func (p *LogPlatform) SetBadge(_ context.Context, count int) error {
	p.mu.Lock()
	p.badge = count
	p.mu.Unlock()
	return nil
}

func (p *LogPlatform) Listen(received func(Message), responded func(Response)) (func(), error) {
	p.mu.Lock()
	p.received = received
	p.responded = responded
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		p.received = nil
		p.responded = nil
		p.mu.Unlock()
	}, nil
}

// Deliver simulates a remote push arriving while the app is in the foreground.
func (p *LogPlatform) Deliver(msg Message) {
	p.mu.Lock()
	received := p.received
	p.mu.Unlock()
	if received != nil {
		received(msg)
	}
}

// Tap simulates the user acting on a presented notification. An empty
// actionID stands for tapping the notification body.
func (p *LogPlatform) Tap(id, actionID string) bool {
	p.mu.Lock()
	responded := p.responded
	var msg Message
	found := false
	for _, m := range p.presented {
		if m.Identifier == id {
			msg, found = m, true
			break
		}
	}
	p.mu.Unlock()

	if !found || responded == nil {
		return false
	}
	responded(Response{Message: msg, ActionID: actionID})
	return true
}

// Presented returns a copy of everything presented so far.
func (p *LogPlatform) Presented() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.presented))
	copy(out, p.presented)
	return out
}

// Badge returns the last badge count the platform received.
func (p *LogPlatform) Badge() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.badge
}
