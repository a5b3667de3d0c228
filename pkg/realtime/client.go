package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/schoolfeed/pkg/listeners"
	"github.com/dmitrymomot/schoolfeed/pkg/logger"
)

// Reason tells connection listeners what caused a state change.
type Reason string

const (
	ReasonConnecting       Reason = "connecting"
	ReasonConnect          Reason = "connect"
	ReasonConnectError     Reason = "connect_error"
	ReasonDisconnect       Reason = "disconnect"
	ReasonTransportError   Reason = "transport_error"
	ReasonReconnectAttempt Reason = "reconnect_attempt"
	ReasonReconnect        Reason = "reconnect"
	ReasonReconnectFailed  Reason = "reconnect_failed"
)

// ConnectionEvent is delivered to connection listeners on every state change
// and reconnect attempt.
type ConnectionEvent struct {
	Connected bool
	State     State
	Reason    Reason
	Attempt   int
	Err       error
}

// IdentityRoom returns the room every session joins on connect.
func IdentityRoom(userCategory, userID string) string {
	return userCategory + "_" + userID
}

// Client is the realtime channel adapter. All methods are safe for concurrent use.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *slog.Logger
	state  *connState

	notifications *listeners.Registry[Notification]
	updates       *listeners.Registry[Update]
	connEvents    *listeners.Registry[ConnectionEvent]

	mu            sync.Mutex
	conn          *websocket.Conn
	userID        string
	userCategory  string
	token         string
	rooms         map[string]struct{}
	attempts      int
	epoch         uint64
	stopReconnect context.CancelFunc

	writeMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for the Client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		if d != nil {
			c.dialer = d
		}
	}
}

// NewClient creates a disconnected client. Call Initialize to open a session.
func NewClient(cfg Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		dialer: &websocket.Dialer{Proxy: http.ProxyFromEnvironment},
		logger: slog.Default(),
		state:  newConnState(),
		rooms:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(logger.Component("realtime"))
	c.notifications = listeners.New[Notification]("realtime.notification", listeners.WithLogger(c.logger))
	c.updates = listeners.New[Update]("realtime.update", listeners.WithLogger(c.logger))
	c.connEvents = listeners.New[ConnectionEvent]("realtime.connection", listeners.WithLogger(c.logger))
	return c
}

// Initialize sets the session identity and connects. A different identity
// requires Disconnect first.
func (c *Client) Initialize(ctx context.Context, userID, userCategory, token string) error {
	if userID == "" || userCategory == "" {
		return ErrNoIdentity
	}

	c.mu.Lock()
	switch c.state.Current() {
	case StateConnected:
		c.mu.Unlock()
		return ErrAlreadyConnected
	case StateConnecting:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	c.userID = userID
	c.userCategory = userCategory
	c.token = token
	c.rooms = make(map[string]struct{})
	c.attempts = 0
	c.mu.Unlock()

	return c.Connect(ctx)
}

// Connect opens the connection for the current identity. It returns nil if
// already connected and ErrConnectTimeout if the handshake does not complete
// within Config.ConnectTimeout.
func (c *Client) Connect(ctx context.Context) error {
	return c.connect(ctx, ReasonConnect, 0)
}

func (c *Client) connect(ctx context.Context, reason Reason, attempt int) error {
	c.mu.Lock()
	if c.userID == "" {
		c.mu.Unlock()
		return ErrNoIdentity
	}
	switch c.state.Current() {
	case StateConnected:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.mu.Unlock()
		return ErrConnectInProgress
	}
	if _, _, err := c.state.fire(evDial); err != nil {
		c.mu.Unlock()
		return err
	}
	epoch := c.epoch
	userID, userCategory, token := c.userID, c.userCategory, c.token
	c.mu.Unlock()

	c.emit(ctx, ConnectionEvent{State: StateConnecting, Reason: ReasonConnecting, Attempt: attempt})

	conn, err := c.dial(ctx, userID, userCategory, token)

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return ErrConnectAborted
	}
	if err != nil {
		_, _, _ = c.state.fire(evFailed)
		c.mu.Unlock()

		c.logger.LogAttrs(ctx, slog.LevelWarn, "realtime connect failed",
			logger.UserID(userID),
			logger.Attempt(attempt),
			logger.Error(err),
		)
		c.emit(ctx, ConnectionEvent{State: StateDisconnected, Reason: ReasonConnectError, Attempt: attempt, Err: err})
		return err
	}
	if _, _, err := c.state.fire(evEstablished); err != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return err
	}
	c.conn = conn
	c.attempts = 0
	c.rooms[IdentityRoom(userCategory, userID)] = struct{}{}
	rooms := slices.Sorted(maps.Keys(c.rooms))
	c.mu.Unlock()

	done := make(chan struct{})
	go c.readLoop(conn, done)
	go c.pingLoop(conn, done)

	c.logger.LogAttrs(ctx, slog.LevelInfo, "realtime connected",
		logger.UserID(userID),
		logger.UserCategory(userCategory),
		logger.Attempt(attempt),
	)
	c.emit(ctx, ConnectionEvent{Connected: true, State: StateConnected, Reason: reason, Attempt: attempt})

	for _, room := range rooms {
		if err := c.write(ctx, conn, EventJoinRoom, roomRequest{Room: room}); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "failed to join room",
				logger.Room(room),
				logger.Error(err),
			)
		}
	}
	return nil
}

func (c *Client) dial(ctx context.Context, userID, userCategory, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse url: %w", err)
	}
	q := u.Query()
	q.Set("userId", userID)
	q.Set("userCategory", userCategory)
	if token != "" {
		q.Set("token", token)
	}
	u.RawQuery = q.Encode()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dialCtx, u.String(), header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err == nil {
		return conn, nil
	}

	var netErr net.Error
	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(dialCtx.Err(), context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout())
	if timedOut && ctx.Err() == nil {
		return nil, errors.Join(ErrConnectTimeout, err)
	}
	if resp != nil {
		return nil, fmt.Errorf("realtime: handshake rejected with status %d: %w", resp.StatusCode, err)
	}
	return nil, fmt.Errorf("realtime: dial: %w", err)
}

// Disconnect closes the connection, stops reconnecting and forgets joined
// rooms. The identity is kept so Connect can reopen the same session.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.epoch++
	if c.stopReconnect != nil {
		c.stopReconnect()
		c.stopReconnect = nil
	}
	conn := c.conn
	c.conn = nil
	c.rooms = make(map[string]struct{})
	c.attempts = 0
	if c.state.Current() == StateDisconnected {
		c.mu.Unlock()
		return nil
	}
	_, _, _ = c.state.fire(evClose)
	userID := c.userID
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.cfg.WriteTimeout))
		_ = conn.Close()
	}

	c.logger.LogAttrs(context.Background(), slog.LevelInfo, "realtime disconnected", logger.UserID(userID))
	c.emit(context.Background(), ConnectionEvent{State: StateDisconnected, Reason: ReasonDisconnect})
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	if c.cfg.PingInterval > 0 {
		readWait := 2 * c.cfg.PingInterval
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(readWait))
		})
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.connectionLost(conn, err)
			return
		}
		if c.cfg.PingInterval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(2 * c.cfg.PingInterval))
		}
		c.dispatch(data)
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(data []byte) {
	ctx := context.Background()

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed frame", logger.Error(err))
		return
	}

	switch env.Event {
	case EventNotification:
		var n Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed notification",
				logger.Event(env.Event),
				logger.Error(err),
			)
			return
		}
		c.notifications.Emit(ctx, n)

	case EventRealtimeUpdate, EventAttendanceUpdate, EventGradeUpdate, EventAnnouncement, EventCalendarUpdate:
		u, err := decodeUpdate(env.Event, env.Data)
		if err != nil {
			c.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed update",
				logger.Event(env.Event),
				logger.Error(err),
			)
			return
		}
		c.updates.Emit(ctx, u)

	default:
		c.logger.LogAttrs(ctx, slog.LevelDebug, "ignoring unknown event", logger.Event(env.Event))
	}
}

// connectionLost handles a read failure on conn. Failures on a connection
// that Disconnect already replaced are ignored.
func (c *Client) connectionLost(conn *websocket.Conn, cause error) {
	ctx := context.Background()

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if _, _, err := c.state.fire(evLost); err != nil {
		c.mu.Unlock()
		return
	}
	epoch := c.epoch
	rctx, cancel := context.WithCancel(context.Background())
	c.stopReconnect = cancel
	c.mu.Unlock()

	_ = conn.Close()

	c.logger.LogAttrs(ctx, slog.LevelWarn, "realtime connection lost", logger.Error(cause))
	c.emit(ctx, ConnectionEvent{State: StateDisconnected, Reason: ReasonTransportError, Err: cause})

	if c.cfg.ReconnectAttempts == 0 {
		cancel()
		return
	}
	go c.reconnectLoop(rctx, cancel, epoch)
}

// reconnectLoop retries with a fixed delay until connected, cancelled or out
// of attempts.
func (c *Client) reconnectLoop(ctx context.Context, cancel context.CancelFunc, epoch uint64) {
	defer cancel()

	timer := time.NewTimer(c.cfg.ReconnectDelay)
	defer timer.Stop()

	for attempt := 1; attempt <= c.cfg.ReconnectAttempts; attempt++ {
		if attempt > 1 {
			timer.Reset(c.cfg.ReconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		c.mu.Lock()
		if c.epoch != epoch {
			c.mu.Unlock()
			return
		}
		c.attempts = attempt
		c.mu.Unlock()

		if c.state.Current() == StateConnected {
			return
		}

		c.logger.LogAttrs(ctx, slog.LevelInfo, "realtime reconnect attempt", logger.Attempt(attempt))
		c.emit(ctx, ConnectionEvent{State: c.state.Current(), Reason: ReasonReconnectAttempt, Attempt: attempt})

		err := c.connect(ctx, ReasonReconnect, attempt)
		if err == nil {
			return
		}
		if errors.Is(err, ErrConnectAborted) || ctx.Err() != nil {
			return
		}
	}

	c.mu.Lock()
	stale := c.epoch != epoch
	c.mu.Unlock()
	if stale {
		return
	}

	c.logger.LogAttrs(ctx, slog.LevelError, "realtime reconnect failed", logger.Attempt(c.cfg.ReconnectAttempts))
	c.emit(ctx, ConnectionEvent{State: StateDisconnected, Reason: ReasonReconnectFailed, Attempt: c.cfg.ReconnectAttempts})
}

// SendNotification emits a send-notification event. It is dropped with a
// warning while disconnected.
func (c *Client) SendNotification(ctx context.Context, n Notification) error {
	return c.send(ctx, EventSendNotification, n)
}

// SendUpdate emits a send-update event. It is dropped with a warning while disconnected.
func (c *Client) SendUpdate(ctx context.Context, u Update) error {
	return c.send(ctx, EventSendUpdate, u)
}

// JoinRoom joins a room. Joined rooms are re-joined after a reconnect.
func (c *Client) JoinRoom(ctx context.Context, room string) error {
	if room == "" {
		return ErrEmptyRoom
	}
	if err := c.send(ctx, EventJoinRoom, roomRequest{Room: room}); err != nil {
		return err
	}
	c.mu.Lock()
	if c.conn != nil {
		c.rooms[room] = struct{}{}
	}
	c.mu.Unlock()
	return nil
}

// LeaveRoom leaves a room.
func (c *Client) LeaveRoom(ctx context.Context, room string) error {
	if room == "" {
		return ErrEmptyRoom
	}
	if err := c.send(ctx, EventLeaveRoom, roomRequest{Room: room}); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
	return nil
}

func (c *Client) send(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		c.logger.LogAttrs(ctx, slog.LevelWarn, "not connected, dropping outbound event", logger.Event(event))
		return nil
	}
	return c.write(ctx, conn, event, payload)
}

func (c *Client) write(ctx context.Context, conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("realtime: encode %s: %w", event, err)
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("realtime: write %s: %w", event, err)
	}
	return nil
}

func (c *Client) emit(ctx context.Context, ev ConnectionEvent) {
	c.connEvents.Emit(ctx, ev)
}

// IsConnected reports whether the connection is established.
func (c *Client) IsConnected() bool {
	return c.state.Current() == StateConnected
}

// State returns the current connection state.
func (c *Client) State() State {
	return c.state.Current()
}

// Rooms returns the joined rooms in sorted order.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.rooms))
}

// ReconnectAttempts returns the attempt counter of the running reconnect
// cycle. It resets to zero on a successful connect.
func (c *Client) ReconnectAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Identity returns the user the session belongs to.
func (c *Client) Identity() (userID, userCategory string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID, c.userCategory
}

// OnNotification registers fn for inbound notification events.
func (c *Client) OnNotification(fn func(Notification)) listeners.ID {
	return c.notifications.Add(fn)
}

// RemoveNotificationListener unregisters a listener added with OnNotification.
func (c *Client) RemoveNotificationListener(id listeners.ID) bool {
	return c.notifications.Remove(id)
}

// OnUpdate registers fn for inbound real-time updates of every kind.
func (c *Client) OnUpdate(fn func(Update)) listeners.ID {
	return c.updates.Add(fn)
}

// RemoveUpdateListener unregisters a listener added with OnUpdate.
func (c *Client) RemoveUpdateListener(id listeners.ID) bool {
	return c.updates.Remove(id)
}

// OnConnectionChange registers fn for connection state changes.
func (c *Client) OnConnectionChange(fn func(ConnectionEvent)) listeners.ID {
	return c.connEvents.Add(fn)
}

// RemoveConnectionListener unregisters a listener added with OnConnectionChange.
func (c *Client) RemoveConnectionListener(id listeners.ID) bool {
	return c.connEvents.Remove(id)
}
