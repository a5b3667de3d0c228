package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

// Mirror keeps a copy of the engine's records in a redis hash keyed by id and
// relays saves and deletes to sibling processes over pub/sub.
// It implements notifications.Mirror.
type Mirror struct {
	db            redis.UniversalClient
	key           string
	channelPrefix string
	origin        string
	logger        *slog.Logger
}

// Replica applies changes relayed from sibling processes.
// *notifications.Engine implements it.
type Replica interface {
	Merge(ctx context.Context, n notifications.Notification) bool
	Forget(ctx context.Context, ids ...string) int
}

const (
	opSave   = "save"
	opDelete = "delete"
)

// envelope is the relay message published on a user's channel.
type envelope struct {
	Origin       string                      `json:"origin"`
	Op           string                      `json:"op"`
	Notification *notifications.Notification `json:"notification,omitempty"`
	IDs          []string                    `json:"ids,omitempty"`
}

// MirrorOption configures a Mirror.
type MirrorOption func(*Mirror)

// WithKey sets the hash key. Empty values are ignored.
func WithKey(key string) MirrorOption {
	return func(m *Mirror) {
		if key != "" {
			m.key = key
		}
	}
}

// WithChannelPrefix sets the relay channel prefix. Empty values are ignored.
func WithChannelPrefix(prefix string) MirrorOption {
	return func(m *Mirror) {
		if prefix != "" {
			m.channelPrefix = prefix
		}
	}
}

// WithLogger sets the logger for the Mirror.
func WithLogger(l *slog.Logger) MirrorOption {
	return func(m *Mirror) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithOrigin sets the id stamped on published messages. Messages carrying
// the mirror's own origin are not relayed back to it. Defaults to a random id.
func WithOrigin(origin string) MirrorOption {
	return func(m *Mirror) {
		if origin != "" {
			m.origin = origin
		}
	}
}

// NewMirror creates a mirror on db.
func NewMirror(db redis.UniversalClient, opts ...MirrorOption) *Mirror {
	m := &Mirror{
		db:            db,
		key:           "schoolfeed:notifications",
		channelPrefix: "user_notifications:",
		origin:        uuid.NewString(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(logger.Component("redis.mirror"))
	return m
}

// Origin returns the id stamped on messages this mirror publishes.
func (m *Mirror) Origin() string {
	return m.origin
}

// Channel returns the relay channel of userID.
func (m *Mirror) Channel(userID string) string {
	return m.channelPrefix + userID
}

// Save writes n to the hash. Records with a user id are published on that
// user's channel. Saving a record identical to the stored copy is a no-op.
func (m *Mirror) Save(ctx context.Context, n notifications.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("redis: encode notification %s: %w", n.ID, err)
	}

	current, err := m.db.HGet(ctx, m.key, n.ID).Result()
	switch {
	case err == nil && current == string(payload):
		return nil
	case err != nil && !errors.Is(err, redis.Nil):
		return fmt.Errorf("redis: read notification %s: %w", n.ID, err)
	}

	var msg []byte
	if n.UserID != "" {
		if msg, err = json.Marshal(envelope{Origin: m.origin, Op: opSave, Notification: &n}); err != nil {
			return fmt.Errorf("redis: encode relay message %s: %w", n.ID, err)
		}
	}

	_, err = m.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, m.key, n.ID, payload)
		if msg != nil {
			pipe.Publish(ctx, m.Channel(n.UserID), msg)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save notification %s: %w", n.ID, err)
	}
	return nil
}

// Delete removes ids from the hash and publishes the removal on the
// channels of the users the records belonged to.
func (m *Mirror) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	stored, err := m.db.HMGet(ctx, m.key, ids...).Result()
	if err != nil {
		return fmt.Errorf("redis: read notifications: %w", err)
	}
	byUser := make(map[string][]string)
	for i, v := range stored {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := decode(raw); err == nil && n.UserID != "" {
			byUser[n.UserID] = append(byUser[n.UserID], ids[i])
		}
	}

	msgs := make(map[string][]byte, len(byUser))
	for userID, userIDs := range byUser {
		msg, err := json.Marshal(envelope{Origin: m.origin, Op: opDelete, IDs: userIDs})
		if err != nil {
			return fmt.Errorf("redis: encode relay message: %w", err)
		}
		msgs[m.Channel(userID)] = msg
	}

	_, err = m.db.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, m.key, ids...)
		for channel, msg := range msgs {
			pipe.Publish(ctx, channel, msg)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete notifications: %w", err)
	}
	return nil
}

// Load returns every mirrored record. Entries that do not decode are logged
// and skipped.
func (m *Mirror) Load(ctx context.Context) ([]notifications.Notification, error) {
	entries, err := m.db.HGetAll(ctx, m.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load notifications: %w", err)
	}

	out := make([]notifications.Notification, 0, len(entries))
	for id, raw := range entries {
		n, err := decode(raw)
		if err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "skipping malformed mirrored notification",
				logger.NotificationID(id),
				logger.Error(err),
			)
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// Relay subscribes to userID's channel and applies changes published by
// other mirrors to r. Messages from this mirror are skipped, and a relayed
// save whose record is no longer in the hash is dropped so that deletes are
// not undone by messages still in flight. It blocks until ctx is done.
func (m *Mirror) Relay(ctx context.Context, userID string, r Replica) error {
	if userID == "" {
		return ErrEmptyUserID
	}

	sub := m.db.Subscribe(ctx, m.Channel(userID))
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", m.Channel(userID), err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			m.apply(ctx, userID, msg.Payload, r)
		}
	}
}

func (m *Mirror) apply(ctx context.Context, userID, payload string, r Replica) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "dropping malformed relay message",
			logger.UserID(userID),
			logger.Error(err),
		)
		return
	}
	if env.Origin == m.origin {
		return
	}

	switch env.Op {
	case opSave:
		if env.Notification == nil || env.Notification.ID == "" {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "dropping relay message without record", logger.UserID(userID))
			return
		}
		n := *env.Notification
		exists, err := m.db.HExists(ctx, m.key, n.ID).Result()
		if err != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to check relayed notification",
				logger.NotificationID(n.ID),
				logger.Error(err),
			)
			return
		}
		if !exists {
			return
		}
		r.Merge(ctx, n)
	case opDelete:
		r.Forget(ctx, env.IDs...)
	default:
		m.logger.LogAttrs(ctx, slog.LevelWarn, "dropping relay message with unknown operation",
			logger.UserID(userID),
			slog.String("op", env.Op),
		)
	}
}

func decode(raw string) (notifications.Notification, error) {
	var n notifications.Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return notifications.Notification{}, err
	}
	if n.ID == "" {
		return notifications.Notification{}, errors.New("missing id")
	}
	return n, nil
}
