package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/dmitrymomot/schoolfeed/pkg/listeners"
	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/push"
	"github.com/dmitrymomot/schoolfeed/pkg/realtime"
)

// Engine is the single writer of notification records. It converts events
// from every source into canonical records, stores them by id and fans out
// changes to listeners. All methods are safe for concurrent use.
//
// Listener fan-out runs synchronously in registration order after the
// mutation, before the mutating call returns.
type Engine struct {
	store   *memoryStore
	convert Converter
	now     func() time.Time
	ids     *IDGenerator
	logger  *slog.Logger

	push      PushSource
	realtime  RealtimeSource
	backend   BackendSyncer
	mirror    Mirror
	navigate  Navigator
	handlers  map[string]ActionHandler
	surfaceAt Priority
	syncWait  time.Duration
	texts     TextSource

	added *listeners.Registry[Notification]
	stats *listeners.Registry[Stats]

	mu          sync.Mutex
	initialized bool
	closed      bool
	subs        []func()
	deliveries  map[string]string // push delivery id -> record id
	syncs       sync.WaitGroup
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithPush connects the push adapter used for surfacing and push fan-in.
func WithPush(p PushSource) EngineOption {
	return func(e *Engine) { e.push = p }
}

// WithRealtime connects the realtime adapter.
func WithRealtime(r RealtimeSource) EngineOption {
	return func(e *Engine) { e.realtime = r }
}

// WithBackend sets where mutations of api-sourced records are propagated.
func WithBackend(b BackendSyncer) EngineOption {
	return func(e *Engine) { e.backend = b }
}

// WithMirror sets the out-of-process copy of held records.
func WithMirror(m Mirror) EngineOption {
	return func(e *Engine) { e.mirror = m }
}

// WithNavigator sets the handler of the built-in tapped action.
func WithNavigator(fn Navigator) EngineOption {
	return func(e *Engine) { e.navigate = fn }
}

// WithActionHandler registers fn for custom actions with the given id whose
// record does not carry its own handler.
func WithActionHandler(actionID string, fn ActionHandler) EngineOption {
	return func(e *Engine) {
		if actionID != "" && fn != nil {
			e.handlers[actionID] = fn
		}
	}
}

// WithLogger sets the logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides the id generator.
func WithIDGenerator(g *IDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithSurfacePriority sets the lowest priority of websocket records that are
// also surfaced as local notifications. Defaults to PriorityLow, so every
// websocket record is surfaced.
func WithSurfacePriority(p Priority) EngineOption {
	return func(e *Engine) { e.surfaceAt = ParsePriority(string(p)) }
}

// WithTexts localizes the titles and bodies of records synthesized from
// real-time updates.
func WithTexts(t TextSource) EngineOption {
	return func(e *Engine) { e.texts = t }
}

// WithSyncTimeout bounds each backend propagation call. Defaults to 10s.
func WithSyncTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.syncWait = d
		}
	}
}

// NewEngine creates an engine. Call Initialize to start listening to the adapters.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		store:      newMemoryStore(),
		now:        time.Now,
		logger:     slog.Default(),
		handlers:   make(map[string]ActionHandler),
		surfaceAt:  PriorityLow,
		syncWait:   10 * time.Second,
		deliveries: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.ids == nil {
		e.ids = NewIDGenerator(e.now)
	}
	e.convert = NewConverter(e.ids, e.now)
	e.convert.Texts = e.texts
	e.logger = e.logger.With(logger.Component("notifications"))
	e.added = listeners.New[Notification]("notifications.added", listeners.WithLogger(e.logger))
	e.stats = listeners.New[Stats]("notifications.stats", listeners.WithLogger(e.logger))
	return e
}

// Initialize registers the engine on the configured adapters. It opens no
// connections. Calls after the first are no-ops.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if e.initialized {
		return nil
	}

	if e.push != nil {
		recv := e.push.OnNotificationReceived(e.onPushReceived)
		resp := e.push.OnNotificationResponse(e.onPushResponse)
		p := e.push
		e.subs = append(e.subs, func() {
			p.RemoveReceivedListener(recv)
			p.RemoveResponseListener(resp)
		})
	}
	if e.realtime != nil {
		notif := e.realtime.OnNotification(e.onRealtimeNotification)
		upd := e.realtime.OnUpdate(e.onRealtimeUpdate)
		r := e.realtime
		e.subs = append(e.subs, func() {
			r.RemoveNotificationListener(notif)
			r.RemoveUpdateListener(upd)
		})
	}

	e.initialized = true
	e.logger.LogAttrs(ctx, slog.LevelInfo, "notification engine initialized",
		slog.Bool("push", e.push != nil),
		slog.Bool("realtime", e.realtime != nil),
	)
	return nil
}

// Close unregisters from the adapters and waits for in-flight backend
// propagation. Held records stay readable.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	subs := e.subs
	e.subs = nil
	e.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
	e.syncs.Wait()
}

// SendNotification stores a local record, surfaces it through the push
// adapter and returns its id. A failed surfacing is logged only.
func (e *Engine) SendNotification(ctx context.Context, in Input) string {
	n := e.convert.FromInput(in)
	stored := e.put(ctx, n)
	e.surface(ctx, stored)
	return stored.ID
}

// Ingest stores an already converted record. Re-adding an id overwrites the
// record; a record that was read stays read.
func (e *Engine) Ingest(ctx context.Context, n Notification) Notification {
	if n.ID == "" {
		n.ID = e.ids.Next(n.Source)
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = e.now()
	}
	n.Type = ParseType(string(n.Type))
	n.Priority = ParsePriority(string(n.Priority))
	return e.put(ctx, n)
}

// IngestAPI stores records fetched from the backend and returns how many
// ids were not held before. Only those are fanned out to record listeners.
func (e *Engine) IngestAPI(ctx context.Context, records []APIRecord) int {
	if len(records) == 0 {
		return 0
	}

	var created []Notification
	for _, r := range records {
		n, isNew := e.store.put(e.convert.FromAPI(r))
		e.mirrorSave(ctx, n)
		if isNew {
			created = append(created, n)
		}
	}

	for _, n := range created {
		e.added.Emit(ctx, n)
	}
	e.emitStats(ctx)

	e.logger.LogAttrs(ctx, slog.LevelDebug, "api notifications ingested",
		logger.Count(len(records)),
		slog.Int("created", len(created)),
	)
	return len(created)
}

// put is the common write path: persist, mirror, fan out.
func (e *Engine) put(ctx context.Context, n Notification) Notification {
	stored, _ := e.store.put(n)
	e.mirrorSave(ctx, stored)
	e.added.Emit(ctx, stored)
	e.emitStats(ctx)
	return stored
}

// GetNotifications returns the matching records newest first.
func (e *Engine) GetNotifications(f Filters) []Notification {
	return e.store.list(f)
}

// GetNotification looks up a record by id.
func (e *Engine) GetNotification(id string) (Notification, bool) {
	return e.store.get(id)
}

// MarkAsRead marks the record read. It returns false if the record is
// absent or already read. Mutations of api records are propagated to the
// backend in the background.
func (e *Engine) MarkAsRead(ctx context.Context, id string) bool {
	n, ok := e.store.markRead(id, e.now())
	if !ok {
		return false
	}
	e.mirrorSave(ctx, n)
	e.propagate(ctx, n, "mark_read")
	e.emitStats(ctx)
	return true
}

// MarkAllAsRead marks every unread matching record read and returns how many changed.
func (e *Engine) MarkAllAsRead(ctx context.Context, f Filters) int {
	changed := e.store.markAllRead(f, e.now())
	if len(changed) == 0 {
		return 0
	}
	for _, n := range changed {
		e.mirrorSave(ctx, n)
		e.propagate(ctx, n, "mark_read")
	}
	e.emitStats(ctx)
	return len(changed)
}

// DeleteNotification removes the record. It returns false if it was absent.
func (e *Engine) DeleteNotification(ctx context.Context, id string) bool {
	n, ok := e.store.delete(id)
	if !ok {
		return false
	}
	e.forgetDeliveries(id)
	e.mirrorDelete(ctx, id)
	e.propagate(ctx, n, "delete")
	e.emitStats(ctx)
	return true
}

// ClearAll removes every record locally and returns how many were held.
// Nothing is propagated to the backend.
func (e *Engine) ClearAll(ctx context.Context) int {
	removed := e.store.clear()
	if len(removed) == 0 {
		return 0
	}

	e.mu.Lock()
	clear(e.deliveries)
	e.mu.Unlock()

	ids := make([]string, len(removed))
	for i, n := range removed {
		ids[i] = n.ID
	}
	e.mirrorDelete(ctx, ids...)
	e.emitStats(ctx)
	return len(removed)
}

// GetStats aggregates the matching records.
func (e *Engine) GetStats(f Filters) Stats {
	return e.store.stats(f)
}

// HandleNotificationAction runs an action on a record. Any action marks the
// record read first. It returns false if the record is absent.
func (e *Engine) HandleNotificationAction(ctx context.Context, id, actionID string, data map[string]any) bool {
	if !e.store.contains(id) {
		return false
	}
	e.MarkAsRead(ctx, id)

	n, ok := e.store.get(id)
	if !ok {
		return false
	}

	log := e.logger.With(logger.NotificationID(id), logger.ActionID(actionID))

	switch actionID {
	case ActionTapped:
		if e.navigate == nil {
			return true
		}
		e.safely(ctx, log, func() error {
			e.navigate(ctx, n, data)
			return nil
		})

	case ActionDismiss:
		e.DeleteNotification(ctx, id)

	default:
		handler := e.handlers[actionID]
		action, found := n.Action(actionID)
		if found && action.Handler != nil {
			handler = action.Handler
		}
		if handler == nil {
			log.LogAttrs(ctx, slog.LevelDebug, "no handler for notification action")
			return true
		}
		e.safely(ctx, log, func() error { return handler(ctx, n, data) })
	}
	return true
}

// safely runs fn, logging its error or panic.
func (e *Engine) safely(ctx context.Context, log *slog.Logger, fn func() error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.LogAttrs(ctx, slog.LevelError, "notification action panicked", logger.Panic(rec))
		}
	}()
	if err := fn(); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "notification action failed", logger.Error(err))
	}
}

// AddListener registers fn for every stored record.
func (e *Engine) AddListener(fn func(Notification)) listeners.ID {
	return e.added.Add(fn)
}

// RemoveListener unregisters a listener added with AddListener.
func (e *Engine) RemoveListener(id listeners.ID) bool {
	return e.added.Remove(id)
}

// AddStatsListener registers fn for stats changes. Stats are computed over
// all held records.
func (e *Engine) AddStatsListener(fn func(Stats)) listeners.ID {
	return e.stats.Add(fn)
}

// RemoveStatsListener unregisters a listener added with AddStatsListener.
func (e *Engine) RemoveStatsListener(id listeners.ID) bool {
	return e.stats.Remove(id)
}

// Restore loads the mirror snapshot into the store and returns how many
// records were loaded. Records already held win over the snapshot.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	if e.mirror == nil {
		return 0, ErrNoMirror
	}
	records, err := e.mirror.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("notifications: restore: %w", err)
	}

	loaded := 0
	for _, n := range records {
		if n.ID == "" || e.store.contains(n.ID) {
			continue
		}
		e.store.put(n)
		loaded++
	}
	if loaded > 0 {
		e.emitStats(ctx)
	}

	e.logger.LogAttrs(ctx, slog.LevelInfo, "notifications restored from mirror", logger.Count(loaded))
	return loaded, nil
}

// Merge applies a record written by another process sharing the mirror.
// An id not held yet is stored and fanned out to record listeners. A held
// record is updated in place and only statistics are emitted. An identical
// copy changes nothing. Merge never writes to the mirror or the backend and
// reports whether the store changed.
func (e *Engine) Merge(ctx context.Context, n Notification) bool {
	if n.ID == "" {
		return false
	}
	if held, ok := e.store.get(n.ID); ok && sameRecord(held, n) {
		return false
	}

	stored, created := e.store.put(n)
	if created {
		e.added.Emit(ctx, stored)
	}
	e.emitStats(ctx)
	return true
}

// Forget removes records deleted by another process sharing the mirror and
// returns how many were held. Nothing is propagated.
func (e *Engine) Forget(ctx context.Context, ids ...string) int {
	removed := 0
	for _, id := range ids {
		if _, ok := e.store.delete(id); ok {
			e.forgetDeliveries(id)
			removed++
		}
	}
	if removed > 0 {
		e.emitStats(ctx)
	}
	return removed
}

func sameRecord(a, b Notification) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && bytes.Equal(ja, jb)
}

func (e *Engine) emitStats(ctx context.Context) {
	if e.stats.Len() == 0 {
		return
	}
	e.stats.Emit(ctx, e.store.stats(Filters{}))
}

func (e *Engine) mirrorSave(ctx context.Context, n Notification) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Save(ctx, n); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to mirror notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
	}
}

func (e *Engine) mirrorDelete(ctx context.Context, ids ...string) {
	if e.mirror == nil {
		return
	}
	if err := e.mirror.Delete(ctx, ids...); err != nil {
		e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to remove mirrored notifications",
			logger.Count(len(ids)),
			logger.Error(err),
		)
	}
}

// propagate sends a mutation of an api record to the backend without
// blocking the caller. The local mutation is never rolled back.
func (e *Engine) propagate(ctx context.Context, n Notification, op string) {
	if n.Source != SourceAPI || e.backend == nil {
		return
	}

	e.syncs.Add(1)
	go func() {
		defer e.syncs.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.syncWait)
		defer cancel()

		var err error
		switch op {
		case "mark_read":
			err = e.backend.MarkRead(ctx, n.ID)
		case "delete":
			err = e.backend.Delete(ctx, n.ID)
		}
		if err != nil {
			e.logger.LogAttrs(ctx, slog.LevelWarn, "failed to propagate notification change to backend",
				logger.NotificationID(n.ID),
				slog.String("operation", op),
				logger.Error(err),
			)
		}
	}()
}

// surface asks the push adapter to present n locally. The presentation
// carries the record id so push events can be matched back to it.
func (e *Engine) surface(ctx context.Context, n Notification) {
	if e.push == nil {
		return
	}

	data := maps.Clone(n.Data)
	if data == nil {
		data = make(map[string]any, 2)
	}
	data[DataNotificationID] = n.ID
	data["type"] = string(n.Type)

	buttons := make([]push.ActionButton, 0, len(n.Actions))
	for _, a := range n.Actions {
		buttons = append(buttons, push.ActionButton{ID: a.ID, Title: a.Title})
	}

	deliveryID, err := e.push.SendLocalNotification(ctx, push.Content{
		Title:    n.Title,
		Body:     n.Body,
		Data:     data,
		Level:    LevelFromPriority(n.Priority),
		Sound:    n.Priority.Rank() >= PriorityHigh.Rank(),
		Category: string(n.Type),
		Buttons:  buttons,
	})
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, push.ErrLocalUnavailable) {
			level = slog.LevelDebug
		}
		e.logger.LogAttrs(ctx, level, "failed to surface notification",
			logger.NotificationID(n.ID),
			logger.Error(err),
		)
		return
	}

	e.mu.Lock()
	e.deliveries[deliveryID] = n.ID
	e.mu.Unlock()
}

func (e *Engine) forgetDeliveries(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for delivery, recordID := range e.deliveries {
		if recordID == id {
			delete(e.deliveries, delivery)
		}
	}
}

// recordFor resolves the record a push message belongs to.
func (e *Engine) recordFor(msg push.Message) (string, bool) {
	if id := stringField(msg.Data, DataNotificationID); id != "" && e.store.contains(id) {
		return id, true
	}
	e.mu.Lock()
	id, ok := e.deliveries[msg.Identifier]
	e.mu.Unlock()
	if ok && e.store.contains(id) {
		return id, true
	}
	return "", false
}

func (e *Engine) onPushReceived(msg push.Message) {
	ctx := context.Background()
	if _, held := e.recordFor(msg); held {
		return
	}

	n := e.Ingest(ctx, e.convert.FromPush(msg))
	if msg.Identifier != "" {
		e.mu.Lock()
		e.deliveries[msg.Identifier] = n.ID
		e.mu.Unlock()
	}
	e.logger.LogAttrs(ctx, slog.LevelDebug, "push notification ingested",
		logger.NotificationID(n.ID),
		logger.Source(string(SourcePush)),
	)
}

func (e *Engine) onPushResponse(resp push.Response) {
	ctx := context.Background()

	id, held := e.recordFor(resp.Message)
	if !held {
		n := e.Ingest(ctx, e.convert.FromPush(resp.Message))
		id = n.ID
	}

	actionID := resp.ActionID
	if actionID == "" || actionID == push.DefaultActionID {
		actionID = ActionTapped
	}

	var data map[string]any
	if resp.UserText != "" {
		data = map[string]any{"userText": resp.UserText}
	}
	e.HandleNotificationAction(ctx, id, actionID, data)
}

func (e *Engine) onRealtimeNotification(m realtime.Notification) {
	ctx := context.Background()
	n := e.Ingest(ctx, e.convert.FromRealtime(m))
	if n.Priority.Rank() >= e.surfaceAt.Rank() {
		e.surface(ctx, n)
	}
}

func (e *Engine) onRealtimeUpdate(u realtime.Update) {
	ctx := context.Background()
	n, ok := e.convert.FromUpdate(u)
	if !ok {
		return
	}
	n = e.Ingest(ctx, n)
	if n.Priority.Rank() >= e.surfaceAt.Rank() {
		e.surface(ctx, n)
	}
}
