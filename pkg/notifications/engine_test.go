package notifications_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/schoolfeed/pkg/listeners"
	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
	"github.com/dmitrymomot/schoolfeed/pkg/push"
	"github.com/dmitrymomot/schoolfeed/pkg/realtime"
)

// stepClock advances one second on every call.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// fakeRealtime lets tests inject websocket events.
type fakeRealtime struct {
	notifications *listeners.Registry[realtime.Notification]
	updates       *listeners.Registry[realtime.Update]
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{
		notifications: listeners.New[realtime.Notification]("test.notification", listeners.WithLogger(logger.Discard())),
		updates:       listeners.New[realtime.Update]("test.update", listeners.WithLogger(logger.Discard())),
	}
}

func (f *fakeRealtime) OnNotification(fn func(realtime.Notification)) listeners.ID {
	return f.notifications.Add(fn)
}

func (f *fakeRealtime) RemoveNotificationListener(id listeners.ID) bool {
	return f.notifications.Remove(id)
}

func (f *fakeRealtime) OnUpdate(fn func(realtime.Update)) listeners.ID { return f.updates.Add(fn) }

func (f *fakeRealtime) RemoveUpdateListener(id listeners.ID) bool { return f.updates.Remove(id) }

func (f *fakeRealtime) notify(n realtime.Notification) {
	f.notifications.Emit(context.Background(), n)
}

func (f *fakeRealtime) update(u realtime.Update) { f.updates.Emit(context.Background(), u) }

// MockBackend for testing api propagation
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) MarkRead(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockBackend) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

// MockMirror for testing mirroring and restore
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Save(ctx context.Context, n notifications.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func (m *MockMirror) Delete(ctx context.Context, ids ...string) error {
	return m.Called(ctx, ids).Error(0)
}

func (m *MockMirror) Load(ctx context.Context) ([]notifications.Notification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]notifications.Notification), args.Error(1)
}

type harness struct {
	engine   *notifications.Engine
	platform *push.LogPlatform
	adapter  *push.Adapter
	realtime *fakeRealtime
}

func newHarness(t *testing.T, opts ...notifications.EngineOption) *harness {
	t.Helper()

	platform := push.NewLogPlatform(push.WithPlatformLogger(logger.Discard()))
	adapter := push.NewAdapter(platform, push.WithLogger(logger.Discard()))
	adapter.Initialize(context.Background())
	rt := newFakeRealtime()
	clock := newStepClock()

	opts = append([]notifications.EngineOption{
		notifications.WithPush(adapter),
		notifications.WithRealtime(rt),
		notifications.WithClock(clock.Now),
		notifications.WithLogger(logger.Discard()),
	}, opts...)

	engine := notifications.NewEngine(opts...)
	require.NoError(t, engine.Initialize(context.Background()))
	t.Cleanup(func() {
		engine.Close()
		_ = adapter.Close()
	})
	return &harness{engine: engine, platform: platform, adapter: adapter, realtime: rt}
}

func TestEngine_Initialize(t *testing.T) {
	rt := newFakeRealtime()
	engine := notifications.NewEngine(notifications.WithRealtime(rt), notifications.WithLogger(logger.Discard()))

	require.NoError(t, engine.Initialize(context.Background()))
	require.NoError(t, engine.Initialize(context.Background()))
	assert.Equal(t, 1, rt.notifications.Len(), "repeated initialize registers once")
	assert.Equal(t, 1, rt.updates.Len())

	engine.Close()
	assert.Zero(t, rt.notifications.Len())
	assert.ErrorIs(t, engine.Initialize(context.Background()), notifications.ErrClosed)
}

func TestEngine_SendNotification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var added []notifications.Notification
	h.engine.AddListener(func(n notifications.Notification) { added = append(added, n) })

	id := h.engine.SendNotification(ctx, notifications.Input{
		Title:    "Sports day",
		Body:     "Friday 10:00",
		Type:     notifications.TypeEvent,
		Priority: notifications.PriorityHigh,
	})
	require.NotEmpty(t, id)
	assert.Regexp(t, `^local-\d+-\d+-[0-9a-f]{8}$`, id)

	n, ok := h.engine.GetNotification(id)
	require.True(t, ok)
	assert.Equal(t, notifications.SourceLocal, n.Source)
	assert.False(t, n.Read)
	assert.Equal(t, notifications.TypeEvent, n.Type)

	require.Len(t, added, 1, "listener fan-out happens before SendNotification returns")
	assert.Equal(t, id, added[0].ID)

	presented := h.platform.Presented()
	require.Len(t, presented, 1, "local records are surfaced")
	assert.Equal(t, id, presented[0].Data[notifications.DataNotificationID])
	assert.Equal(t, push.LevelHigh, presented[0].Level)

	assert.Len(t, h.engine.GetNotifications(notifications.Filters{}), 1, "surfacing echo is not stored twice")
}

func TestEngine_SendNotificationDefaults(t *testing.T) {
	h := newHarness(t)
	id := h.engine.SendNotification(context.Background(), notifications.Input{Title: "x", Type: "homework", Priority: "critical"})

	n, ok := h.engine.GetNotification(id)
	require.True(t, ok)
	assert.Equal(t, notifications.TypeGeneral, n.Type)
	assert.Equal(t, notifications.PriorityNormal, n.Priority)
}

func TestEngine_SortedNewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.SendNotification(ctx, notifications.Input{Title: "a"})
	h.realtime.notify(realtime.Notification{ID: "ws-old", Title: "old", Timestamp: "2020-01-01T00:00:00Z"})
	h.engine.SendNotification(ctx, notifications.Input{Title: "b"})
	h.realtime.notify(realtime.Notification{ID: "ws-future", Title: "future", Timestamp: "2030-01-01T00:00:00Z"})
	h.engine.IngestAPI(ctx, []notifications.APIRecord{{ID: "17", Title: "api", CreatedAt: time.Date(2022, 5, 1, 0, 0, 0, 0, time.UTC)}})
	_, err := h.adapter.ScheduleNotification(ctx, push.Content{Title: "pushed"}, push.After(time.Millisecond))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(h.engine.GetNotifications(notifications.Filters{Source: notifications.SourcePush})) == 1
	}, time.Second, 5*time.Millisecond)

	list := h.engine.GetNotifications(notifications.Filters{})
	require.Len(t, list, 6)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].Timestamp.After(list[i-1].Timestamp), "record %d is newer than record %d", i, i-1)
	}
	assert.Equal(t, "ws-future", list[0].ID)
	assert.Equal(t, "ws-old", list[len(list)-1].ID)
}

func TestEngine_MarkAsRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var stats []notifications.Stats
	h.engine.AddStatsListener(func(s notifications.Stats) { stats = append(stats, s) })

	id := h.engine.SendNotification(ctx, notifications.Input{Title: "x"})
	require.Len(t, stats, 1)

	assert.True(t, h.engine.MarkAsRead(ctx, id))
	require.NotPanics(t, func() { assert.False(t, h.engine.MarkAsRead(ctx, id)) })

	n, _ := h.engine.GetNotification(id)
	assert.True(t, n.Read)
	assert.NotNil(t, n.ReadAt)
	assert.Len(t, stats, 2, "stats fan-out only when something changed")
	assert.Zero(t, stats[1].Unread)

	t.Run("ghost id", func(t *testing.T) {
		before := h.engine.GetStats(notifications.Filters{}).Total
		assert.False(t, h.engine.MarkAsRead(ctx, "ghost-1"))
		assert.Equal(t, before, h.engine.GetStats(notifications.Filters{}).Total)
	})
}

func TestEngine_MarkAllAsRead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.SendNotification(ctx, notifications.Input{Title: "a", Type: notifications.TypeAcademic})
	h.engine.SendNotification(ctx, notifications.Input{Title: "b", Type: notifications.TypeAcademic})
	h.engine.SendNotification(ctx, notifications.Input{Title: "c", Type: notifications.TypePayment})

	assert.Equal(t, 2, h.engine.MarkAllAsRead(ctx, notifications.Filters{Type: notifications.TypeAcademic}))
	assert.Zero(t, h.engine.MarkAllAsRead(ctx, notifications.Filters{Type: notifications.TypeAcademic}))
	assert.Equal(t, 1, h.engine.GetStats(notifications.Filters{}).Unread)
	assert.Equal(t, 1, h.engine.MarkAllAsRead(ctx, notifications.Filters{}))
}

func TestEngine_Delete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	keep := h.engine.SendNotification(ctx, notifications.Input{Title: "keep", Type: notifications.TypeEvent})
	drop := h.engine.SendNotification(ctx, notifications.Input{Title: "drop", Type: notifications.TypePayment})

	assert.True(t, h.engine.DeleteNotification(ctx, drop))
	assert.False(t, h.engine.DeleteNotification(ctx, drop))

	list := h.engine.GetNotifications(notifications.Filters{})
	require.Len(t, list, 1)
	assert.Equal(t, keep, list[0].ID)

	stats := h.engine.GetStats(notifications.Filters{})
	assert.Equal(t, 1, stats.Total)
	assert.Zero(t, stats.ByType[notifications.TypePayment])

	assert.Equal(t, 1, h.engine.ClearAll(ctx))
	assert.Zero(t, h.engine.ClearAll(ctx))
	assert.Empty(t, h.engine.GetNotifications(notifications.Filters{}))
}

func TestEngine_StatsMatchNotifications(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.engine.SendNotification(ctx, notifications.Input{Title: "a", Type: notifications.TypeAcademic, Priority: notifications.PriorityHigh, StudentID: "s1"})
	h.engine.SendNotification(ctx, notifications.Input{Title: "b", Type: notifications.TypePayment, StudentID: "s2"})
	h.realtime.notify(realtime.Notification{ID: "ws-1", Title: "c", Category: "emergency", Priority: "urgent", StudentID: "s1"})
	h.realtime.update(realtime.Update{Type: realtime.UpdateAttendance, Data: map[string]any{"studentId": "s2"}})
	h.engine.IngestAPI(ctx, []notifications.APIRecord{{ID: "9", Title: "d", Read: true}})
	read := h.engine.GetNotifications(notifications.Filters{Type: notifications.TypePayment})[0]
	h.engine.MarkAsRead(ctx, read.ID)

	isRead := true
	filters := []notifications.Filters{
		{},
		{Type: notifications.TypeAcademic},
		{Priority: notifications.PriorityUrgent},
		{Source: notifications.SourceWebSocket},
		{Read: notifications.Unread()},
		{Read: &isRead},
		{StudentID: "s1"},
		{From: time.Now().Add(-time.Hour), To: time.Now().Add(time.Hour)},
		{Type: notifications.TypeEvent},
	}

	for _, f := range filters {
		list := h.engine.GetNotifications(f)
		stats := h.engine.GetStats(f)

		unread := 0
		for _, n := range list {
			if !n.Read {
				unread++
			}
		}
		assert.Equal(t, len(list), stats.Total, "filters %+v", f)
		assert.Equal(t, unread, stats.Unread, "filters %+v", f)
	}

	all := h.engine.GetStats(notifications.Filters{})
	assert.Equal(t, 5, all.Total)
	assert.Equal(t, 2, all.BySource[notifications.SourceWebSocket])
	assert.Equal(t, 1, all.BySource[notifications.SourceAPI])
	assert.Equal(t, 2, all.ByType[notifications.TypeAcademic])
}

func TestEngine_RealtimeNotification(t *testing.T) {
	h := newHarness(t)

	h.realtime.notify(realtime.Notification{
		ID:        "ws-1",
		Title:     "T",
		Body:      "B",
		Category:  "academic",
		Priority:  "high",
		Timestamp: "2024-01-01T00:00:00Z",
	})

	n, ok := h.engine.GetNotification("ws-1")
	require.True(t, ok)
	assert.Equal(t, notifications.SourceWebSocket, n.Source)
	assert.Equal(t, notifications.TypeAcademic, n.Type)
	assert.Equal(t, "2024-01-01T00:00:00Z", n.Timestamp.Format(time.RFC3339))

	presented := h.platform.Presented()
	require.Len(t, presented, 1, "websocket records are surfaced locally")
	assert.Equal(t, "ws-1", presented[0].Data[notifications.DataNotificationID])
	assert.Len(t, h.engine.GetNotifications(notifications.Filters{}), 1)

	t.Run("same id overwrites", func(t *testing.T) {
		require.True(t, h.engine.MarkAsRead(context.Background(), "ws-1"))
		h.realtime.notify(realtime.Notification{ID: "ws-1", Title: "T2", Category: "academic"})

		list := h.engine.GetNotifications(notifications.Filters{})
		require.Len(t, list, 1)
		assert.Equal(t, "T2", list[0].Title)
		assert.True(t, list[0].Read, "read never reverts")
	})
}

func TestEngine_SurfacePriority(t *testing.T) {
	h := newHarness(t, notifications.WithSurfacePriority(notifications.PriorityHigh))

	h.realtime.notify(realtime.Notification{ID: "ws-low", Title: "low", Priority: "low"})
	h.realtime.notify(realtime.Notification{ID: "ws-urgent", Title: "urgent", Priority: "urgent"})

	presented := h.platform.Presented()
	require.Len(t, presented, 1)
	assert.Equal(t, "ws-urgent", presented[0].Data[notifications.DataNotificationID])
	assert.Len(t, h.engine.GetNotifications(notifications.Filters{}), 2)
}

func TestEngine_RealtimeUpdates(t *testing.T) {
	tests := []struct {
		name     string
		update   realtime.Update
		want     bool
		title    string
		typ      notifications.Type
		priority notifications.Priority
	}{
		{
			name:     "grade",
			update:   realtime.Update{Type: realtime.UpdateGrade, Data: map[string]any{"subject": "Math"}},
			want:     true,
			title:    "New Grade Posted",
			typ:      notifications.TypeAcademic,
			priority: notifications.PriorityHigh,
		},
		{
			name:     "attendance",
			update:   realtime.Update{Type: realtime.UpdateAttendance},
			want:     true,
			title:    "Attendance Updated",
			typ:      notifications.TypeAcademic,
			priority: notifications.PriorityNormal,
		},
		{
			name:     "announcement with title",
			update:   realtime.Update{Type: realtime.UpdateAnnouncement, Data: map[string]any{"title": "Holiday", "message": "School closed Monday"}},
			want:     true,
			title:    "Holiday",
			typ:      notifications.TypeGeneral,
			priority: notifications.PriorityHigh,
		},
		{
			name:     "announcement without title",
			update:   realtime.Update{Type: realtime.UpdateAnnouncement},
			want:     true,
			title:    "New Announcement",
			typ:      notifications.TypeGeneral,
			priority: notifications.PriorityHigh,
		},
		{name: "user status", update: realtime.Update{Type: realtime.UpdateUserStatus}},
		{name: "calendar", update: realtime.Update{Type: realtime.UpdateCalendar}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.realtime.update(tt.update)

			list := h.engine.GetNotifications(notifications.Filters{})
			if !tt.want {
				assert.Empty(t, list)
				return
			}
			require.Len(t, list, 1, "exactly one synthetic notification")
			n := list[0]
			assert.Equal(t, tt.title, n.Title)
			assert.Equal(t, tt.typ, n.Type)
			assert.Equal(t, tt.priority, n.Priority)
			assert.Equal(t, notifications.SourceWebSocket, n.Source)
			assert.Equal(t, string(tt.update.Type), n.Data["updateType"])
		})
	}
}

func TestEngine_PushReceived(t *testing.T) {
	h := newHarness(t)

	h.platform.Deliver(push.Message{
		Identifier: "remote-1",
		Title:      "Fee reminder",
		Level:      push.LevelMax,
		Data:       map[string]any{"type": "payment", "studentId": "s7"},
		Remote:     true,
	})

	list := h.engine.GetNotifications(notifications.Filters{})
	require.Len(t, list, 1)
	n := list[0]
	assert.Equal(t, notifications.SourcePush, n.Source)
	assert.Equal(t, notifications.TypePayment, n.Type)
	assert.Equal(t, notifications.PriorityUrgent, n.Priority)
	assert.Equal(t, "s7", n.StudentID)
	assert.Empty(t, h.platform.Presented(), "push records are not surfaced again")
}

func TestEngine_PushResponse(t *testing.T) {
	var navigated []string
	h := newHarness(t, notifications.WithNavigator(func(_ context.Context, n notifications.Notification, _ map[string]any) {
		navigated = append(navigated, n.ID)
	}))
	ctx := context.Background()

	id := h.engine.SendNotification(ctx, notifications.Input{Title: "Open me"})
	delivery := h.platform.Presented()[0].Identifier

	require.True(t, h.platform.Tap(delivery, ""))
	assert.Equal(t, []string{id}, navigated)

	n, _ := h.engine.GetNotification(id)
	assert.True(t, n.Read, "acting on a notification marks it read")

	t.Run("dismiss button deletes", func(t *testing.T) {
		require.True(t, h.platform.Tap(delivery, notifications.ActionDismiss))
		_, ok := h.engine.GetNotification(id)
		assert.False(t, ok)
	})
}

func TestEngine_HandleNotificationAction(t *testing.T) {
	ctx := context.Background()

	t.Run("absent record", func(t *testing.T) {
		h := newHarness(t)
		assert.False(t, h.engine.HandleNotificationAction(ctx, "ghost-1", notifications.ActionTapped, nil))
	})

	t.Run("dismiss deletes an unread record", func(t *testing.T) {
		h := newHarness(t)
		id := h.engine.SendNotification(ctx, notifications.Input{Title: "x"})

		require.NotPanics(t, func() {
			assert.True(t, h.engine.HandleNotificationAction(ctx, id, notifications.ActionDismiss, nil))
		})
		assert.Empty(t, h.engine.GetNotifications(notifications.Filters{}))
	})

	t.Run("custom handler on the record", func(t *testing.T) {
		h := newHarness(t)
		var got map[string]any
		id := h.engine.SendNotification(ctx, notifications.Input{
			Title: "Permission slip",
			Actions: []notifications.Action{{
				ID:    "sign",
				Title: "Sign",
				Handler: func(_ context.Context, _ notifications.Notification, data map[string]any) error {
					got = data
					return nil
				},
			}},
		})

		assert.True(t, h.engine.HandleNotificationAction(ctx, id, "sign", map[string]any{"by": "parent"}))
		assert.Equal(t, "parent", got["by"])
	})

	t.Run("registered handler, errors and panics are contained", func(t *testing.T) {
		var calls atomic.Int32
		h := newHarness(t,
			notifications.WithActionHandler("fail", func(context.Context, notifications.Notification, map[string]any) error {
				calls.Add(1)
				return errors.New("handler failed")
			}),
			notifications.WithActionHandler("explode", func(context.Context, notifications.Notification, map[string]any) error {
				calls.Add(1)
				panic("boom")
			}),
		)
		id := h.engine.SendNotification(ctx, notifications.Input{Title: "x"})

		require.NotPanics(t, func() {
			assert.True(t, h.engine.HandleNotificationAction(ctx, id, "fail", nil))
			assert.True(t, h.engine.HandleNotificationAction(ctx, id, "explode", nil))
			assert.True(t, h.engine.HandleNotificationAction(ctx, id, "unknown", nil))
		})
		assert.Equal(t, int32(2), calls.Load())

		n, _ := h.engine.GetNotification(id)
		assert.True(t, n.Read)
	})
}

func TestEngine_ListenerIsolation(t *testing.T) {
	h := newHarness(t)

	var second []string
	h.engine.AddListener(func(notifications.Notification) { panic("listener bug") })
	h.engine.AddListener(func(n notifications.Notification) { second = append(second, n.ID) })
	h.engine.AddStatsListener(func(notifications.Stats) { panic("stats listener bug") })

	var id string
	require.NotPanics(t, func() {
		id = h.engine.SendNotification(context.Background(), notifications.Input{Title: "x"})
	})
	assert.Equal(t, []string{id}, second)
}

func TestEngine_RemoveListener(t *testing.T) {
	h := newHarness(t)
	calls := 0
	id := h.engine.AddListener(func(notifications.Notification) { calls++ })
	statsID := h.engine.AddStatsListener(func(notifications.Stats) { calls++ })

	assert.True(t, h.engine.RemoveListener(id))
	assert.True(t, h.engine.RemoveStatsListener(statsID))
	assert.False(t, h.engine.RemoveListener(id))

	h.engine.SendNotification(context.Background(), notifications.Input{Title: "x"})
	assert.Zero(t, calls)
}

func TestEngine_BackendPropagation(t *testing.T) {
	backend := new(MockBackend)
	backend.On("MarkRead", mock.Anything, "101").Return(errors.New("backend down")).Once()
	backend.On("Delete", mock.Anything, "102").Return(nil).Once()

	h := newHarness(t, notifications.WithBackend(backend), notifications.WithSyncTimeout(time.Second))
	ctx := context.Background()

	created := h.engine.IngestAPI(ctx, []notifications.APIRecord{
		{ID: "101", Title: "Report card"},
		{ID: "102", Title: "Bus change"},
	})
	assert.Equal(t, 2, created)
	local := h.engine.SendNotification(ctx, notifications.Input{Title: "local"})

	assert.True(t, h.engine.MarkAsRead(ctx, "101"), "local mutation succeeds even if the backend fails")
	assert.True(t, h.engine.DeleteNotification(ctx, "102"))
	assert.True(t, h.engine.MarkAsRead(ctx, local))

	h.engine.Close()
	backend.AssertExpectations(t)
	backend.AssertNotCalled(t, "MarkRead", mock.Anything, local)

	n, _ := h.engine.GetNotification("101")
	assert.True(t, n.Read, "no rollback")
}

func TestEngine_IngestAPI(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var added int
	h.engine.AddListener(func(notifications.Notification) { added++ })

	records := []notifications.APIRecord{{ID: "1", Title: "a"}, {ID: "2", Title: "b", Read: true}}
	assert.Equal(t, 2, h.engine.IngestAPI(ctx, records))
	assert.Zero(t, h.engine.IngestAPI(ctx, records), "polling the same page again creates nothing")
	assert.Equal(t, 2, added)

	assert.Len(t, h.engine.GetNotifications(notifications.Filters{}), 2)
	assert.Equal(t, 1, h.engine.GetStats(notifications.Filters{}).Unread)
	assert.Empty(t, h.platform.Presented(), "api records are not surfaced")
}

func TestEngine_Mirror(t *testing.T) {
	mirror := new(MockMirror)
	mirror.On("Save", mock.Anything, mock.Anything).Return(nil)
	mirror.On("Delete", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	h := newHarness(t, notifications.WithMirror(mirror))
	ctx := context.Background()

	id := h.engine.SendNotification(ctx, notifications.Input{Title: "x"})
	assert.True(t, h.engine.DeleteNotification(ctx, id), "mirror failures do not fail deletes")

	mirror.AssertCalled(t, "Save", mock.Anything, mock.MatchedBy(func(n notifications.Notification) bool { return n.ID == id }))
	mirror.AssertCalled(t, "Delete", mock.Anything, []string{id})
}

func TestEngine_Restore(t *testing.T) {
	ctx := context.Background()

	t.Run("no mirror", func(t *testing.T) {
		engine := notifications.NewEngine(notifications.WithLogger(logger.Discard()))
		_, err := engine.Restore(ctx)
		assert.ErrorIs(t, err, notifications.ErrNoMirror)
	})

	t.Run("loads snapshot", func(t *testing.T) {
		snapshot := []notifications.Notification{
			{ID: "ws-1", Title: "a", Source: notifications.SourceWebSocket, Type: notifications.TypeAcademic, Priority: notifications.PriorityHigh, Timestamp: time.Now()},
			{ID: "local-1", Title: "b", Source: notifications.SourceLocal, Type: notifications.TypeGeneral, Priority: notifications.PriorityNormal, Timestamp: time.Now(), Read: true},
			{Title: "no id"},
		}
		mirror := new(MockMirror)
		mirror.On("Load", mock.Anything).Return(snapshot, nil)

		engine := notifications.NewEngine(notifications.WithMirror(mirror), notifications.WithLogger(logger.Discard()))
		n, err := engine.Restore(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 1, engine.GetStats(notifications.Filters{}).Unread)
		mirror.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("load error", func(t *testing.T) {
		mirror := new(MockMirror)
		mirror.On("Load", mock.Anything).Return(nil, errors.New("redis down"))

		engine := notifications.NewEngine(notifications.WithMirror(mirror), notifications.WithLogger(logger.Discard()))
		_, err := engine.Restore(ctx)
		assert.Error(t, err)
	})
}

func TestEngine_MergeAndForget(t *testing.T) {
	mirror := new(MockMirror)
	h := newHarness(t, notifications.WithMirror(mirror))
	ctx := context.Background()

	var added, stats int
	h.engine.AddListener(func(notifications.Notification) { added++ })
	h.engine.AddStatsListener(func(notifications.Stats) { stats++ })

	remote := notifications.Notification{
		ID:        "local-remote-1",
		Title:     "Trip",
		Type:      notifications.TypeEvent,
		Priority:  notifications.PriorityNormal,
		Source:    notifications.SourceLocal,
		Timestamp: time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
		UserID:    "u1",
	}

	assert.True(t, h.engine.Merge(ctx, remote))
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, stats)

	assert.False(t, h.engine.Merge(ctx, remote), "identical copies are ignored")
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, stats)

	readAt := remote.Timestamp.Add(time.Minute)
	remote.Read, remote.ReadAt = true, &readAt
	assert.True(t, h.engine.Merge(ctx, remote))
	assert.Equal(t, 1, added, "updates of held records are not new records")
	assert.Equal(t, 2, stats)
	got, ok := h.engine.GetNotification(remote.ID)
	require.True(t, ok)
	assert.True(t, got.Read)

	assert.False(t, h.engine.Merge(ctx, notifications.Notification{Title: "no id"}))

	assert.Equal(t, 1, h.engine.Forget(ctx, remote.ID, "missing"))
	assert.Zero(t, h.engine.Forget(ctx, remote.ID))
	_, ok = h.engine.GetNotification(remote.ID)
	assert.False(t, ok)
	assert.Equal(t, 3, stats)

	mirror.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	mirror.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestEngine_ConcurrentUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := h.engine.SendNotification(ctx, notifications.Input{Title: "x"})
			if i%2 == 0 {
				h.engine.MarkAsRead(ctx, id)
			}
			_ = h.engine.GetStats(notifications.Filters{})
		}()
	}
	wg.Wait()

	stats := h.engine.GetStats(notifications.Filters{})
	assert.Equal(t, 20, stats.Total)
	assert.Equal(t, 10, stats.Unread)
}
