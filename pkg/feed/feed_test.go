package feed_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/schoolfeed/pkg/feed"
	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

func newFeed(t *testing.T, opts ...feed.Option) (*feed.Feed, *notifications.Engine) {
	t.Helper()
	engine := notifications.NewEngine(notifications.WithLogger(logger.Discard()))
	require.NoError(t, engine.Initialize(context.Background()))
	f := feed.New(engine, append([]feed.Option{feed.WithLogger(logger.Discard())}, opts...)...)
	t.Cleanup(func() {
		_ = f.Close()
		engine.Close()
	})
	return f, engine
}

func next(t *testing.T, sub *feed.Subscription) feed.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return feed.Event{}
	}
}

func drain(sub *feed.Subscription) {
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func TestFeed_Subscribe(t *testing.T) {
	t.Parallel()

	f, engine := newFeed(t)
	ctx := context.Background()
	engine.SendNotification(ctx, notifications.Input{Title: "existing"})

	sub := f.Subscribe(ctx, notifications.Filters{})
	defer sub.Close()

	ev := next(t, sub)
	assert.Equal(t, feed.KindStats, ev.Kind)
	require.NotNil(t, ev.Stats)
	assert.Equal(t, 1, ev.Stats.Total, "first event is the current snapshot")

	id := f.Send(ctx, notifications.Input{Title: "fresh", Type: notifications.TypeEvent})

	ev = next(t, sub)
	assert.Equal(t, feed.KindAdded, ev.Kind)
	require.NotNil(t, ev.Notification)
	assert.Equal(t, id, ev.Notification.ID)

	ev = next(t, sub)
	assert.Equal(t, feed.KindStats, ev.Kind)
	assert.Equal(t, 2, ev.Stats.Total)
	assert.Equal(t, 2, ev.Stats.Unread)
}

func TestFeed_FilteredSubscription(t *testing.T) {
	t.Parallel()

	f, _ := newFeed(t)
	ctx := context.Background()

	sub := f.Subscribe(ctx, notifications.Filters{Type: notifications.TypePayment})
	defer sub.Close()
	drain(sub)

	f.Send(ctx, notifications.Input{Title: "grade", Type: notifications.TypeAcademic})
	ev := next(t, sub)
	assert.Equal(t, feed.KindStats, ev.Kind, "non-matching record is not delivered")
	assert.Zero(t, ev.Stats.Total)

	f.Send(ctx, notifications.Input{Title: "fees", Type: notifications.TypePayment})
	ev = next(t, sub)
	assert.Equal(t, feed.KindAdded, ev.Kind)
	assert.Equal(t, "fees", ev.Notification.Title)

	ev = next(t, sub)
	assert.Equal(t, 1, ev.Stats.Total)
	assert.Equal(t, 1, ev.Stats.ByType[notifications.TypePayment])
}

func TestFeed_Actions(t *testing.T) {
	t.Parallel()

	f, _ := newFeed(t)
	ctx := context.Background()

	a := f.Send(ctx, notifications.Input{Title: "a", Type: notifications.TypeAcademic})
	b := f.Send(ctx, notifications.Input{Title: "b", Type: notifications.TypeAcademic})
	c := f.Send(ctx, notifications.Input{Title: "c", Type: notifications.TypeGeneral})

	assert.True(t, f.MarkRead(ctx, a))
	assert.False(t, f.MarkRead(ctx, a))
	assert.Equal(t, 1, f.MarkAllRead(ctx, notifications.Filters{Type: notifications.TypeAcademic}))

	assert.True(t, f.Act(ctx, c, notifications.ActionDismiss, nil))
	_, ok := f.Get(c)
	assert.False(t, ok)

	assert.True(t, f.Delete(ctx, b))
	assert.False(t, f.Delete(ctx, b))

	view := f.View(notifications.Filters{})
	require.Len(t, view.Notifications, 1)
	assert.Equal(t, a, view.Notifications[0].ID)
	assert.Equal(t, 1, view.Stats.Total)
	assert.Zero(t, view.Stats.Unread)
}

func TestFeed_SlowSubscriberDropped(t *testing.T) {
	t.Parallel()

	f, _ := newFeed(t, feed.WithBufferSize(1))
	ctx := context.Background()

	slow := f.Subscribe(ctx, notifications.Filters{})
	for range 3 {
		f.Send(ctx, notifications.Input{Title: "burst"})
	}

	assert.Eventually(t, func() bool { return f.Subscribers() == 0 }, time.Second, time.Millisecond)

	// The buffered snapshot is still readable, then the channel is closed.
	_, ok := <-slow.Events()
	assert.True(t, ok)
	_, ok = <-slow.Events()
	assert.False(t, ok)
}

func TestFeed_ContextCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	f, _ := newFeed(t)
	ctx, cancel := context.WithCancel(context.Background())

	sub := f.Subscribe(ctx, notifications.Filters{})
	assert.Equal(t, 1, f.Subscribers())

	cancel()
	assert.Eventually(t, func() bool { return f.Subscribers() == 0 }, time.Second, time.Millisecond)

	for range sub.Events() {
	}
}

func TestFeed_Close(t *testing.T) {
	t.Parallel()

	f, engine := newFeed(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := f.Subscribe(ctx, notifications.Filters{})
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	for range sub.Events() {
	}

	late := f.Subscribe(context.Background(), notifications.Filters{})
	_, ok := <-late.Events()
	assert.False(t, ok, "subscribing to a closed feed yields a closed subscription")

	// The engine keeps working without the feed attached.
	assert.NotEmpty(t, engine.SendNotification(context.Background(), notifications.Input{Title: "after"}))
	assert.NoError(t, sub.Close())
}
