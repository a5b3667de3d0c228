package feed

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
)

func TestFeed_ClosedSubscriberIsNotDropped(t *testing.T) {
	var buf bytes.Buffer
	engine := notifications.NewEngine(notifications.WithLogger(logger.Discard()))
	require.NoError(t, engine.Initialize(context.Background()))
	t.Cleanup(engine.Close)

	f := New(engine, WithLogger(logger.New(logger.WithOutput(&buf), logger.WithFormat(logger.FormatText))))
	sub := f.Subscribe(context.Background(), notifications.Filters{})

	// Closed but not yet unsubscribed.
	require.True(t, sub.close())
	require.Equal(t, 1, f.Subscribers())

	engine.SendNotification(context.Background(), notifications.Input{Title: "Exam"})
	assert.NotContains(t, buf.String(), "dropping slow feed subscriber")
	assert.Equal(t, 1, f.Stats(notifications.Filters{}).Total)

	require.NoError(t, f.Close())
	f.drop(sub)
	assert.NotContains(t, buf.String(), "dropping slow feed subscriber", "a closed feed schedules no cleanup")
}
