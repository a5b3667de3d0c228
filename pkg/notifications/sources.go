package notifications

import (
	"context"

	"github.com/dmitrymomot/schoolfeed/pkg/listeners"
	"github.com/dmitrymomot/schoolfeed/pkg/push"
	"github.com/dmitrymomot/schoolfeed/pkg/realtime"
)

// PushSource is the part of the push adapter the engine drives.
type PushSource interface {
	SendLocalNotification(ctx context.Context, content push.Content) (string, error)
	OnNotificationReceived(fn func(push.Message)) listeners.ID
	RemoveReceivedListener(id listeners.ID) bool
	OnNotificationResponse(fn func(push.Response)) listeners.ID
	RemoveResponseListener(id listeners.ID) bool
}

// RealtimeSource is the part of the realtime adapter the engine listens to.
type RealtimeSource interface {
	OnNotification(fn func(realtime.Notification)) listeners.ID
	RemoveNotificationListener(id listeners.ID) bool
	OnUpdate(fn func(realtime.Update)) listeners.ID
	RemoveUpdateListener(id listeners.ID) bool
}

// BackendSyncer propagates mutations of api-sourced records to the backend.
type BackendSyncer interface {
	MarkRead(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// Mirror keeps a copy of held records outside the process.
type Mirror interface {
	Save(ctx context.Context, n Notification) error
	Delete(ctx context.Context, ids ...string) error
	Load(ctx context.Context) ([]Notification, error)
}

// Navigator handles the built-in tapped action.
type Navigator func(ctx context.Context, n Notification, data map[string]any)
