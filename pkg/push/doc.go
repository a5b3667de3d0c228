// Package push is the push delivery adapter: it wraps a device notification
// platform (permissions, push token registration, local presentation, badge)
// behind one Adapter.
//
// Initialization is deliberately forgiving. Permission request, token
// registration and listener setup are independent steps; a failure in one is
// logged and reflected in the returned Capabilities instead of aborting the
// others, so local notifications keep working on a simulator or without
// project credentials:
//
//	adapter := push.NewAdapter(platform, push.WithLogger(log))
//	caps := adapter.Initialize(ctx)
//	if !caps.PushAvailable {
//	    // remote push is off, local notifications may still be available
//	}
//
// Operations the caller explicitly asks for (SendLocalNotification,
// ScheduleNotification) return errors when they cannot be satisfied.
package push
