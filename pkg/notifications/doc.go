// Package notifications is the unification engine that turns push
// notifications, websocket events and REST records into one feed.
//
// Every source payload is converted into a canonical Notification before it
// is stored, so consumers only ever deal with one shape. Records are held in
// memory keyed by id; re-adding an id overwrites the record instead of
// duplicating it.
//
// # Architecture
//
//   - Converter: source payload to canonical record
//   - Engine: record store, statistics and listener fan-out
//   - PushSource, RealtimeSource: the transport adapters the engine listens to
//   - BackendSyncer, Mirror: optional collaborators receiving changes
//
// # Basic Usage
//
//	engine := notifications.NewEngine(
//	    notifications.WithPush(pushAdapter),
//	    notifications.WithRealtime(realtimeClient),
//	    notifications.WithLogger(log),
//	)
//	if err := engine.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer engine.Close()
//
//	engine.AddListener(func(n notifications.Notification) {
//	    fmt.Println("new notification:", n.Title)
//	})
//
//	id := engine.SendNotification(ctx, notifications.Input{
//	    Title:    "Exam schedule",
//	    Body:     "Mid-term exams start on Monday",
//	    Type:     notifications.TypeAcademic,
//	    Priority: notifications.PriorityHigh,
//	})
//
//	unread := engine.GetNotifications(notifications.Filters{Read: notifications.Unread()})
//
// # Surfacing
//
// Local notifications and websocket records are also presented through the
// push adapter. The presentation carries the record id under
// DataNotificationID, so the echo of a presentation is not stored a second
// time and taps on it are routed to HandleNotificationAction.
//
// # Failure Semantics
//
// Mutations on missing ids return false rather than an error. Listener
// panics, failing action handlers, mirror writes and backend propagation are
// logged and never reach the caller.
package notifications
