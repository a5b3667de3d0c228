// Package feed exposes the notification engine to UI surfaces.
//
// A Feed subscribes once to the engine and fans record and statistics
// changes out to any number of channel subscriptions. Each subscription
// carries its own filters: it only receives added records that match, and
// its statistics are computed with the same filters. Slow consumers are
// dropped rather than blocking the engine.
//
// Basic usage:
//
//	f := feed.New(engine, feed.WithLogger(log))
//	defer f.Close()
//
//	sub := f.Subscribe(ctx, notifications.Filters{Type: notifications.TypeAcademic})
//	for ev := range sub.Events() {
//		switch ev.Kind {
//		case feed.KindAdded:
//			fmt.Println("new:", ev.Notification.Title)
//		case feed.KindStats:
//			fmt.Println("unread:", ev.Stats.Unread)
//		}
//	}
//
// The imperative actions (MarkRead, MarkAllRead, Delete, Act, Send) forward
// to the engine; their effects reach subscribers through the same events.
package feed
