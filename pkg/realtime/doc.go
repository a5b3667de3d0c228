// Package realtime is the realtime channel adapter: one persistent websocket
// connection per session, scoped to a user and user category.
//
// Frames are JSON envelopes of the form {"event": "<name>", "data": {...}}.
// Inbound notification and update events are decoded and multiplexed to
// registered listeners; connection state changes are reported to connection
// listeners. The connection state is strictly binary from the outside
// (connected or not) and moves disconnected -> connecting -> connected.
//
//	client := realtime.NewClient(cfg, realtime.WithLogger(log))
//	client.OnNotification(func(n realtime.Notification) { ... })
//	if err := client.Initialize(ctx, "42", "student", token); err != nil {
//	    return err
//	}
//	defer client.Disconnect()
//
// Outbound operations (SendNotification, SendUpdate, JoinRoom, LeaveRoom)
// are dropped with a warning while disconnected; nothing is queued for
// replay. Lost connections are retried with a fixed delay for a bounded
// number of attempts.
package realtime
