// Package redis connects to a Redis server and mirrors notification records
// into it.
//
// The package wraps the go-redis client and adds:
//
//   - Connect, which pings the server and retries using Config.
//   - Healthcheck, a check for liveness and readiness endpoints.
//   - Mirror, an implementation of notifications.Mirror backed by one hash,
//     with pub/sub relay of saved records to sibling processes.
//
// # Usage
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	mirror := redis.NewMirror(client, redis.WithKey(cfg.MirrorKey))
//	engine := notifications.NewEngine(notifications.WithMirror(mirror))
//	if _, err := engine.Restore(ctx); err != nil {
//	    log.Warn("restore failed", logger.Error(err))
//	}
//
//	go mirror.Relay(ctx, userID, func(n notifications.Notification) {
//	    engine.Ingest(ctx, n)
//	})
//
// # Storage Layout
//
// Records are stored as JSON under HSET <key> <id>. Records that carry a user
// id are also published on <prefix><userID>. Saving a record whose JSON
// equals the stored copy writes and publishes nothing, which keeps relayed
// records from bouncing between processes.
//
// # Errors
//
// Sentinel errors (ErrRedisNotReady and friends) wrap the go-redis errors
// with errors.Join, so errors.Is works on both.
package redis
