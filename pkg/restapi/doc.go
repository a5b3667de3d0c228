// Package restapi talks to the school backend's notification endpoints.
//
// Client lists notifications page by page and propagates read and delete
// mutations. It satisfies notifications.BackendSyncer, so it can be handed to
// the engine directly. Poller fetches the first page on an interval and feeds
// it into the engine, which stores only ids it has not seen before.
//
// # Endpoints
//
//	GET    {base}/notifications?page=1&per_page=50
//	PATCH  {base}/notifications/{id}/read
//	DELETE {base}/notifications/{id}
//
// Every request carries "Authorization: Bearer <token>" when a token is set.
//
// # Retries
//
// Network errors, timeouts and 5xx responses are retried up to
// Config.MaxRetries times with exponential backoff. 4xx responses other than
// 408, 425 and 429 fail immediately with ErrPermanentFailure.
//
// # Usage
//
//	client, err := restapi.NewClient(cfg, restapi.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	engine := notifications.NewEngine(notifications.WithBackend(client))
//	poller := restapi.NewPoller(client, engine, cfg.PollInterval)
//	go poller.Run(ctx)
package restapi
