// Command schoolfeed runs the notification engine for one signed-in user and
// serves the unified feed on a local HTTP port.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/schoolfeed/internal/httpapi"
	"github.com/dmitrymomot/schoolfeed/pkg/config"
	"github.com/dmitrymomot/schoolfeed/pkg/feed"
	"github.com/dmitrymomot/schoolfeed/pkg/i18n"
	"github.com/dmitrymomot/schoolfeed/pkg/logger"
	"github.com/dmitrymomot/schoolfeed/pkg/notifications"
	"github.com/dmitrymomot/schoolfeed/pkg/push"
	"github.com/dmitrymomot/schoolfeed/pkg/realtime"
	"github.com/dmitrymomot/schoolfeed/pkg/redis"
	"github.com/dmitrymomot/schoolfeed/pkg/restapi"
)

// Config is the process configuration.
type Config struct {
	Env             string `env:"APP_ENV" envDefault:"development"`
	LogLevel        string `env:"LOG_LEVEL"`
	UserID          string `env:"SCHOOLFEED_USER_ID"`
	UserCategory    string `env:"SCHOOLFEED_USER_CATEGORY" envDefault:"parent"`
	AuthToken       string `env:"SCHOOLFEED_AUTH_TOKEN"`
	SurfacePriority string `env:"SCHOOLFEED_SURFACE_PRIORITY" envDefault:"low"`
	PushToken       string `env:"PUSH_TOKEN"`
	Language        string `env:"SCHOOLFEED_LANG" envDefault:"en"`
	TextsFile       string `env:"SCHOOLFEED_TEXTS_FILE"`

	Realtime realtime.Config
	API      restapi.Config
	Redis    redis.Config
	HTTP     httpapi.Config
}

func main() {
	var cfg Config
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, "schoolfeed"),
		logger.WithLevelName(cfg.LogLevel),
		logger.WithContextExtractors(httpapi.RequestIDExtractor),
	)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.LogAttrs(ctx, slog.LevelError, "schoolfeed stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config, log *slog.Logger) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Push delivery.
	platformOpts := []push.LogPlatformOption{push.WithPlatformLogger(log)}
	if cfg.PushToken != "" {
		platformOpts = append(platformOpts, push.WithToken(cfg.PushToken))
	}
	pushAdapter := push.NewAdapter(push.NewLogPlatform(platformOpts...), push.WithLogger(log))
	defer func() { _ = pushAdapter.Close() }()
	caps := pushAdapter.Initialize(ctx)
	log.LogAttrs(ctx, slog.LevelInfo, "push adapter ready",
		slog.Bool("permission", caps.PermissionGranted),
		slog.Bool("remote", caps.PushAvailable),
		slog.Bool("local", caps.LocalAvailable),
	)

	// Realtime channel.
	rt := realtime.NewClient(cfg.Realtime, realtime.WithLogger(log))
	defer func() { _ = rt.Disconnect() }()
	rt.OnConnectionChange(func(ev realtime.ConnectionEvent) {
		attrs := []slog.Attr{
			slog.String("state", string(ev.State)),
			slog.String("reason", string(ev.Reason)),
			logger.Attempt(ev.Attempt),
		}
		if ev.Err != nil {
			attrs = append(attrs, logger.Error(ev.Err))
		}
		log.LogAttrs(ctx, slog.LevelInfo, "realtime connection changed", attrs...)
	})

	catalog := i18n.Default()
	if cfg.TextsFile != "" {
		override, err := i18n.Load(cfg.TextsFile)
		if err != nil {
			return err
		}
		catalog = catalog.Merge(override)
	}
	texts := catalog.For(cfg.Language)
	log.LogAttrs(ctx, slog.LevelDebug, "notification texts loaded", slog.String("lang", texts.Lang()))

	engineOpts := []notifications.EngineOption{
		notifications.WithLogger(log),
		notifications.WithTexts(texts),
		notifications.WithPush(pushAdapter),
		notifications.WithRealtime(rt),
		notifications.WithSurfacePriority(notifications.ParsePriority(cfg.SurfacePriority)),
		notifications.WithNavigator(func(ctx context.Context, n notifications.Notification, data map[string]any) {
			screen, _ := n.Data["screen"].(string)
			log.LogAttrs(ctx, slog.LevelInfo, "navigate to notification",
				logger.NotificationID(n.ID),
				slog.String("screen", screen),
			)
		}),
		notifications.WithActionHandler("acknowledge", func(ctx context.Context, n notifications.Notification, data map[string]any) error {
			return rt.SendUpdate(ctx, realtime.Update{
				Type:         realtime.UpdateUserStatus,
				Data:         map[string]any{"acknowledged": n.ID},
				Timestamp:    time.Now().UTC().Format(time.RFC3339),
				UserID:       cfg.UserID,
				UserCategory: cfg.UserCategory,
			})
		}),
	}

	// REST backend.
	var api *restapi.Client
	if cfg.API.BaseURL != "" {
		apiCfg := cfg.API
		if apiCfg.Token == "" {
			apiCfg.Token = cfg.AuthToken
		}
		var err error
		if api, err = restapi.NewClient(apiCfg, restapi.WithLogger(log)); err != nil {
			return err
		}
		engineOpts = append(engineOpts, notifications.WithBackend(api))
	}

	// Redis mirror.
	var (
		mirror      *redis.Mirror
		redisClient *goredis.Client
	)
	if cfg.Redis.ConnectionURL != "" {
		var err error
		if redisClient, err = redis.Connect(ctx, cfg.Redis); err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		mirror = redis.NewMirror(redisClient,
			redis.WithKey(cfg.Redis.MirrorKey),
			redis.WithChannelPrefix(cfg.Redis.ChannelPrefix),
			redis.WithLogger(log),
		)
		engineOpts = append(engineOpts, notifications.WithMirror(mirror))
	}

	engine := notifications.NewEngine(engineOpts...)
	if err := engine.Initialize(ctx); err != nil {
		return err
	}
	defer engine.Close()

	if mirror != nil {
		if _, err := engine.Restore(ctx); err != nil {
			log.LogAttrs(ctx, slog.LevelWarn, "failed to restore notifications", logger.Error(err))
		}
		if cfg.UserID != "" {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := mirror.Relay(ctx, cfg.UserID, engine)
				if err != nil {
					log.LogAttrs(ctx, slog.LevelWarn, "notification relay stopped", logger.Error(err))
				}
			}()
		}
	}

	if api != nil {
		poller := restapi.NewPoller(api, engine, cfg.API.PollInterval,
			restapi.WithPollerLogger(log),
			restapi.WithPageSize(cfg.API.PageSize),
			restapi.WithUnreadCount(func(n int) {
				if err := pushAdapter.SetBadgeCount(ctx, n); err != nil {
					log.LogAttrs(ctx, slog.LevelDebug, "failed to update badge", logger.Error(err))
				}
			}),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			poller.Run(ctx)
		}()
	}

	if cfg.UserID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := rt.Initialize(ctx, cfg.UserID, cfg.UserCategory, cfg.AuthToken)
			if err != nil && !errors.Is(err, realtime.ErrConnectAborted) {
				log.LogAttrs(ctx, slog.LevelWarn, "realtime channel unavailable", logger.Error(err))
			}
		}()
	} else {
		log.LogAttrs(ctx, slog.LevelWarn, "no user configured, realtime channel disabled")
	}

	f := feed.New(engine, feed.WithLogger(log))
	defer func() { _ = f.Close() }()

	routerOpts := []httpapi.RouterOption{
		httpapi.WithLogger(log),
		httpapi.WithHeartbeat(cfg.HTTP.StreamHeartbeat),
	}
	if redisClient != nil {
		routerOpts = append(routerOpts, httpapi.WithHealthCheck("redis", redis.Healthcheck(redisClient)))
	}

	srv := httpapi.NewServer(cfg.HTTP, httpapi.WithServerLogger(log))
	err := srv.Run(ctx, httpapi.NewRouter(f, routerOpts...))
	cancel()
	return err
}
