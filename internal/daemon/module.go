package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/matheus3301/wpphub/internal/api"
	"github.com/matheus3301/wpphub/internal/broadcast"
	"github.com/matheus3301/wpphub/internal/bus"
	"github.com/matheus3301/wpphub/internal/config"
	"github.com/matheus3301/wpphub/internal/lock"
	"github.com/matheus3301/wpphub/internal/logging"
	"github.com/matheus3301/wpphub/internal/metrics"
	"github.com/matheus3301/wpphub/internal/monitor"
	"github.com/matheus3301/wpphub/internal/notify"
	"github.com/matheus3301/wpphub/internal/paths"
	"github.com/matheus3301/wpphub/internal/registry"
	"github.com/matheus3301/wpphub/internal/reply"
	"github.com/matheus3301/wpphub/internal/scheduler"
	"github.com/matheus3301/wpphub/internal/session"
	"github.com/matheus3301/wpphub/internal/store"
	"github.com/matheus3301/wpphub/internal/wa"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/health"
)

const monitorInterval = 30 * time.Second

// Params holds the command-line overrides passed to the fx module.
type Params struct {
	ConfigPath string   // empty = <data_dir>/config.toml
	DataDir    string   // overrides data_dir from the config file
	EnvFiles   []string // dotenv files applied on top of the config file
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideLock,
			provideStore,
			provideBus,
			provideMetrics,
			provideAMQP,
			provideFanout,
			provideReplier,
			provideSessionFactory,
			provideRegistry,
			provideBroadcast,
			provideScheduler,
			provideHealth,
			provideMonitor,
			provideHTTP,
			provideControl,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	root := p.DataDir
	if root == "" {
		root = paths.DefaultRoot()
	}
	path := p.ConfigPath
	if path == "" {
		path = paths.ConfigPath(paths.Expand(root))
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(p.EnvFiles...); err != nil {
		return nil, err
	}
	if p.DataDir != "" {
		cfg.DataDir = p.DataDir
	}
	cfg.DataDir = paths.Expand(cfg.DataDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Path: paths.LogPath(cfg.DataDir), Level: cfg.Log.Level})
}

func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	if err := paths.EnsureDir(cfg.DataDir); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", cfg.DataDir))
	l, err := lock.Acquire(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two daemons.
func provideStore(cfg *config.Config, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := paths.AppDBPath(cfg.DataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	if err := db.SeedWebhookSettings(store.WebhookSettings{URL: cfg.Webhook.URL, Secret: cfg.Webhook.Secret}); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

// provideMetrics returns nil when metrics are disabled. A nil *Metrics is a no-op.
func provideMetrics(cfg *config.Config) *metrics.Metrics {
	if !cfg.Metrics.Enabled {
		return nil
	}
	return metrics.New()
}

// provideAMQP returns nil when no broker is configured.
func provideAMQP(cfg *config.Config, logger *zap.Logger) *notify.AMQPSink {
	if cfg.AMQP.URL == "" {
		return nil
	}
	return notify.NewAMQPSink(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
}

func provideFanout(cfg *config.Config, db *store.DB, amqp *notify.AMQPSink, m *metrics.Metrics, logger *zap.Logger) *notify.Fanout {
	sinks := []notify.Sink{notify.NewWebhook(db, &http.Client{})}
	if amqp != nil {
		sinks = append(sinks, amqp)
	}
	return notify.NewFanout(logger, m, cfg.Webhook.Timeout.Duration, sinks...)
}

func provideReplier(cfg *config.Config, db *store.DB, logger *zap.Logger) (reply.Source, error) {
	chain := reply.Chain{Keyword: reply.NewKeywordMatcher(db), Logger: logger.Named("reply")}
	if cfg.Reply.GeminiAPIKey == "" {
		logger.Info("no gemini api key, auto-reply uses keyword rules only")
		return chain, nil
	}
	gemini, err := reply.NewGeminiSource(context.Background(), reply.GeminiOptions{
		APIKey:       cfg.Reply.GeminiAPIKey,
		Model:        cfg.Reply.Model,
		SystemPrompt: cfg.Reply.SystemPrompt,
		Timeout:      cfg.Reply.Timeout.Duration,
	})
	if err != nil {
		return nil, err
	}
	chain.Fallback = gemini
	return chain, nil
}

func provideSessionFactory(
	cfg *config.Config,
	db *store.DB,
	b *bus.Bus,
	fanout *notify.Fanout,
	replier reply.Source,
	m *metrics.Metrics,
	logger *zap.Logger,
) registry.Factory {
	return func(id string) *session.Session {
		connLogger := logger.With(zap.String("connection", id))
		return session.New(session.Options{
			ID: id,
			NewSocket: func(ctx context.Context, id string) (session.Socket, error) {
				return wa.NewAdapter(ctx, wa.Options{
					AuthDBPath: paths.AuthDBPath(cfg.DataDir, id),
					DeviceName: cfg.Session.DeviceName,
					Logger:     connLogger,
					WALogger:   logging.NewWALogger(connLogger.Named("whatsmeow"), cfg.Log.WhatsmeowLevel),
				})
			},
			Store:      db,
			Replier:    replier,
			Notifier:   fanout,
			Bus:        b,
			Logger:     connLogger,
			Metrics:    m,
			Floor:      cfg.Session.ReconnectFloor.Duration,
			Ceiling:    cfg.Session.ReconnectCeiling.Duration,
			ReplyDelay: cfg.Session.ReplyDelay.Duration,
		})
	}
}

func provideRegistry(cfg *config.Config, factory registry.Factory, logger *zap.Logger) *registry.Registry {
	return registry.New(registry.Options{
		Root:           cfg.DataDir,
		NewSession:     factory,
		RestoreStagger: cfg.Session.RestoreStagger.Duration,
		Logger:         logger,
	})
}

func provideBroadcast(cfg *config.Config, reg *registry.Registry, db *store.DB, b *bus.Bus, fanout *notify.Fanout, m *metrics.Metrics, logger *zap.Logger) *broadcast.Coordinator {
	return broadcast.New(broadcast.Options{
		Lookup: func(id string) (broadcast.Sender, bool) {
			s, ok := reg.Get(id)
			if !ok {
				return nil, false
			}
			return s, true
		},
		Store:        db,
		Bus:          b,
		Notifier:     fanout,
		Metrics:      m,
		Logger:       logger.Named("broadcast"),
		DefaultDelay: cfg.Broadcast.DefaultDelay.Duration,
		JitterMin:    cfg.Broadcast.JitterMin.Duration,
		JitterMax:    cfg.Broadcast.JitterMax.Duration,
	})
}

func provideScheduler(cfg *config.Config, reg *registry.Registry, db *store.DB, m *metrics.Metrics, logger *zap.Logger) (*scheduler.Scheduler, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return scheduler.New(scheduler.Options{
		Lookup: func(id string) (scheduler.Sender, bool) {
			s, ok := reg.Get(id)
			if !ok {
				return nil, false
			}
			return s, true
		},
		Store:    db,
		Logger:   logger.Named("scheduler"),
		Metrics:  m,
		Location: loc,
		Reminder: scheduler.ReminderOptions{
			Offsets:  cfg.Schedule.ReminderOffsets,
			Hour:     cfg.Schedule.ReminderHour,
			Template: cfg.Schedule.ReminderTemplate,
		},
	})
}

func provideHealth() *health.Server {
	return health.NewServer()
}

func provideMonitor(reg *registry.Registry, b *bus.Bus, m *metrics.Metrics, hs *health.Server, logger *zap.Logger) *monitor.Monitor {
	return monitor.New(reg, b, m, hs, logger.Named("monitor"), monitorInterval)
}

func provideHTTP(
	cfg *config.Config,
	reg *registry.Registry,
	coord *broadcast.Coordinator,
	sched *scheduler.Scheduler,
	db *store.DB,
	b *bus.Bus,
	m *metrics.Metrics,
	logger *zap.Logger,
) *api.Server {
	defaultURL := cfg.Schedule.SourceURL
	timeout := cfg.Schedule.FetchTimeout.Duration
	return api.New(cfg.HTTP.Addr, api.Deps{
		Registry:  reg,
		Broadcast: coord,
		Scheduler: sched,
		Store:     db,
		Bus:       b,
		Metrics:   m,
		NewSource: func(url string) scheduler.TabularSource {
			if url == "" {
				url = defaultURL
			}
			return scheduler.NewCSVSource(url, timeout)
		},
		CORSOrigins: cfg.HTTP.CORSOrigins,
		Logger:      logger.Named("http"),
	})
}

func provideControl(cfg *config.Config, hs *health.Server, _ *lock.Lock, logger *zap.Logger) (*ControlServer, error) {
	socketPath := cfg.Control.Socket
	if socketPath == "" {
		socketPath = paths.SocketPath(cfg.DataDir)
	}
	return NewControlServer(socketPath, hs, logger.Named("control"))
}

type lifecycleDeps struct {
	fx.In

	Shutdowner fx.Shutdowner
	Lock       *lock.Lock
	Store      *store.DB
	Registry   *registry.Registry
	Broadcast  *broadcast.Coordinator
	Scheduler  *scheduler.Scheduler
	Monitor    *monitor.Monitor
	HTTP       *api.Server
	Control    *ControlServer
	Fanout     *notify.Fanout
	AMQP       *notify.AMQPSink
	Logger     *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleDeps) {
	var (
		servers errgroup.Group
		cancel  context.CancelFunc
	)
	logger := d.Logger

	release := func() {
		if d.AMQP != nil {
			if err := d.AMQP.Close(); err != nil {
				logger.Warn("close amqp sink", zap.Error(err))
			}
		}
		if err := d.Store.Close(); err != nil {
			logger.Warn("close store", zap.Error(err))
		}
		if err := d.Lock.Release(); err != nil {
			logger.Warn("error releasing lock", zap.Error(err))
		}
	}

	serve := func(name string, start func() error) {
		servers.Go(func() error {
			if err := start(); err != nil {
				logger.Error(name+" server error", zap.Error(err))
				_ = d.Shutdowner.Shutdown(fx.ExitCode(1))
				return err
			}
			return nil
		})
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := d.HTTP.Listen(); err != nil {
				release()
				return err
			}
			if err := d.Lock.Publish(d.HTTP.Addr(), d.Control.SocketPath()); err != nil {
				logger.Warn("publish endpoints in lock file", zap.Error(err))
			}

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			if err := d.Scheduler.Start(ctx); err != nil {
				cancel()
				release()
				return err
			}
			d.Monitor.Start(ctx)

			serve("HTTP", d.HTTP.Serve)
			serve("control", d.Control.Start)

			// Restore persisted connections without holding up startup.
			go func() {
				n, err := d.Registry.RestoreAll(ctx)
				if err != nil {
					logger.Error("restore connections", zap.Error(err))
					return
				}
				logger.Info("connections restored", zap.Int("count", n))
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			d.Scheduler.Stop()
			d.Broadcast.Stop()
			d.Registry.Shutdown()
			d.Monitor.Stop()

			if err := d.HTTP.Stop(ctx); err != nil {
				logger.Warn("HTTP server shutdown", zap.Error(err))
			}
			d.Control.Stop(ctx)
			if err := servers.Wait(); err != nil {
				logger.Warn("server exited with error", zap.Error(err))
			}

			d.Fanout.Wait()
			release()
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
