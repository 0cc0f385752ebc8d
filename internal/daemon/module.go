package daemon

import (
	"context"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/huddlehq/huddle/internal/api"
	"github.com/huddlehq/huddle/internal/bus"
	"github.com/huddlehq/huddle/internal/chat"
	"github.com/huddlehq/huddle/internal/config"
	"github.com/huddlehq/huddle/internal/directory"
	"github.com/huddlehq/huddle/internal/identity"
	"github.com/huddlehq/huddle/internal/lock"
	"github.com/huddlehq/huddle/internal/logging"
	"github.com/huddlehq/huddle/internal/metrics"
	"github.com/huddlehq/huddle/internal/notify"
	"github.com/huddlehq/huddle/internal/status"
	"github.com/huddlehq/huddle/internal/store"
	"github.com/huddlehq/huddle/internal/workspace"
)

// Params holds the resolved workspace configuration passed to the fx module.
type Params struct {
	Workspace string
	Listen    string // optional override; empty = config value or default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideMetrics,
			provideLock,
			provideStore,
			provideResolver,
			provideAggregator,
			provideChatService,
			provideRecorder,
			provideWebhookSender,
			provideHandlers,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig() (*config.Config, error) {
	cfg, err := config.Load(workspace.ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			// Fresh install: run on defaults.
			return &config.Config{Listen: config.DefaultListen}, nil
		}
		return nil, err
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(workspace.LogPath(p.Workspace), p.Workspace)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideMetrics() *metrics.Metrics {
	return metrics.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := workspace.EnsureDir(p.Workspace); err != nil {
		return nil, err
	}
	logger.Info("acquiring workspace lock", zap.String("workspace", p.Workspace))
	l, err := lock.Acquire(workspace.Dir(p.Workspace))
	if err != nil {
		return nil, err
	}
	logger.Info("workspace lock acquired")
	return l, nil
}

func provideStore(p Params, machine *status.Machine, logger *zap.Logger) (*store.DB, error) {
	dbPath := workspace.DBPath(p.Workspace)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	_ = machine.Transition(status.Migrating)
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		_ = machine.Transition(status.Error)
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	// Repair any unread-counter drift left by a previous crash.
	if err := db.RecountUnread(); err != nil {
		logger.Warn("unread recount failed", zap.Error(err))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideResolver(db *store.DB, b *bus.Bus, logger *zap.Logger) *identity.Resolver {
	return identity.NewResolver(db, b, logger)
}

func provideAggregator(db *store.DB, b *bus.Bus, logger *zap.Logger) *directory.Aggregator {
	return directory.NewAggregator(db, b, logger)
}

func provideChatService(db *store.DB, b *bus.Bus, logger *zap.Logger, m *metrics.Metrics) *chat.Service {
	return chat.NewService(db, b, logger, m)
}

func provideRecorder(db *store.DB, b *bus.Bus, logger *zap.Logger) *notify.Recorder {
	return notify.NewRecorder(db, b, logger)
}

func provideWebhookSender(db *store.DB, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *notify.Sender {
	if !cfg.Webhook.Enabled {
		return nil
	}
	return notify.NewSender(db, cfg.Webhook.URL, logger, m)
}

func provideHandlers(
	db *store.DB,
	b *bus.Bus,
	resolver *identity.Resolver,
	dir *directory.Aggregator,
	svc *chat.Service,
	machine *status.Machine,
	m *metrics.Metrics,
	logger *zap.Logger,
) *api.Handlers {
	return api.NewHandlers(db, b, resolver, dir, svc, machine, m, logger)
}

func registerLifecycle(
	lc fx.Lifecycle,
	srv *Server,
	lk *lock.Lock,
	aggregator *directory.Aggregator,
	recorder *notify.Recorder,
	sender *notify.Sender,
	machine *status.Machine,
	logger *zap.Logger,
) {
	var aggCancel context.CancelFunc
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Directory refresh loop (subscribes to roster.* bus events).
			var aggCtx context.Context
			aggCtx, aggCancel = context.WithCancel(context.Background())
			go aggregator.Run(aggCtx)

			// Record message/conversation events for webhook delivery, and
			// drain the outbox when a webhook endpoint is configured.
			recorder.Start(context.Background())
			if sender != nil {
				sender.Start(context.Background())
			}

			// Start HTTP server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
					_ = machine.Transition(status.Error)
				}
			}()

			if machine.Current() == status.Migrating {
				_ = machine.Transition(status.Ready)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = machine.Transition(status.Stopping)
			if sender != nil {
				sender.Stop()
			}
			recorder.Stop()
			if aggCancel != nil {
				aggCancel()
			}
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
