// Command engine runs the achievement engine.
//
//	engine serve            HTTP API, notification delivery and background jobs (default)
//	engine migrate [down]   apply pending migrations, or revert the latest one
//	engine seed [path]      validate a catalog and upsert it into the database
//	engine replay <userId>  rebuild one user's progress from the event log
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lexprep/achievement-engine/catalog"
	"github.com/lexprep/achievement-engine/config"
	"github.com/lexprep/achievement-engine/internal/application/command"
	"github.com/lexprep/achievement-engine/internal/application/eventhandler"
	"github.com/lexprep/achievement-engine/internal/application/query"
	"github.com/lexprep/achievement-engine/internal/domain/shared"
	"github.com/lexprep/achievement-engine/internal/infrastructure/messaging"
	"github.com/lexprep/achievement-engine/internal/infrastructure/persistence/postgres"
	"github.com/lexprep/achievement-engine/internal/infrastructure/scheduler"
	"github.com/lexprep/achievement-engine/internal/infrastructure/scheduler/jobs"
	apihttp "github.com/lexprep/achievement-engine/internal/interface/http"
	"github.com/lexprep/achievement-engine/internal/interface/http/handlers"
	"github.com/lexprep/achievement-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := newLogger(cfg)
	defer func() { _ = log.Sync() }()

	switch cmd {
	case "serve":
		return serve(ctx, cfg, log)
	case "migrate":
		down := len(args) > 0 && args[0] == "down"
		return migrate(ctx, cfg, log, down)
	case "seed":
		path := cfg.Engine.CatalogPath
		if len(args) > 0 {
			path = args[0]
		}
		return seed(ctx, cfg, log, path)
	case "replay":
		if len(args) == 0 {
			return errors.New("usage: engine replay <userId>")
		}
		return replay(ctx, cfg, log, args[0])
	default:
		return fmt.Errorf("unknown command %q (want serve, migrate, seed or replay)", cmd)
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVE
// ══════════════════════════════════════════════════════════════════════════════

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	log.Info("starting achievement engine",
		logger.String("storage", cfg.Database.Driver),
		logger.String("catalog", cfg.Engine.CatalogSource),
		logger.String("sink", cfg.Notification.Sink),
		logger.String("timezone", cfg.App.Timezone),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 1. Storage
	// ─────────────────────────────────────────────────────────────────────────
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if cfg.Database.AutoMigrate {
		if err := st.migrate(ctx, log); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. Catalog. A bad catalog stops startup.
	// ─────────────────────────────────────────────────────────────────────────
	reg, err := loadRegistry(ctx, cfg, st)
	if err != nil {
		return err
	}
	log.Info("achievement registry loaded", logger.Int("achievements", reg.Len()))

	// ─────────────────────────────────────────────────────────────────────────
	// 3. Event bus and notification delivery
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	bus := messaging.NewInMemoryEventBus(busCfg)

	notifier, err := newNotifier(cfg, st, log)
	if err != nil {
		return err
	}
	rejected := eventhandler.NewOnActivityRejected()
	if err := eventhandler.Register(bus, eventhandler.NewOnAchievementUnlocked(notifier, log), rejected); err != nil {
		return fmt.Errorf("register event handlers: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. Application handlers
	// ─────────────────────────────────────────────────────────────────────────
	submit := command.NewSubmitEventHandler(submitDeps(cfg, st, reg, bus, log))
	listCatalog := query.NewListCatalogHandler(reg)
	listUser := query.NewListUserAchievementsHandler(reg, st.unlocks, st.snapshots)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. Scheduler
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Config{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(jobs.NewRedeliverNotificationsJob(notifier, log), scheduler.Every(cfg.Scheduler.RedeliverInterval)); err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			return err
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. Health
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if st.conn != nil {
		health.AddCheck("postgres", handlers.NewPingCheck(st.conn))
	}
	if st.redis != nil {
		health.AddCheck("redis", handlers.NewPingCheck(st.redis))
	}
	health.AddInfo("event_bus", func() any { return bus.Stats() })
	health.AddInfo("pending_notifications", func() any { return notifier.Pending() })
	health.AddInfo("notifier_breaker", func() any { return notifier.BreakerState() })
	health.AddInfo("rejected_events", func() any { return rejected.Counts() })
	health.AddInfo("jobs", func() any { return sched.ListJobs() })

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.App.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srvCfg := apihttp.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	srvCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	srvCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	srvCfg.EventTimeout = cfg.Engine.EventTimeout
	srvCfg.RateLimit = cfg.HTTP.RateLimit
	srvCfg.RateBurst = cfg.HTTP.RateBurst
	srvCfg.Version = cfg.App.Version

	server := apihttp.NewServer(srvCfg, apihttp.Dependencies{
		SubmitEvent:          submit,
		ListCatalog:          listCatalog,
		ListUserAchievements: listUser,
		HealthChecker:        health,
		Logger:               log,
	})
	serverErr := server.StartAsync()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("http server stopped", logger.Err(err))
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. Graceful shutdown: stop intake, then jobs, then drain deliveries.
	// ─────────────────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", logger.Err(err))
	}
	if sched.IsRunning() {
		_ = sched.Stop()
	}
	_ = bus.Close()

	if pending := notifier.Pending(); pending > 0 {
		log.Warn("undelivered notifications dropped at shutdown", logger.Int("pending", pending))
	}
	log.Info("achievement engine stopped")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAINTENANCE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

func migrate(ctx context.Context, cfg *config.Config, log *logger.Logger, down bool) error {
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if !down {
		return st.migrate(ctx, log)
	}
	if st.conn == nil {
		return errors.New("migrate down requires STORAGE_DRIVER=postgres")
	}
	if err := postgres.NewMigrator(st.conn).Rollback(ctx); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	log.Info("latest migration reverted")
	return nil
}

func seed(ctx context.Context, cfg *config.Config, log *logger.Logger, path string) error {
	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.migrate(ctx, log); err != nil {
		return err
	}

	n, err := command.NewSeedCatalogHandler(catalog.FileSource{Path: path}, st.writer, limits(cfg), log).Handle(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d achievements\n", n)
	return nil
}

func replay(ctx context.Context, cfg *config.Config, log *logger.Logger, rawUserID string) error {
	userID, err := shared.NewUserID(rawUserID)
	if err != nil {
		return err
	}

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close()

	reg, err := loadRegistry(ctx, cfg, st)
	if err != nil {
		return err
	}

	// Unlocks found by replay are delivered through the configured sink
	// before the command exits.
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{
		AsyncMode:      false,
		HandlerTimeout: 30 * time.Second,
		Logger:         log,
	})
	notifier, err := newNotifier(cfg, st, log)
	if err != nil {
		return err
	}
	if err := eventhandler.Register(bus, eventhandler.NewOnAchievementUnlocked(notifier, log), nil); err != nil {
		return err
	}

	res, err := command.NewReplayUserHandler(submitDeps(cfg, st, reg, bus, log)).Handle(ctx, userID)
	if err != nil {
		return err
	}
	_ = bus.Close()

	fmt.Printf("replayed %d events for %s: %d applied, %d skipped, %d new unlocks (%s)\n",
		res.Events, res.UserID, res.Applied, res.Skipped, len(res.Unlocked), res.Duration.Round(time.Millisecond))
	if pending := notifier.Pending(); pending > 0 {
		log.Warn("some replay notifications were not delivered", logger.Int("pending", pending))
	}
	return nil
}
