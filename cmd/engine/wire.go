package main

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lexprep/achievement-engine/catalog"
	"github.com/lexprep/achievement-engine/config"
	"github.com/lexprep/achievement-engine/internal/application/command"
	"github.com/lexprep/achievement-engine/internal/domain/achievement"
	"github.com/lexprep/achievement-engine/internal/domain/activity"
	"github.com/lexprep/achievement-engine/internal/domain/progress"
	"github.com/lexprep/achievement-engine/internal/infrastructure/messaging"
	"github.com/lexprep/achievement-engine/internal/infrastructure/persistence/memory"
	"github.com/lexprep/achievement-engine/internal/infrastructure/persistence/postgres"
	"github.com/lexprep/achievement-engine/internal/infrastructure/persistence/redis"
	"github.com/lexprep/achievement-engine/internal/infrastructure/service"
	"github.com/lexprep/achievement-engine/pkg/logger"
	"github.com/lexprep/achievement-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

func newLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	opts.Console = cfg.Observability.LogFormat == "console"
	opts.File = logger.FileOptions{
		Path:       cfg.Observability.LogFile,
		MaxSizeMB:  cfg.Observability.LogMaxSizeMB,
		MaxBackups: cfg.Observability.LogMaxBackups,
		MaxAgeDays: cfg.Observability.LogMaxAgeDays,
		Compress:   cfg.Observability.LogCompress,
	}
	return logger.New(opts).With(
		logger.String("app", cfg.App.Name),
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
	)
}

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// storage holds whichever backend STORAGE_DRIVER selected. conn is nil for
// the memory driver; redis is nil when Redis is disabled.
type storage struct {
	conn  *postgres.Connection
	redis *redis.Client

	catalog   achievement.CatalogSource
	writer    achievement.CatalogWriter
	snapshots progress.Repository
	unlocks   achievement.UnlockRepository
	events    activity.Log
}

func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) (*storage, error) {
	st := &storage{}

	switch cfg.Database.Driver {
	case config.StorageMemory:
		mc := memory.NewCatalog()
		st.catalog = mc
		st.writer = mc
		st.snapshots = memory.NewSnapshotStore()
		st.unlocks = memory.NewUnlockStore()
		st.events = memory.NewEventLog()
		log.Warn("using in-memory storage; state is lost on exit")

	default:
		pgCfg := postgres.DefaultConfig()
		pgCfg.URL = cfg.Database.URL
		pgCfg.Host = cfg.Database.Host
		pgCfg.Port = cfg.Database.Port
		pgCfg.Database = cfg.Database.Name
		pgCfg.User = cfg.Database.User
		pgCfg.Password = cfg.Database.Password
		pgCfg.SSLMode = cfg.Database.SSLMode
		pgCfg.MaxConns = int32(cfg.Database.MaxConns)
		pgCfg.MinConns = int32(cfg.Database.MinConns)
		pgCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		pgCfg.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
		pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

		conn, err := postgres.NewConnection(ctx, pgCfg)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		st.conn = conn
		cr := postgres.NewCatalogRepository(conn)
		st.catalog = cr
		st.writer = cr
		st.snapshots = postgres.NewSnapshotRepository(conn)
		st.unlocks = postgres.NewUnlockRepository(conn)
		st.events = postgres.NewActivityLog(conn)
		log.Info("connected to postgres")
	}

	if !cfg.Redis.Disabled {
		client, err := openRedis(ctx, cfg.Redis)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.redis = client
		log.Info("connected to redis")
	}

	return st, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL == "" {
		rc := redis.DefaultConfig()
		rc.Host = cfg.Host
		rc.Port = cfg.Port
		rc.Password = cfg.Password
		rc.DB = cfg.DB
		rc.KeyPrefix = cfg.KeyPrefix
		rc.PoolSize = cfg.PoolSize
		return redis.NewClient(rc)
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", redis.ErrConnection, err)
	}
	return redis.NewClientFrom(rdb, cfg.KeyPrefix), nil
}

func (s *storage) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.conn != nil {
		s.conn.Close()
	}
}

// migrate applies pending migrations when running on Postgres.
func (s *storage) migrate(ctx context.Context, log *logger.Logger) error {
	if s.conn == nil {
		return nil
	}
	applied, err := postgres.NewMigrator(s.conn).Migrate(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("migrations applied", logger.Int("count", applied))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

func limits(cfg *config.Config) achievement.Limits {
	return achievement.Limits{MaxPacingWindow: cfg.Engine.PacingWindow}
}

// catalogSource picks where the registry is loaded from.
func catalogSource(cfg *config.Config, st *storage) achievement.CatalogSource {
	if cfg.Engine.CatalogSource == config.CatalogFromFile {
		return catalog.FileSource{Path: cfg.Engine.CatalogPath}
	}
	return st.catalog
}

func loadRegistry(ctx context.Context, cfg *config.Config, st *storage) (*achievement.Registry, error) {
	defs, err := catalogSource(cfg, st).LoadDefinitions(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return achievement.NewRegistry(defs, limits(cfg))
}

func newAggregator(cfg *config.Config) *progress.Aggregator {
	return progress.NewAggregator(progress.AggregatorConfig{
		Zone:               timeutil.NewZone(cfg.App.Location),
		HighScoreThreshold: cfg.Engine.HighScoreThreshold,
		PacingWindow:       cfg.Engine.PacingWindow,
		IdempotencyWindow:  cfg.Engine.IdempotencyWindow,
	})
}

// newLocker chains the in-process lock table with the Redis lease when
// Redis is available.
func newLocker(cfg *config.Config, st *storage) command.UserLocker {
	table := command.NewLockTable(cfg.Engine.LockShards)
	if st.redis == nil {
		return table
	}
	lease := redis.NewUserLease(st.redis, redis.LeaseConfig{
		TTL:           cfg.Redis.LeaseTTL,
		Wait:          cfg.Redis.LeaseWait,
		RetryInterval: redis.DefaultLeaseConfig().RetryInterval,
	})
	return command.ChainLockers(table, lease)
}

func submitDeps(cfg *config.Config, st *storage, reg *achievement.Registry, pub *messaging.InMemoryEventBus, log *logger.Logger) command.SubmitEventDeps {
	d := command.SubmitEventDeps{
		Registry:   reg,
		Aggregator: newAggregator(cfg),
		Snapshots:  st.snapshots,
		Unlocks:    st.unlocks,
		EventLog:   st.events,
		Locker:     newLocker(cfg, st),
		Logger:     log,
	}
	if pub != nil {
		d.Publisher = pub
	}
	return d
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

func newSink(cfg *config.Config, st *storage, log *logger.Logger) (service.Sink, error) {
	switch cfg.Notification.Sink {
	case config.SinkWebhook:
		return service.NewWebhookSink(service.WebhookConfig{
			URL:     cfg.Notification.WebhookURL,
			Timeout: cfg.Notification.WebhookTimeout,
			Secret:  cfg.Notification.WebhookSecret,
		}), nil
	case config.SinkRedis:
		if st.redis == nil {
			return nil, fmt.Errorf("redis sink requires redis")
		}
		return service.NewQueueSink(redis.NewQueue(st.redis, cfg.Notification.QueueName, cfg.Notification.QueueMaxLen)), nil
	default:
		return service.NewLogSink(log), nil
	}
}

func newNotifier(cfg *config.Config, st *storage, log *logger.Logger) (*service.Notifier, error) {
	sink, err := newSink(cfg, st, log)
	if err != nil {
		return nil, err
	}
	dlq := messaging.NewDeadLetterQueue(cfg.Notification.DeadLetterSize)
	return service.NewNotifier(sink, dlq, service.NotifierConfig{
		RatePerSecond:   cfg.Notification.RatePerSecond,
		Burst:           cfg.Notification.Burst,
		MaxAttempts:     cfg.Notification.MaxAttempts,
		MaxRedeliveries: cfg.Notification.MaxRedeliveries,
		BreakerCooldown: cfg.Notification.BreakerCooldown,
	}, log), nil
}
