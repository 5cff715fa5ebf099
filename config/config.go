// Package config loads the engine's settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment represents the application environment.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Catalog sources.
const (
	CatalogFromDB   = "db"
	CatalogFromFile = "file"
)

// Notification sinks.
const (
	SinkLog     = "log"
	SinkWebhook = "webhook"
	SinkRedis   = "redis"
)

// Config holds all application configuration.
type Config struct {
	App           AppConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	HTTP          HTTPConfig
	Engine        EngineConfig
	Notification  NotificationConfig
	Scheduler     SchedulerConfig
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string
	Environment Environment
	Debug       bool
	Version     string

	// Timezone decides calendar days for streaks and weekly counters.
	Timezone string
	Location *time.Location

	ShutdownTimeout time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory". Memory keeps everything in process
	// and is meant for local runs and tests.
	Driver string

	// URL takes precedence over the discrete fields when set.
	URL      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxConns        int
	MinConns        int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration

	// AutoMigrate applies pending migrations on serve.
	AutoMigrate bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Disabled bool

	URL       string
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	PoolSize  int

	// LeaseTTL and LeaseWait tune the cross-instance per-user lease.
	LeaseTTL  time.Duration
	LeaseWait time.Duration
}

// HTTPConfig holds the ingress server settings.
type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RateLimit is the sustained requests per second accepted across all
	// clients; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Addr returns the listen address.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EngineConfig tunes evaluation.
type EngineConfig struct {
	IdempotencyWindow  int
	PacingWindow       int
	HighScoreThreshold float64
	LockShards         int
	EventTimeout       time.Duration

	// CatalogSource is "db" or "file". CatalogPath is read when the source is
	// "file", or by the seed command; empty means the built-in catalog.
	CatalogSource string
	CatalogPath   string
}

// NotificationConfig controls unlock delivery.
type NotificationConfig struct {
	Sink string

	WebhookURL     string
	WebhookSecret  string
	WebhookTimeout time.Duration

	QueueName   string
	QueueMaxLen int64

	RatePerSecond   float64
	Burst           int
	MaxAttempts     int
	MaxRedeliveries int
	BreakerCooldown time.Duration
	DeadLetterSize  int
}

// SchedulerConfig controls background jobs.
type SchedulerConfig struct {
	Enabled           bool
	RedeliverInterval time.Duration
	JobTimeout        time.Duration
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json, console

	// LogFile enables a rotated file sink next to stderr.
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := &Config{}

	if err := cfg.loadAppConfig(); err != nil {
		return nil, fmt.Errorf("failed to load app config: %w", err)
	}
	if err := cfg.loadDatabaseConfig(); err != nil {
		return nil, fmt.Errorf("failed to load database config: %w", err)
	}
	cfg.loadRedisConfig()
	cfg.loadHTTPConfig()
	cfg.loadEngineConfig()
	cfg.loadNotificationConfig()
	cfg.loadSchedulerConfig()
	cfg.loadObservabilityConfig()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadAppConfig() error {
	c.App = AppConfig{
		Name:            getEnv("APP_NAME", "achievement-engine"),
		Environment:     Environment(getEnv("APP_ENV", string(EnvDevelopment))),
		Debug:           getEnvBool("APP_DEBUG", false),
		Version:         getEnv("APP_VERSION", "dev"),
		Timezone:        getEnv("APP_TIMEZONE", "UTC"),
		ShutdownTimeout: getEnvDuration("APP_SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
	}
	c.App.Location = loc

	return nil
}

func (c *Config) loadDatabaseConfig() error {
	c.Database = DatabaseConfig{
		Driver:          strings.ToLower(getEnv("STORAGE_DRIVER", StoragePostgres)),
		URL:             getEnv("DATABASE_URL", ""),
		Host:            getEnv("DB_HOST", "localhost"),
		Port:            getEnvInt("DB_PORT", 5432),
		Name:            getEnv("DB_NAME", "achievements"),
		User:            getEnv("DB_USER", "postgres"),
		Password:        getEnv("DB_PASSWORD", ""),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxConns:        getEnvInt("DB_MAX_CONNS", 20),
		MinConns:        getEnvInt("DB_MIN_CONNS", 2),
		ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
		ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),
		ConnectTimeout:  getEnvDuration("DB_CONNECT_TIMEOUT", 10*time.Second),
		AutoMigrate:     getEnvBool("DB_AUTO_MIGRATE", true),
	}

	if c.Database.Driver == StoragePostgres && c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("DATABASE_URL or DB_HOST is required")
	}

	return nil
}

func (c *Config) loadRedisConfig() {
	c.Redis = RedisConfig{
		Disabled:  getEnvBool("REDIS_DISABLED", true),
		URL:       getEnv("REDIS_URL", ""),
		Host:      getEnv("REDIS_HOST", "localhost"),
		Port:      getEnvInt("REDIS_PORT", 6379),
		Password:  getEnv("REDIS_PASSWORD", ""),
		DB:        getEnvInt("REDIS_DB", 0),
		KeyPrefix: getEnv("REDIS_KEY_PREFIX", "achv:"),
		PoolSize:  getEnvInt("REDIS_POOL_SIZE", 10),
		LeaseTTL:  getEnvDuration("REDIS_LEASE_TTL", 10*time.Second),
		LeaseWait: getEnvDuration("REDIS_LEASE_WAIT", 5*time.Second),
	}
}

func (c *Config) loadHTTPConfig() {
	c.HTTP = HTTPConfig{
		Host:         getEnv("HTTP_HOST", "0.0.0.0"),
		Port:         getEnvInt("HTTP_PORT", 8080),
		ReadTimeout:  getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getEnvDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		RateLimit:    getEnvFloat("HTTP_RATE_LIMIT", 200),
		RateBurst:    getEnvInt("HTTP_RATE_BURST", 400),
	}
}

func (c *Config) loadEngineConfig() {
	c.Engine = EngineConfig{
		IdempotencyWindow:  getEnvInt("ENGINE_IDEMPOTENCY_WINDOW", 256),
		PacingWindow:       getEnvInt("ENGINE_PACING_WINDOW", 10),
		HighScoreThreshold: getEnvFloat("ENGINE_HIGH_SCORE_THRESHOLD", 70),
		LockShards:         getEnvInt("ENGINE_LOCK_SHARDS", 256),
		EventTimeout:       getEnvDuration("ENGINE_EVENT_TIMEOUT", 10*time.Second),
		CatalogSource:      strings.ToLower(getEnv("ENGINE_CATALOG_SOURCE", CatalogFromDB)),
		CatalogPath:        getEnv("ENGINE_CATALOG_PATH", ""),
	}
}

func (c *Config) loadNotificationConfig() {
	c.Notification = NotificationConfig{
		Sink:            strings.ToLower(getEnv("NOTIFY_SINK", SinkLog)),
		WebhookURL:      getEnv("NOTIFY_WEBHOOK_URL", ""),
		WebhookSecret:   getEnv("NOTIFY_WEBHOOK_SECRET", ""),
		WebhookTimeout:  getEnvDuration("NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second),
		QueueName:       getEnv("NOTIFY_QUEUE_NAME", "unlocks"),
		QueueMaxLen:     int64(getEnvInt("NOTIFY_QUEUE_MAX_LEN", 10000)),
		RatePerSecond:   getEnvFloat("NOTIFY_RATE_PER_SECOND", 50),
		Burst:           getEnvInt("NOTIFY_BURST", 100),
		MaxAttempts:     getEnvInt("NOTIFY_MAX_ATTEMPTS", 3),
		MaxRedeliveries: getEnvInt("NOTIFY_MAX_REDELIVERIES", 5),
		BreakerCooldown: getEnvDuration("NOTIFY_BREAKER_COOLDOWN", 30*time.Second),
		DeadLetterSize:  getEnvInt("NOTIFY_DLQ_SIZE", 1000),
	}
}

func (c *Config) loadSchedulerConfig() {
	c.Scheduler = SchedulerConfig{
		Enabled:           getEnvBool("SCHEDULER_ENABLED", true),
		RedeliverInterval: getEnvDuration("SCHEDULER_REDELIVER_INTERVAL", time.Minute),
		JobTimeout:        getEnvDuration("SCHEDULER_JOB_TIMEOUT", 2*time.Minute),
	}
}

func (c *Config) loadObservabilityConfig() {
	c.Observability = ObservabilityConfig{
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		LogFile:       getEnv("LOG_FILE", ""),
		LogMaxSizeMB:  getEnvInt("LOG_MAX_SIZE_MB", 100),
		LogMaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
		LogMaxAgeDays: getEnvInt("LOG_MAX_AGE_DAYS", 30),
		LogCompress:   getEnvBool("LOG_COMPRESS", true),
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	switch c.App.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		errs = append(errs, fmt.Sprintf("invalid APP_ENV: %s", c.App.Environment))
	}

	switch c.Database.Driver {
	case StoragePostgres, StorageMemory:
	default:
		errs = append(errs, fmt.Sprintf("STORAGE_DRIVER must be %s or %s", StoragePostgres, StorageMemory))
	}

	if c.Database.MaxConns < 1 {
		errs = append(errs, "DB_MAX_CONNS must be at least 1")
	}
	if c.Database.MinConns > c.Database.MaxConns {
		errs = append(errs, "DB_MIN_CONNS cannot exceed DB_MAX_CONNS")
	}

	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, "HTTP_PORT must be 1-65535")
	}
	if c.HTTP.RateLimit < 0 {
		errs = append(errs, "HTTP_RATE_LIMIT cannot be negative")
	}

	if c.Engine.IdempotencyWindow < 1 {
		errs = append(errs, "ENGINE_IDEMPOTENCY_WINDOW must be at least 1")
	}
	if c.Engine.PacingWindow < 1 {
		errs = append(errs, "ENGINE_PACING_WINDOW must be at least 1")
	}
	if c.Engine.LockShards < 1 {
		errs = append(errs, "ENGINE_LOCK_SHARDS must be at least 1")
	}
	switch c.Engine.CatalogSource {
	case CatalogFromDB:
		if c.Database.Driver == StorageMemory {
			errs = append(errs, "ENGINE_CATALOG_SOURCE=db requires STORAGE_DRIVER=postgres")
		}
	case CatalogFromFile:
	default:
		errs = append(errs, fmt.Sprintf("ENGINE_CATALOG_SOURCE must be %s or %s", CatalogFromDB, CatalogFromFile))
	}

	switch c.Notification.Sink {
	case SinkLog:
	case SinkWebhook:
		if c.Notification.WebhookURL == "" {
			errs = append(errs, "NOTIFY_WEBHOOK_URL is required when NOTIFY_SINK=webhook")
		}
	case SinkRedis:
		if c.Redis.Disabled {
			errs = append(errs, "NOTIFY_SINK=redis requires REDIS_DISABLED=false")
		}
	default:
		errs = append(errs, fmt.Sprintf("invalid NOTIFY_SINK: %s", c.Notification.Sink))
	}
	if c.Notification.MaxAttempts < 1 {
		errs = append(errs, "NOTIFY_MAX_ATTEMPTS must be at least 1")
	}

	if c.Scheduler.Enabled && c.Scheduler.RedeliverInterval <= 0 {
		errs = append(errs, "SCHEDULER_REDELIVER_INTERVAL must be positive")
	}

	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Sprintf("invalid LOG_FORMAT: %s", c.Observability.LogFormat))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == EnvDevelopment
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// --- Helper functions for environment variable parsing ---

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}
