package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// DeliveryMode selects how a restock event reaches subscribers.
type DeliveryMode string

const (
	// DeliveryQueued enqueues one item per subscription for the processor.
	DeliveryQueued DeliveryMode = "queued"
	// DeliveryDirect sends inline while handling the restock event.
	DeliveryDirect DeliveryMode = "direct"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a default except DATABASE_URL.
type Config struct {
	// Server
	HTTPPort        string        `env:"HTTP_PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Logging
	Env      string `env:"APP_ENV" envDefault:"production"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Database
	DatabaseURL    string `env:"DATABASE_URL,required"`
	DBMaxConns     int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns     int32  `env:"DB_MIN_CONNS" envDefault:"2"`
	MigrationsPath string `env:"MIGRATIONS_PATH" envDefault:"file://migrations"`

	// Redis is optional; when set, the processor also takes a cluster-wide lock.
	RedisURL     string        `env:"REDIS_URL"`
	RedisLockKey string        `env:"REDIS_LOCK_KEY" envDefault:"restock:processor:lock"`
	RedisLockTTL time.Duration `env:"REDIS_LOCK_TTL" envDefault:"10m"`

	// Delivery gateway: log, webhook or ses.
	Gateway         string        `env:"EMAIL_GATEWAY" envDefault:"log"`
	WebhookURL      string        `env:"WEBHOOK_URL"`
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"10s"`
	SESRegion       string        `env:"SES_REGION" envDefault:"us-east-1"`
	SESFromEmail    string        `env:"SES_FROM_EMAIL"`
	SESConfigSet    string        `env:"SES_CONFIGURATION_SET"`

	BreakerMaxFailures uint32        `env:"BREAKER_MAX_FAILURES" envDefault:"5"`
	BreakerOpenTimeout time.Duration `env:"BREAKER_OPEN_TIMEOUT" envDefault:"30s"`

	// Queue processing
	BatchSize            int           `env:"RESTOCK_BATCH_SIZE" envDefault:"10"`
	PacingInterval       time.Duration `env:"RESTOCK_PACING_INTERVAL" envDefault:"1s"`
	ProcessInterval      time.Duration `env:"RESTOCK_PROCESS_INTERVAL" envDefault:"60s"`
	CacheRefreshInterval time.Duration `env:"RESTOCK_CACHE_REFRESH_INTERVAL" envDefault:"15m"`
	MaxAttempts          int           `env:"RESTOCK_MAX_ATTEMPTS" envDefault:"3"`
	ProcessingLease      time.Duration `env:"RESTOCK_PROCESSING_LEASE" envDefault:"10m"`
	DeliveryMode         DeliveryMode  `env:"RESTOCK_DELIVERY_MODE" envDefault:"queued"`
	ProcessImmediately   bool          `env:"RESTOCK_PROCESS_IMMEDIATELY" envDefault:"false"`

	// Auth
	JWTSecret string `env:"JWT_SECRET"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.BatchSize <= 0 {
		errs = append(errs, errors.New("RESTOCK_BATCH_SIZE must be positive"))
	}
	if c.MaxAttempts <= 0 {
		errs = append(errs, errors.New("RESTOCK_MAX_ATTEMPTS must be positive"))
	}
	if c.ProcessInterval <= 0 {
		errs = append(errs, errors.New("RESTOCK_PROCESS_INTERVAL must be positive"))
	}
	if c.CacheRefreshInterval <= 0 {
		errs = append(errs, errors.New("RESTOCK_CACHE_REFRESH_INTERVAL must be positive"))
	}
	switch c.DeliveryMode {
	case DeliveryQueued, DeliveryDirect:
	default:
		errs = append(errs, fmt.Errorf("unknown RESTOCK_DELIVERY_MODE %q", c.DeliveryMode))
	}
	switch c.Gateway {
	case "log":
	case "webhook":
		if c.WebhookURL == "" {
			errs = append(errs, errors.New("WEBHOOK_URL is required for the webhook gateway"))
		}
	case "ses":
		if c.SESFromEmail == "" {
			errs = append(errs, errors.New("SES_FROM_EMAIL is required for the ses gateway"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown EMAIL_GATEWAY %q", c.Gateway))
	}
	return errors.Join(errs...)
}
