package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBSlowQuery       time.Duration

	Redis RedisConfig

	Hierarchy HierarchyConfig
	Scheduler SchedulerConfig
	RateLimit RateLimitConfig

	IdempotencyTTL time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis endpoint is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type HierarchyConfig struct {
	InvitationExpirationDays int
}

type SchedulerConfig struct {
	Enabled    bool
	Interval   time.Duration
	BatchSize  int
	JobTimeout time.Duration
	LockTTL    time.Duration
}

// RateLimitConfig bounds how fast one organization may send invitations.
// A non-positive rate disables the limiter.
type RateLimitConfig struct {
	InvitationsPerMinute float64
	InvitationBurst      int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("APP_SERVICE", "marketplace")
	v.SetDefault("APP_VERSION", "0.1.0")
	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("OTLP_ENDPOINT", "localhost:4317")

	v.SetDefault("DATABASE_TYPE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "marketplace")
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE_MAX_OPEN_CONN", 50)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", 300)
	v.SetDefault("DATABASE_SLOW_QUERY_THRESHOLD", 200*time.Millisecond)

	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("INVITATION_EXPIRATION_DAYS", 7)
	v.SetDefault("SCHEDULER_ENABLED", true)
	v.SetDefault("SCHEDULER_INTERVAL", time.Minute)
	v.SetDefault("SCHEDULER_BATCH_SIZE", 100)
	v.SetDefault("SCHEDULER_JOB_TIMEOUT", 30*time.Second)
	v.SetDefault("SCHEDULER_LOCK_TTL", 2*time.Minute)
	v.SetDefault("INVITATION_RATE_PER_MINUTE", 30)
	v.SetDefault("INVITATION_BURST", 10)
	v.SetDefault("IDEMPOTENCY_TTL", 24*time.Hour)
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) Config {
	return Config{
		AppName:           strings.TrimSpace(v.GetString("APP_SERVICE")),
		AppVersion:        strings.TrimSpace(v.GetString("APP_VERSION")),
		Environment:       strings.TrimSpace(v.GetString("ENVIRONMENT")),
		HTTPAddr:          strings.TrimSpace(v.GetString("HTTP_ADDR")),
		OTLPEndpoint:      strings.TrimSpace(v.GetString("OTLP_ENDPOINT")),
		DBType:            strings.ToLower(strings.TrimSpace(v.GetString("DATABASE_TYPE"))),
		DBHost:            v.GetString("DATABASE_HOST"),
		DBPort:            v.GetString("DATABASE_PORT"),
		DBName:            v.GetString("DATABASE_NAME"),
		DBUser:            v.GetString("DATABASE_USER"),
		DBPassword:        v.GetString("DATABASE_PASSWORD"),
		DBSSLMode:         v.GetString("DATABASE_SSLMODE"),
		DBMaxIdleConn:     v.GetInt("DATABASE_MAX_IDLE_CONN"),
		DBMaxOpenConn:     v.GetInt("DATABASE_MAX_OPEN_CONN"),
		DBConnMaxLifetime: v.GetInt("DATABASE_CONN_MAX_LIFETIME"),
		DBSlowQuery:       v.GetDuration("DATABASE_SLOW_QUERY_THRESHOLD"),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(v.GetString("REDIS_ADDR")),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Hierarchy: HierarchyConfig{
			InvitationExpirationDays: positiveOr(v.GetInt("INVITATION_EXPIRATION_DAYS"), 7),
		},
		Scheduler: SchedulerConfig{
			Enabled:    v.GetBool("SCHEDULER_ENABLED"),
			Interval:   v.GetDuration("SCHEDULER_INTERVAL"),
			BatchSize:  positiveOr(v.GetInt("SCHEDULER_BATCH_SIZE"), 100),
			JobTimeout: v.GetDuration("SCHEDULER_JOB_TIMEOUT"),
			LockTTL:    v.GetDuration("SCHEDULER_LOCK_TTL"),
		},
		RateLimit: RateLimitConfig{
			InvitationsPerMinute: v.GetFloat64("INVITATION_RATE_PER_MINUTE"),
			InvitationBurst:      positiveOr(v.GetInt("INVITATION_BURST"), 10),
		},
		IdempotencyTTL: v.GetDuration("IDEMPOTENCY_TTL"),
	}
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func positiveOr(value, def int) int {
	if value <= 0 {
		return def
	}
	return value
}
