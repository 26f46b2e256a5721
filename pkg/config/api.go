package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const developmentJWTSecret = "supersecuresecret"

// APIConfig holds runtime configuration for the API service.
type APIConfig struct {
	Environment   string `env:"APP_ENV" envDefault:"development"`
	Addr          string `env:"API_ADDR" envDefault:":4000"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	DBDriver      string `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"postgres://teamhub:teamhub@db:5432/teamhub?sslmode=disable"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/teamhub.db"`
	MigrationsDir string `env:"DB_MIGRATIONS_DIR" envDefault:"db/migrations"`
	JWTSecret     string `env:"JWT_SECRET"`

	DefaultRole    string   `env:"TEAM_DEFAULT_ROLE" envDefault:"member"`
	UpdateStrategy string   `env:"TEAM_UPDATE_STRATEGY" envDefault:"default"`
	ReservedNames  []string `env:"TEAM_RESERVED_NAMES" envSeparator:","`

	RateLimits         RateLimitConfig `envPrefix:"RATE_LIMIT_"`
	RateLimitRedisAddr string          `env:"RATE_LIMIT_REDIS_ADDR"`
	RateLimitRedisPass string          `env:"RATE_LIMIT_REDIS_PASSWORD"`
	RateLimitRedisDB   int             `env:"RATE_LIMIT_REDIS_DB" envDefault:"0"`

	EventsRedisAddr    string `env:"EVENTS_REDIS_ADDR"`
	EventsRedisPass    string `env:"EVENTS_REDIS_PASSWORD"`
	EventsRedisDB      int    `env:"EVENTS_REDIS_DB" envDefault:"0"`
	EventsRedisChannel string `env:"EVENTS_REDIS_CHANNEL" envDefault:"teamhub:team-events"`

	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// RateLimitConfig sets request budgets. Read, Write and Realtime are charged
// per user; TeamInvites is charged per team on invitation sends. Zero
// disables a budget.
type RateLimitConfig struct {
	Read             int           `env:"READ" envDefault:"120"`
	Write            int           `env:"WRITE" envDefault:"60"`
	Realtime         int           `env:"REALTIME" envDefault:"30"`
	TeamInvites      int           `env:"TEAM_INVITES" envDefault:"20"`
	Window           time.Duration `env:"WINDOW" envDefault:"1m"`
	RealtimeWindow   time.Duration `env:"REALTIME_WINDOW" envDefault:"30s"`
	TeamInviteWindow time.Duration `env:"TEAM_INVITE_WINDOW" envDefault:"1h"`
}

func (c RateLimitConfig) validate() error {
	budgets := []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{"READ", c.Read, c.Window},
		{"WRITE", c.Write, c.Window},
		{"REALTIME", c.Realtime, c.RealtimeWindow},
		{"TEAM_INVITES", c.TeamInvites, c.TeamInviteWindow},
	}
	var errs []error
	for _, b := range budgets {
		switch {
		case b.limit < 0:
			errs = append(errs, fmt.Errorf("RATE_LIMIT_%s must not be negative", b.name))
		case b.limit > 0 && b.window <= 0:
			errs = append(errs, fmt.Errorf("RATE_LIMIT_%s needs a positive window", b.name))
		}
	}
	return errors.Join(errs...)
}

// LoadAPIConfig constructs an APIConfig from environment variables.
func LoadAPIConfig() (APIConfig, error) {
	var cfg APIConfig
	if err := ParseEnv(&cfg); err != nil {
		return APIConfig{}, err
	}
	if cfg.JWTSecret == "" && cfg.IsDevelopment() {
		cfg.JWTSecret = developmentJWTSecret
	}
	if err := cfg.Validate(); err != nil {
		return APIConfig{}, err
	}
	return cfg, nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (c APIConfig) IsDevelopment() bool {
	return c.Environment == "" || strings.EqualFold(c.Environment, "development")
}

// Validate checks settings that have no safe fallback.
func (c APIConfig) Validate() error {
	var errs []error
	switch c.DBDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required outside development"))
	}
	if err := c.RateLimits.validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
