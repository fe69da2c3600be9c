// AngelaMos | 2026
// config.go

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	App       AppConfig       `koanf:"app"`
	Server    ServerConfig    `koanf:"server"`
	GRPC      GRPCConfig      `koanf:"grpc"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	JWT       JWTConfig       `koanf:"jwt"`
	Session   SessionConfig   `koanf:"session"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Log       LogConfig       `koanf:"log"`
	Otel      OtelConfig      `koanf:"otel"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type GRPCConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
	StoreTimeout    time.Duration `koanf:"store_timeout"`
	Migrate         bool          `koanf:"migrate"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type JWTConfig struct {
	PrivateKeyPath    string        `koanf:"private_key_path"`
	PreviousKeyPaths  []string      `koanf:"previous_key_paths"`
	AccessTokenExpire time.Duration `koanf:"access_token_expire"`
	Issuer            string        `koanf:"issuer"`
	Audience          string        `koanf:"audience"`
	TrustedIssuers    []string      `koanf:"trusted_issuers"`
	ClockSkew         time.Duration `koanf:"clock_skew"`
	RotationGrace     time.Duration `koanf:"rotation_grace"`
	Legacy            LegacyConfig  `koanf:"legacy"`
}

// LegacyConfig enables the HS256 trust source for tokens minted by the
// previous identity service. Empty Secret disables it.
type LegacyConfig struct {
	Secret string `koanf:"secret"`
	Issuer string `koanf:"issuer"`
}

type SessionConfig struct {
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	ExpiredRetention   time.Duration `koanf:"expired_retention"`
	RevokedRetention   time.Duration `koanf:"revoked_retention"`
	SweepInterval      time.Duration `koanf:"sweep_interval"`
	Store              string        `koanf:"store"`
}

type RateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
	Burst    int           `koanf:"burst"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Load layers defaults, the optional YAML file at configPath and the
// mapped environment variables, in that order.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("load env vars: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.JWT.TrustedIssuers) == 0 && cfg.JWT.Issuer != "" {
		cfg.JWT.TrustedIssuers = []string{cfg.JWT.Issuer}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	defaults := map[string]any{
		"app.name":        "Task Manager",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"grpc.host": "0.0.0.0",
		"grpc.port": 9090,

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",
		"database.store_timeout":      "3s",
		"database.migrate":            true,

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.access_token_expire": "15m",
		"jwt.issuer":              "task-manager",
		"jwt.audience":            "task-manager-api",
		"jwt.private_key_path":    "keys/private.pem",
		"jwt.clock_skew":          "30s",
		"jwt.rotation_grace":      "30m",
		"jwt.legacy.issuer":       "task-manager-legacy",

		"session.refresh_token_expire": "168h",
		"session.expired_retention":    "720h",
		"session.revoked_retention":    "168h",
		"session.sweep_interval":       "1h",
		"session.store":                StorePostgres,

		"rate_limit.requests": 10,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    5,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "task-manager",
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"DATABASE_STORE_TIMEOUT":      "database.store_timeout",
	"DATABASE_MIGRATE":            "database.migrate",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"GRPC_PORT":                   "grpc.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"JWT_CLOCK_SKEW":              "jwt.clock_skew",
	"JWT_ROTATION_GRACE":          "jwt.rotation_grace",
	"JWT_LEGACY_SECRET":           "jwt.legacy.secret",
	"JWT_LEGACY_ISSUER":           "jwt.legacy.issuer",
	"SESSION_REFRESH_EXPIRE":      "session.refresh_token_expire",
	"SESSION_EXPIRED_RETENTION":   "session.expired_retention",
	"SESSION_REVOKED_RETENTION":   "session.revoked_retention",
	"SESSION_SWEEP_INTERVAL":      "session.sweep_interval",
	"SESSION_STORE":               "session.store",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	// The user directory lives in Postgres whichever session store is used.
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}

	if c.Session.Store != StorePostgres && c.Session.Store != StoreMemory {
		return fmt.Errorf("session.store must be %q or %q", StorePostgres, StoreMemory)
	}

	if c.Redis.URL == "" {
		return errors.New("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return errors.New("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.JWT.Audience == "" {
		return errors.New("jwt.audience is required")
	}

	if len(c.JWT.TrustedIssuers) == 0 {
		return errors.New("jwt.trusted_issuers must not be empty")
	}

	if c.JWT.Legacy.Secret != "" && len(c.JWT.Legacy.Secret) < 32 {
		return errors.New("jwt.legacy.secret must be at least 32 bytes")
	}

	positive := map[string]time.Duration{
		"server.read_timeout":          c.Server.ReadTimeout,
		"server.write_timeout":         c.Server.WriteTimeout,
		"jwt.access_token_expire":      c.JWT.AccessTokenExpire,
		"jwt.rotation_grace":           c.JWT.RotationGrace,
		"session.refresh_token_expire": c.Session.RefreshTokenExpire,
		"session.expired_retention":    c.Session.ExpiredRetention,
		"session.revoked_retention":    c.Session.RevokedRetention,
		"session.sweep_interval":       c.Session.SweepInterval,
	}
	for key, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}

	if c.JWT.ClockSkew < 0 {
		return errors.New("jwt.clock_skew must not be negative")
	}

	if c.Session.RevokedRetention > c.Session.ExpiredRetention {
		return errors.New("session.revoked_retention must not exceed session.expired_retention")
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return errors.New("OTEL_INSECURE must be false in production")
		}
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (g *GRPCConfig) Address() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}
