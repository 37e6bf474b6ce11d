package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Env     string `envconfig:"APP_ENV" default:"development"`
	Port    int    `envconfig:"APP_PORT" default:"8080"`
	DB      DBConfig
	Redis   RedisConfig
	CORS    CORSConfig
	JWT     JWTConfig
	Scorer  ScorerConfig
	Session SessionConfig
}

// record store configuration
type DBConfig struct {
	Driver          string        `envconfig:"STORE_DRIVER" default:"postgres"`
	DSN             string        `envconfig:"DATABASE_URL"`
	SQLitePath      string        `envconfig:"SQLITE_PATH" default:"evalengine.sqlite"`
	MaxConns        int32         `envconfig:"DB_MAX_CONNS" default:"20"`
	MaxConnLifetime time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"1h"`
	Timeout         time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
}

// Redis caches diagnostics reports. Caching is off when Addr is empty.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	TTL      time.Duration `envconfig:"DIAGNOSTICS_CACHE_TTL" default:"5m"`
}

// CORS configuration
type CORSConfig struct {
	TrustedOrigins []string `envconfig:"CORS_TRUSTED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// JWT configuration
type JWTConfig struct {
	Secret string `envconfig:"JWT_SECRET" required:"true"`
}

// external scorer configuration
type ScorerConfig struct {
	Provider string        `envconfig:"SCORER_PROVIDER" default:"groq"`
	APIKey   string        `envconfig:"SCORER_API_KEY"`
	Model    string        `envconfig:"SCORER_MODEL" default:"meta-llama/llama-4-maverick-17b-128e-instruct"`
	Timeout  time.Duration `envconfig:"SCORER_TIMEOUT" default:"30s"`
}

// interview session configuration
type SessionConfig struct {
	// ProgressBaseline is the assumed number of questions per interview used
	// to derive progress from the evaluation count.
	ProgressBaseline int `envconfig:"SESSION_PROGRESS_BASELINE" default:"10"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Env] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}
	switch c.DB.Driver {
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case DriverSQLite:
		if strings.TrimSpace(c.DB.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite store")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER: %s (must be postgres or sqlite)", c.DB.Driver)
	}
	if c.DB.MaxConns < 1 {
		return fmt.Errorf("DB_MAX_CONNS must be at least 1")
	}
	if c.DB.Timeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Scorer.Provider != "groq" && c.Scorer.Provider != "openai" {
		return fmt.Errorf("invalid SCORER_PROVIDER: %s (must be groq or openai)", c.Scorer.Provider)
	}
	if c.Session.ProgressBaseline < 1 {
		return fmt.Errorf("SESSION_PROGRESS_BASELINE must be at least 1")
	}
	if len(c.CORS.TrustedOrigins) == 0 {
		return fmt.Errorf("at least one trusted origin must be specified")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GetCORSOrigins returns the list of trusted CORS origins
func (c *Config) GetCORSOrigins() []string {
	origins := make([]string, 0, len(c.CORS.TrustedOrigins))
	for _, origin := range c.CORS.TrustedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{Env=%s, Port=%d, DB.Driver=%s, DB.MaxConns=%d, DB.Timeout=%s, "+
		"Redis.Enabled=%t, CORS.Origins=%d, Scorer.Provider=%s, Scorer.Model=%s, Session.ProgressBaseline=%d}",
		c.Env, c.Port, c.DB.Driver, c.DB.MaxConns, c.DB.Timeout,
		c.Redis.Addr != "", len(c.CORS.TrustedOrigins), c.Scorer.Provider, c.Scorer.Model, c.Session.ProgressBaseline)
}
