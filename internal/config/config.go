// Package config loads gateway configuration from defaults, an optional
// YAML file, a .env file and environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Esemudje/portfolio-manager-team02/internal/backend"
	"github.com/Esemudje/portfolio-manager-team02/internal/model"
	"github.com/Esemudje/portfolio-manager-team02/internal/poller"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the portfolio gateway.
type Config struct {
	Server  Server  `yaml:"server"`
	Backend Backend `yaml:"backend"`
	Storage Storage `yaml:"storage"`
	Poll    Poll    `yaml:"poll"`
	Logging Logging `yaml:"logging"`
}

// Server holds the HTTP listener configuration.
type Server struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// Backend locates the upstream portfolio backend.
type Backend struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
	UserID  string        `yaml:"user_id"`
}

// Storage selects where client state lives. DatabaseURL wins over
// SQLitePath; with neither set state is kept in memory.
type Storage struct {
	DatabaseURL string        `yaml:"database_url"`
	RedisURL    string        `yaml:"redis_url"`
	SQLitePath  string        `yaml:"sqlite_path"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

// Poll controls the dashboard refresh loop.
type Poll struct {
	Enabled          bool          `yaml:"enabled"`
	Interval         time.Duration `yaml:"interval"`
	QuoteConcurrency int           `yaml:"quote_concurrency"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: Server{
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Backend: Backend{
			URL:     backend.DefaultBaseURL,
			Timeout: backend.DefaultTimeout,
			UserID:  model.DefaultUserID,
		},
		Storage: Storage{
			SQLitePath: "portfolio-gateway.db",
			CacheTTL:   30 * time.Second,
		},
		Poll: Poll{
			Enabled:          true,
			Interval:         poller.DefaultInterval,
			QuoteConcurrency: 8,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply. A .env file in the working directory
// is read if present; variables already set in the environment win over it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	_ = godotenv.Load()

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the gateway cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Backend.URL == "" {
		errs = append(errs, errors.New("backend.url is required"))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Poll.Interval < time.Second {
		errs = append(errs, fmt.Errorf("poll.interval %s is below one second", c.Poll.Interval))
	}
	if c.Poll.QuoteConcurrency <= 0 {
		errs = append(errs, errors.New("poll.quote_concurrency must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) error {
	var err error
	if v := os.Getenv("PORT"); v != "" {
		if cfg.Server.Port, err = strconv.Atoi(v); err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("BACKEND_URL"); v != "" {
		cfg.Backend.URL = v
	}
	if v := os.Getenv("BACKEND_TIMEOUT"); v != "" {
		if cfg.Backend.Timeout, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("BACKEND_TIMEOUT: %w", err)
		}
	}
	if v := os.Getenv("USER_ID"); v != "" {
		cfg.Backend.UserID = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		if cfg.Poll.Interval, err = time.ParseDuration(v); err != nil {
			return fmt.Errorf("POLL_INTERVAL: %w", err)
		}
	}
	if v := os.Getenv("POLL_ENABLED"); v != "" {
		if cfg.Poll.Enabled, err = strconv.ParseBool(v); err != nil {
			return fmt.Errorf("POLL_ENABLED: %w", err)
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
