/*
config.go - Process configuration

PURPOSE:
  Collects everything cmd/server needs to start: listen address, database
  path, session signing, logging, CORS, and whether demo scenarios are
  exposed.

LOAD ORDER (later wins):
  1. Defaults
  2. YAML file (optional; a missing file keeps the defaults)
  3. .env in the working directory (optional)
  4. KYUDO_* environment variables

ENVIRONMENT:
  KYUDO_ADDR               listen address (":8080")
  KYUDO_DB                 SQLite path, ":memory:" for an ephemeral database
  KYUDO_JWT_SECRET         session signing secret, at least 16 bytes
  KYUDO_SESSION_TTL        session lifetime as a Go duration ("168h")
  KYUDO_LOG_LEVEL          debug | info | warn | error
  KYUDO_LOG_FORMAT         json | console
  KYUDO_ALLOWED_ORIGINS    comma-separated CORS origins
  KYUDO_ENABLE_SCENARIOS   "true" exposes /api/scenarios
*/
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
)

const minSecretLength = 16

// Config is the server configuration.
type Config struct {
	Addr            string        `yaml:"addr"`
	DatabasePath    string        `yaml:"database_path"`
	JWTSecret       string        `yaml:"jwt_secret"`
	SessionTTL      time.Duration `yaml:"session_ttl"`
	SecureCookie    bool          `yaml:"secure_cookie"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	EnableScenarios bool          `yaml:"enable_scenarios"`
	AuditBuffer     int           `yaml:"audit_buffer"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Addr:           ":8080",
		DatabasePath:   "kyudo.db",
		SessionTTL:     7 * 24 * time.Hour,
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AuditBuffer:    256,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from path (may be empty), .env, and the
// environment. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// .env never overrides variables already present in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("KYUDO_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("KYUDO_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("KYUDO_JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("KYUDO_SESSION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("KYUDO_SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	if v := os.Getenv("KYUDO_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("KYUDO_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("KYUDO_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("KYUDO_ENABLE_SCENARIOS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("KYUDO_ENABLE_SCENARIOS: %w", err)
		}
		c.EnableScenarios = b
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if len(c.JWTSecret) < minSecretLength {
		return fmt.Errorf("jwt secret must be at least %d bytes (set KYUDO_JWT_SECRET)", minSecretLength)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("database path is required")
	}
	if c.Addr == "" {
		return errors.New("listen address is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	if c.AuditBuffer <= 0 {
		return errors.New("audit buffer must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}
