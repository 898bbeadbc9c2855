// Package server provides configuration helpers that define runtime defaults,
// sanitization, and the environment knobs for the relay service.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
)

// Config holds the relay's runtime settings. Every field can be overridden
// through the environment; zero or invalid values fall back to defaults.
type Config struct {
	Port                    string        `env:"SERVER_PORT"`
	DataFile                string        `env:"CHAT_DATA_FILE"`
	StaticDir               string        `env:"STATIC_DIR"`
	Origins                 string        `env:"ALLOWED_ORIGINS"`
	AllowedOrigins          []string
	MaxMessageSize          int64         `env:"MAX_MESSAGE_SIZE"`
	RetentionWindow         time.Duration `env:"RETENTION_WINDOW"`
	RateLimitBurst          int           `env:"RATE_LIMIT_BURST"`
	RateLimitRefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL"`
	ShutdownTimeout         time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel                string        `env:"LOG_LEVEL"`
}

func defaultConfig() Config {
	return Config{
		Port:                    ":3000",
		DataFile:                "chat_data.json",
		StaticDir:               "public",
		AllowedOrigins:          []string{"*"},
		MaxMessageSize:          4096,
		RetentionWindow:         DefaultRetentionWindow,
		RateLimitBurst:          10,
		RateLimitRefillInterval: time.Second,
		ShutdownTimeout:         10 * time.Second,
		LogLevel:                "INFO",
	}
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv builds the configuration from the environment on top of
// the defaults.
func NewConfigFromEnv() (*Config, error) {
	cfg := defaultConfig()
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	cfg.sanitize()
	return &cfg, nil
}

// sanitize replaces empty or invalid settings with their defaults.
func (c *Config) sanitize() {
	defaults := defaultConfig()

	if c.Port == "" {
		c.Port = defaults.Port
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.DataFile == "" {
		c.DataFile = defaults.DataFile
	}
	if c.Origins != "" {
		c.AllowedOrigins = parseOrigins(c.Origins)
	}
	if len(c.AllowedOrigins) == 0 {
		c.AllowedOrigins = defaults.AllowedOrigins
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.RetentionWindow <= 0 {
		c.RetentionWindow = defaults.RetentionWindow
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = defaults.RateLimitBurst
	}
	if c.RateLimitRefillInterval <= 0 {
		c.RateLimitRefillInterval = defaults.RateLimitRefillInterval
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = defaults.LogLevel
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// SlogLevel maps the configured log level string onto a slog level,
// defaulting to info for unrecognized values.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
