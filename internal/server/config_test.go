package server

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfigDefaults(t *testing.T) {
	req := require.New(t)
	cfg := NewConfig()

	req.Equal(":3000", cfg.Port)
	req.Equal("chat_data.json", cfg.DataFile)
	req.Equal([]string{"*"}, cfg.AllowedOrigins)
	req.Equal(DefaultRetentionWindow, cfg.RetentionWindow)
	req.Positive(cfg.MaxMessageSize)
	req.Positive(cfg.RateLimitBurst)
	req.Positive(cfg.RateLimitRefillInterval)
}

func TestNewConfigFromEnvOverrides(t *testing.T) {
	req := require.New(t)

	t.Setenv("SERVER_PORT", ":9000")
	t.Setenv("CHAT_DATA_FILE", "/tmp/history.json")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("RETENTION_WINDOW", "48h")
	t.Setenv("RATE_LIMIT_BURST", "3")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := NewConfigFromEnv()
	req.NoError(err)

	req.Equal(":9000", cfg.Port)
	req.Equal("/tmp/history.json", cfg.DataFile)
	req.Equal([]string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	req.Equal(48*time.Hour, cfg.RetentionWindow)
	req.Equal(3, cfg.RateLimitBurst)
	req.Equal(slog.LevelDebug, cfg.SlogLevel())
}

func TestSanitizeFillsInvalidValues(t *testing.T) {
	req := require.New(t)

	cfg := &Config{
		Port:           "9000",
		MaxMessageSize: -1,
		RateLimitBurst: 0,
	}
	cfg.sanitize()

	req.Equal(":9000", cfg.Port, "bare port numbers gain a colon prefix")
	req.Equal(defaultConfig().MaxMessageSize, cfg.MaxMessageSize)
	req.Equal(defaultConfig().RateLimitBurst, cfg.RateLimitBurst)
	req.Equal(defaultConfig().RetentionWindow, cfg.RetentionWindow)
	req.NotEmpty(cfg.AllowedOrigins)
}

func TestSlogLevelMapping(t *testing.T) {
	req := require.New(t)

	req.Equal(slog.LevelDebug, (&Config{LogLevel: "debug"}).SlogLevel())
	req.Equal(slog.LevelWarn, (&Config{LogLevel: "WARNING"}).SlogLevel())
	req.Equal(slog.LevelError, (&Config{LogLevel: "Error"}).SlogLevel())
	req.Equal(slog.LevelInfo, (&Config{LogLevel: "whatever"}).SlogLevel())
}
