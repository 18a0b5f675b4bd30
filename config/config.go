// Package config loads bridge settings from the environment.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/glimte/hostbridge/bridge"
	"github.com/glimte/hostbridge/messaging"
	"github.com/glimte/hostbridge/transport"
)

// Config holds every environment-tunable bridge setting
type Config struct {
	DefaultTimeout   time.Duration `env:"HOSTBRIDGE_DEFAULT_TIMEOUT" envDefault:"30s"`
	MaxPending       int           `env:"HOSTBRIDGE_MAX_PENDING" envDefault:"1000"`
	PostRetries      int           `env:"HOSTBRIDGE_POST_RETRIES" envDefault:"0"`
	PostRetryDelay   time.Duration `env:"HOSTBRIDGE_POST_RETRY_DELAY" envDefault:"50ms"`
	BreakerThreshold int           `env:"HOSTBRIDGE_BREAKER_THRESHOLD" envDefault:"0"`
	BreakerCooldown  time.Duration `env:"HOSTBRIDGE_BREAKER_COOLDOWN" envDefault:"5s"`
	LogLevel         string        `env:"HOSTBRIDGE_LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"HOSTBRIDGE_LOG_FORMAT" envDefault:"text"`
}

// Load parses the environment and validates the result
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can honour
func (c Config) Validate() error {
	switch {
	case c.DefaultTimeout < 0:
		return fmt.Errorf("default timeout cannot be negative: %s", c.DefaultTimeout)
	case c.MaxPending < 0:
		return fmt.Errorf("max pending cannot be negative: %d", c.MaxPending)
	case c.PostRetries < 0:
		return fmt.Errorf("post retries cannot be negative: %d", c.PostRetries)
	case c.BreakerThreshold < 0:
		return fmt.Errorf("breaker threshold cannot be negative: %d", c.BreakerThreshold)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// NewLogger builds a slog logger writing to w in the configured format and level
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// AdapterOptions maps the post retry and breaker settings onto adapter options
func (c Config) AdapterOptions(logger *slog.Logger) []transport.AdapterOption {
	opts := []transport.AdapterOption{transport.WithLogger(logger)}
	if c.PostRetries > 0 {
		opts = append(opts, transport.WithPostRetry(c.PostRetries, c.PostRetryDelay))
	}
	if c.BreakerThreshold > 0 {
		opts = append(opts, transport.WithBreaker(c.BreakerThreshold, c.BreakerCooldown))
	}
	return opts
}

// BridgeOptions maps the request settings onto bridge options
func (c Config) BridgeOptions(logger *slog.Logger, metrics messaging.MetricsCollector) []bridge.Option {
	return []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithMetrics(metrics),
		bridge.WithDefaultTimeout(c.DefaultTimeout),
		bridge.WithMaxPending(c.MaxPending),
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
