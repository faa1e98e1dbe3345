// Package config reads cache settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hanpama/gqlcache/internal/normcache"
)

// Config holds the settings of a cache instance. Zero limits mean unbounded.
type Config struct {
	MaxSizeBytes int           `env:"GQLCACHE_MAX_SIZE_BYTES" envDefault:"0"`
	MaxEntries   int           `env:"GQLCACHE_MAX_ENTRIES" envDefault:"0"`
	ExpireAfter  time.Duration `env:"GQLCACHE_EXPIRE_AFTER" envDefault:"0s"`
	LogLevel     string        `env:"GQLCACHE_LOG_LEVEL" envDefault:"info"`
	LogFormat    string        `env:"GQLCACHE_LOG_FORMAT" envDefault:"text"`
	OtelEndpoint string        `env:"GQLCACHE_OTEL_ENDPOINT"`
	OtelService  string        `env:"GQLCACHE_OTEL_SERVICE" envDefault:"gqlcache"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.MaxSizeBytes < 0 || cfg.MaxEntries < 0 || cfg.ExpireAfter < 0 {
		return Config{}, fmt.Errorf("cache limits must not be negative")
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MemoryOptions returns the options of the in-memory base cache.
func (c Config) MemoryOptions(logger *slog.Logger) []normcache.Option {
	opts := []normcache.Option{normcache.WithLogger(logger)}
	if c.MaxSizeBytes > 0 {
		opts = append(opts, normcache.WithMaxSizeBytes(c.MaxSizeBytes))
	}
	if c.MaxEntries > 0 {
		opts = append(opts, normcache.WithMaxEntries(c.MaxEntries))
	}
	if c.ExpireAfter > 0 {
		opts = append(opts, normcache.WithExpireAfter(c.ExpireAfter))
	}
	return opts
}

// Logger returns a logger writing to stderr at the configured level.
func (c Config) Logger() *slog.Logger {
	level, _ := parseLevel(c.LogLevel)
	handlerOpts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, handlerOpts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return level, nil
}
