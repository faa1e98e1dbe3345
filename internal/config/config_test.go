package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	want := Config{LogLevel: "info", LogFormat: "text", OtelService: "gqlcache"}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, cfg.MemoryOptions(slog.Default()), 1)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GQLCACHE_MAX_SIZE_BYTES", "4096")
	t.Setenv("GQLCACHE_MAX_ENTRIES", "10")
	t.Setenv("GQLCACHE_EXPIRE_AFTER", "90s")
	t.Setenv("GQLCACHE_LOG_LEVEL", "debug")
	t.Setenv("GQLCACHE_OTEL_ENDPOINT", "localhost:4317")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 4096, cfg.MaxSizeBytes)
	require.Equal(t, 10, cfg.MaxEntries)
	require.Equal(t, 90*time.Second, cfg.ExpireAfter)
	require.Equal(t, "localhost:4317", cfg.OtelEndpoint)
	require.Len(t, cfg.MemoryOptions(slog.Default()), 4)
	require.True(t, cfg.Logger().Enabled(t.Context(), slog.LevelDebug))
}

func TestLoadErrors(t *testing.T) {
	t.Run("malformed number", func(t *testing.T) {
		t.Setenv("GQLCACHE_MAX_ENTRIES", "many")
		_, err := Load()
		require.ErrorContains(t, err, "parse env:")
	})
	t.Run("negative limit", func(t *testing.T) {
		t.Setenv("GQLCACHE_MAX_SIZE_BYTES", "-1")
		_, err := Load()
		require.Error(t, err)
	})
	t.Run("unknown log level", func(t *testing.T) {
		t.Setenv("GQLCACHE_LOG_LEVEL", "loud")
		_, err := Load()
		require.ErrorContains(t, err, "invalid log level")
	})
}
