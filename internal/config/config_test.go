package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.IngestInterval)
	assert.Equal(t, 6*time.Hour, cfg.IngestMinRefetch)
	assert.Equal(t, int64(10000), cfg.YouTubeDailyQuota)
	assert.True(t, cfg.MigrationsAuto)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 30*time.Second, cfg.DBConnectTimeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("INGEST_CONCURRENCY", "1")
	t.Setenv("INGEST_INTERVAL", "5m")
	t.Setenv("YOUTUBE_FALLBACK_API_KEY", "fallback")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 1, cfg.IngestConcurrency)
	assert.Equal(t, 5*time.Minute, cfg.IngestInterval)
	assert.Equal(t, "fallback", cfg.YouTubeFallbackAPIKey)
}

func TestLoad_RejectsInvalidConcurrency(t *testing.T) {
	t.Setenv("INGEST_CONCURRENCY", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ProductionNeedsSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("JWT_SECRET", "s3cret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
