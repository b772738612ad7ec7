package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(lookupMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "sqlite://skatehubba.db", cfg.DatabaseURL)
	assert.Equal(t, "./migrations", cfg.MigrationsDir)
	assert.Equal(t, 10*time.Minute, cfg.QueueTTL)
	assert.Equal(t, 24*time.Hour, cfg.ChallengeTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, int64(100<<20), cfg.MaxVideoBytes)
	assert.Equal(t, 60*time.Second, cfg.MaxVideoDuration)
	assert.False(t, cfg.SwapTurnOnLand)
	assert.Empty(t, cfg.S3.Bucket)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(lookupMap(map[string]string{
		"SKATEHUBBA_DATABASE_URL":       "postgresql://skate:skate@db/skate",
		"SKATEHUBBA_REDIS_URL":          "redis://cache:6379/0",
		"SKATEHUBBA_S3_BUCKET":          "clips",
		"SKATEHUBBA_S3_ENDPOINT":        "http://minio:9000",
		"SKATEHUBBA_CDN_BASE_URL":       "https://cdn.example.com",
		"SKATEHUBBA_QUEUE_TTL":          "90s",
		"SKATEHUBBA_MAX_VIDEO_BYTES":    "1048576",
		"SKATEHUBBA_SWAP_TURN_ON_LAND":  "true",
		"SKATEHUBBA_UPLOAD_CONCURRENCY": "4",
	}))
	require.NoError(t, err)
	assert.Equal(t, "postgresql://skate:skate@db/skate", cfg.DatabaseURL)
	assert.Equal(t, "redis://cache:6379/0", cfg.RedisURL)
	assert.Equal(t, "clips", cfg.S3.Bucket)
	assert.Equal(t, "http://minio:9000", cfg.S3.Endpoint)
	assert.Equal(t, "https://cdn.example.com", cfg.S3.CDNBaseURL)
	assert.Equal(t, 90*time.Second, cfg.QueueTTL)
	assert.Equal(t, int64(1<<20), cfg.MaxVideoBytes)
	assert.True(t, cfg.SwapTurnOnLand)
	assert.Equal(t, 4, cfg.UploadConcurrency)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "bad duration", env: map[string]string{"SKATEHUBBA_QUEUE_TTL": "soon"}},
		{name: "bad int", env: map[string]string{"SKATEHUBBA_MAX_VIDEO_BYTES": "lots"}},
		{name: "bad bool", env: map[string]string{"SKATEHUBBA_SWAP_TURN_ON_LAND": "maybe"}},
		{name: "zero sweep interval", env: map[string]string{"SKATEHUBBA_SWEEP_INTERVAL": "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookupMap(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestLoad_DotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("SKATEHUBBA_S3_BUCKET=from-file\nSKATEHUBBA_CHALLENGE_TTL=2h\n"), 0o600))
	t.Setenv("SKATEHUBBA_CHALLENGE_TTL", "3h")
	t.Cleanup(func() { os.Unsetenv("SKATEHUBBA_S3_BUCKET") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.S3.Bucket)
	assert.Equal(t, 3*time.Hour, cfg.ChallengeTTL, "environment wins over the file")

	_, err = Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}
