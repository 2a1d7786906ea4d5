package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	for _, k := range []string{"FOLDY_BASE_URL", "FOLDY_TIMEOUT", "FOLDY_ARTIFACT_BACKEND", "REDIS_URI", "FOLDY_RETRIES"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, 1200*time.Second, cfg.Timeout)
	assert.Equal(t, 0, cfg.Retries)
	assert.Equal(t, "", cfg.RedisURI)
	assert.False(t, cfg.Artifact.Mirrored())
}

func TestOverrides(t *testing.T) {
	t.Setenv("FOLDY_BASE_URL", "http://nim:8000")
	t.Setenv("FOLDY_TIMEOUT", "600")
	t.Setenv("FOLDY_RETRY_DELAY", "250ms")
	t.Setenv("FOLDY_ARTIFACT_BACKEND", "MinIO")
	t.Setenv("FOLDY_MINIO_USE_SSL", "true")
	t.Setenv("FOLDY_MINIO_ACCESS_KEY", "")
	t.Setenv("MINIO_ROOT_USER", "root")
	t.Setenv("FOLDY_MSA_CACHE_SIZE", "not-a-number")
	cfg := FromEnv()
	assert.Equal(t, "http://nim:8000", cfg.BaseURL)
	assert.Equal(t, 600*time.Second, cfg.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryDelay)
	assert.True(t, cfg.Artifact.Mirrored())
	assert.True(t, cfg.Artifact.UseSSL)
	assert.Equal(t, "root", cfg.Artifact.AccessKey)
	assert.Equal(t, 256, cfg.MSACacheSize)
}
