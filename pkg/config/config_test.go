package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("OAUTH_HTTP_TIMEOUT", "")

	cfg := Load()
	assert.Equal(t, "file", cfg.StorageBackend)
	assert.Equal(t, 15*time.Second, cfg.OAuthHTTPTimeout)
	assert.False(t, cfg.GoogleConfigured())
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.GoogleTokenURL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GOOGLE_CLIENT_ID", "client-123")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("OAUTH_HTTP_TIMEOUT", "3s")
	t.Setenv("DEMO_LOGIN", "false")
	t.Setenv("SEED_SAMPLE", "not-a-bool")

	cfg := Load()
	assert.True(t, cfg.GoogleConfigured())
	assert.Equal(t, "redis", cfg.StorageBackend)
	assert.Equal(t, 4, cfg.RedisDB)
	assert.Equal(t, 3*time.Second, cfg.OAuthHTTPTimeout)
	assert.False(t, cfg.DemoLogin)
	assert.True(t, cfg.SeedSample, "unparseable bools fall back to the default")
}
