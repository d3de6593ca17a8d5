package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, *NewConfig(), *cfg)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com,https://admin.example.com")
	t.Setenv("PING_INTERVAL", "5s")
	t.Setenv("BROADCAST_SCOPE", "global")
	t.Setenv("RETENTION_PER_ROOM", "10")
	t.Setenv("RATE_LIMIT_BURST", "9")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("WEBHOOK_AUTHOR", "CI")
	t.Setenv("APP_ENV", "production")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com", "https://admin.example.com"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, ScopeGlobal, cfg.BroadcastScope)
	assert.Equal(t, 10, cfg.RetentionPerRoom)
	assert.Equal(t, RateLimitConfig{Burst: 9, RefillInterval: 2 * time.Second}, cfg.RateLimit)
	assert.Equal(t, "CI", cfg.WebhookAuthor)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Setenv("PING_INTERVAL", "often")

	_, err := LoadConfig()
	assert.Error(t, err)
}

// TestSanitizeConfig verifies that unusable values fall back to defaults.
func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{
		PingInterval:     -time.Second,
		SendBuffer:       0,
		WriteTimeout:     0,
		BroadcastScope:   "everyone",
		RetentionPerRoom: -1,
		MaxMessageSize:   0,
		RateLimit:        RateLimitConfig{Burst: -3},
	})

	def := defaultConfig()
	assert.Equal(t, def.Port, cfg.Port)
	assert.Equal(t, def.PingInterval, cfg.PingInterval)
	assert.Equal(t, def.SendBuffer, cfg.SendBuffer)
	assert.Equal(t, def.WriteTimeout, cfg.WriteTimeout)
	assert.Equal(t, ScopeRoom, cfg.BroadcastScope)
	assert.Equal(t, def.RetentionPerRoom, cfg.RetentionPerRoom)
	assert.Equal(t, def.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, def.RateLimit, cfg.RateLimit)
	assert.Equal(t, def.WebhookAuthor, cfg.WebhookAuthor)
	assert.Equal(t, def.LogLevel, cfg.LogLevel)
	assert.Equal(t, def.Env, cfg.Env)
}

func TestSanitizeConfig_CopiesOrigins(t *testing.T) {
	origins := []string{"http://a.example"}
	cfg := sanitizeConfig(Config{AllowedOrigins: origins})

	cfg.AllowedOrigins[0] = "http://b.example"
	assert.Equal(t, "http://a.example", origins[0])
}
