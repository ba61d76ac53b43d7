package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "127.0.0.1:6379", cfg.RedisURI)
	assert.Equal(t, 10, cfg.Queue.Concurrency)
	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.RetryBaseDelay)
	assert.Equal(t, 5*time.Second, cfg.Queue.EnqueueTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Tokens.RefreshLookahead)
	assert.Equal(t, "@daily", cfg.Tokens.SweepSchedule)
	assert.Equal(t, 2, cfg.Tokens.SweepRatePerSec)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "5")
	t.Setenv("QUEUE_RETRY_BASE_DELAY", "500ms")
	t.Setenv("TOKEN_REFRESH_LOOKAHEAD", "12h")
	t.Setenv("TOKEN_SWEEP_SCHEDULE", "@hourly")

	cfg := LoadConfig()

	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.RetryBaseDelay)
	assert.Equal(t, 12*time.Hour, cfg.Tokens.RefreshLookahead)
	assert.Equal(t, "@hourly", cfg.Tokens.SweepSchedule)
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("QUEUE_MAX_ATTEMPTS", "not-a-number")
	t.Setenv("QUEUE_RETRY_BASE_DELAY", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 3, cfg.Queue.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Queue.RetryBaseDelay)
}
