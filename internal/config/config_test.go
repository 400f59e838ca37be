package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "modulith", cfg.AppName)
	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, 10*time.Second, cfg.LockWaitTimeout)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
	assert.True(t, cfg.Externalize)
	assert.Equal(t, time.Duration(0), cfg.ResubmitInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CONSUMER_WORKERS", "4")
	t.Setenv("LOCK_WAIT_TIMEOUT", "3s")
	t.Setenv("EVENTS_EXTERNALIZE", "false")

	cfg := Load()

	assert.Equal(t, 4, cfg.ConsumerWorkers)
	assert.Equal(t, 3*time.Second, cfg.LockWaitTimeout)
	assert.False(t, cfg.Externalize)
}

func TestConsumerWorkersBounded(t *testing.T) {
	t.Setenv("CONSUMER_WORKERS", "50")
	assert.Equal(t, 5, Load().ConsumerWorkers)

	t.Setenv("CONSUMER_WORKERS", "0")
	assert.Equal(t, 1, Load().ConsumerWorkers)
}

func TestBadValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "not-a-port")
	t.Setenv("LOCK_TTL", "soon")

	cfg := Load()

	assert.Equal(t, 5432, cfg.PostgresPort)
	assert.Equal(t, 5*time.Minute, cfg.LockTTL)
}
