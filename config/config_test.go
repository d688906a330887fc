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

	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.PublishTimeout)
	assert.Equal(t, 10*time.Second, cfg.GuardrailTimeout)
	assert.Equal(t, 30*time.Second, cfg.ActionTimeout)
	assert.Equal(t, 10, cfg.MaxModelCalls)
	assert.Equal(t, "memory", cfg.StateBackend)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("RUNLOOP_BUFFER_SIZE", "64")
	t.Setenv("RUNLOOP_PUBLISH_TIMEOUT", "250ms")
	t.Setenv("RUNLOOP_STATE_BACKEND", "sqlite")
	t.Setenv("RUNLOOP_STATE_PATH", "/tmp/runs.db")
	t.Setenv("RUNLOOP_LOG_FORMAT", "json")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.BufferSize)
	assert.Equal(t, 250*time.Millisecond, cfg.PublishTimeout)
	assert.Equal(t, "sqlite", cfg.StateBackend)
	assert.Equal(t, "/tmp/runs.db", cfg.StatePath)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("RUNLOOP_STATE_BACKEND", "etcd")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.BufferSize = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.LogFormat = "yaml"
	assert.Error(t, cfg.Validate())
}
