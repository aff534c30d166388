package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "commerce", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "revision", cfg.EventStore.VersionPolicy)
	assert.Equal(t, "none", cfg.MessageBus.Type)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.Outbox.ClaimLease)
	assert.Equal(t, 8, cfg.Geocoder.Concurrency)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
storage:
  driver: postgres
postgres:
  dsn: postgres://localhost/commerce
event_store:
  version_policy: constant
outbox:
  batch_size: 5
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))
	t.Setenv("COMMERCE_OUTBOX_BATCH_SIZE", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.Equal(t, "constant", cfg.EventStore.VersionPolicy)
	assert.Equal(t, 7, cfg.Outbox.BatchSize)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown storage", func(c *Config) { c.Storage.Driver = "sqlite" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }},
		{"mongo without uri", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"nats without url", func(c *Config) { c.MessageBus.Type = "nats" }},
		{"kafka without brokers", func(c *Config) { c.MessageBus.Type = "kafka" }},
		{"cascade without bus", func(c *Config) { c.MessageBus.CascadeViaBus = true }},
		{"bad version policy", func(c *Config) { c.EventStore.VersionPolicy = "random" }},
		{"no workers", func(c *Config) { c.Events.Workers = 0 }},
		{"bad tracing exporter", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "jaeger" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
