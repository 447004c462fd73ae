package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, ".", cfg.Indexer.OutputDir)
	require.Equal(t, int64(100_000_000), cfg.Indexer.LargeThreshold)
	require.Equal(t, 8, cfg.Indexer.FanIn)
	require.Equal(t, 1000, cfg.Indexer.QueueCapacity)
	require.Equal(t, 999, cfg.Indexer.TempMaxAttempts)
	require.False(t, cfg.Kafka.Enabled)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "indexer.yaml")
	data := []byte(`
indexer:
  outputDir: /var/lib/index
  fanIn: 4
  singleThreaded: true
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("SP_INDEXER_QUEUE_CAPACITY", "16")
	t.Setenv("SP_LOGGING_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/index", cfg.Indexer.OutputDir)
	require.Equal(t, 4, cfg.Indexer.FanIn)
	require.True(t, cfg.Indexer.SingleThreaded)
	require.Equal(t, 16, cfg.Indexer.QueueCapacity)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "json", cfg.Logging.Format)
	// untouched keys keep their defaults
	require.Equal(t, 100, cfg.Indexer.ProgressEvery)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fan-in too small", func(c *Config) { c.Indexer.FanIn = 1 }},
		{"zero queue", func(c *Config) { c.Indexer.QueueCapacity = 0 }},
		{"negative threshold", func(c *Config) { c.Indexer.LargeThreshold = -1 }},
		{"no temp attempts", func(c *Config) { c.Indexer.TempMaxAttempts = 0 }},
		{"empty output dir", func(c *Config) { c.Indexer.OutputDir = "" }},
		{"kafka without brokers", func(c *Config) {
			c.Kafka.Enabled = true
			c.Kafka.Brokers = nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
	require.NoError(t, Default().Validate())
}
