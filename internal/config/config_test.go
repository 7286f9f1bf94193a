package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)
	t.Setenv("DATABASE_URL", "postgres://localhost/healthwire_test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Pipeline.RelevanceThreshold)
	assert.Equal(t, 10, cfg.Feeds.MaxItemsPerSource)
	assert.Equal(t, 2000, cfg.Feeds.MaxContentChars)
	assert.Equal(t, "postgres://localhost/healthwire_test", cfg.Database.ConnectionString)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_FromFile(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "healthwire.yaml")
	content := `
pipeline:
  relevance_threshold: 7
  viewpoint_batch_limit: 3
feeds:
  max_items_per_source: 5
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Pipeline.RelevanceThreshold)
	assert.Equal(t, 3, cfg.Pipeline.ViewpointBatchLimit)
	assert.Equal(t, 5, cfg.Feeds.MaxItemsPerSource)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, path, cfg.App.ConfigFile)
}

func TestLoad_InvalidThreshold(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  relevance_threshold: 11\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relevance_threshold")
}

func TestLoad_InvalidDuration(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("feeds:\n  timeout: soon\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feeds.timeout")
}

func TestDuration(t *testing.T) {
	assert.Equal(t, time.Minute, Duration("", time.Minute))
	assert.Equal(t, 90*time.Second, Duration("90s", time.Minute))
	assert.Equal(t, time.Minute, Duration("nope", time.Minute))
}
