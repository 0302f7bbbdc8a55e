package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HUB_GRAPH_PASSWORD", "s3cret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Transport.Mode)
	assert.Equal(t, "bolt://localhost:7687", cfg.Graph.URI)
	assert.Equal(t, "neo4j", cfg.Graph.Username)
	assert.Equal(t, 50, cfg.Graph.MaxPoolSize)
	assert.Equal(t, 60000, cfg.Graph.AcquisitionTimeoutMs)
	assert.Equal(t, "localhost", cfg.Model.Host)
	assert.Equal(t, "11434", cfg.Model.Port)
	assert.Equal(t, 3, cfg.Model.Retries)
	assert.Equal(t, 300, cfg.Model.InventoryTTLSec)
	assert.True(t, cfg.Governance.EnforceLogging)
	assert.True(t, cfg.Governance.BlockOnFailure)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HUB_GRAPH_PASSWORD", "s3cret")
	t.Setenv("HUB_GRAPH_URI", "bolt://graph:7687")
	t.Setenv("HUB_GRAPH_POOL_SIZE", "10")
	t.Setenv("HUB_GOVERNANCE_ENFORCE", "false")
	t.Setenv("HUB_LOG_LEVEL", "debug")
	t.Setenv("HUB_MODEL_REASONING", "marco-o1")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph:7687", cfg.Graph.URI)
	assert.Equal(t, 10, cfg.Graph.MaxPoolSize)
	assert.False(t, cfg.Governance.EnforceLogging)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "marco-o1", cfg.Model.ClassDefaults["reasoning"])
}

func TestLoad_File(t *testing.T) {
	t.Setenv("HUB_GRAPH_PASSWORD", "s3cret")

	dir := t.TempDir()
	path := filepath.Join(dir, "hub.toml")
	require.NoError(t, os.WriteFile(path, []byte("[model]\nfallback = \"tiny-llama\"\n\n[notebook]\nvault_root = \"/srv/vault\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "tiny-llama", cfg.Model.Fallback)
	assert.Equal(t, "/srv/vault", cfg.Notebook.VaultRoot)
}

func TestValidate(t *testing.T) {
	t.Run("missing graph password", func(t *testing.T) {
		cfg := defaults()
		err := cfg.Validate()
		assert.ErrorContains(t, err, "graph password")
	})

	t.Run("http requires bearer token", func(t *testing.T) {
		cfg := defaults()
		cfg.Graph.Password = "x"
		cfg.Transport.Mode = "http"
		err := cfg.Validate()
		assert.ErrorContains(t, err, "bearer_token")
	})

	t.Run("unknown transport rejected", func(t *testing.T) {
		cfg := defaults()
		cfg.Graph.Password = "x"
		cfg.Transport.Mode = "carrier-pigeon"
		err := cfg.Validate()
		assert.ErrorContains(t, err, "invalid transport mode")
	})
}
