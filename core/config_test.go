package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestConfig_Validate_SoftDeadlineExceedsHardDeadline(t *testing.T) {
	c := DefaultConfig()
	c.SoftDeadline = c.HardDeadline + 1
	require.Error(t, c.Validate())
}

func TestConfig_Validate_VertexProjectRequiresLocation(t *testing.T) {
	c := DefaultConfig()
	c.Vertex.Project = "my-project"
	c.Vertex.Location = ""
	require.Error(t, c.Validate())
}

func TestLoadConfig_PartialFileFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "us-central1", cfg.Vertex.Location)
	require.Equal(t, defaultConcurrency, cfg.Concurrency)
}

func TestLoadConfigWithEnvOverrides_AppliesAPIKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: info\n"), 0o644))

	t.Setenv("AI_RANKER_OPENAI_API_KEY", "sk-test-123")
	cfg, err := LoadConfigWithEnvOverrides(path)
	require.NoError(t, err)
	require.Equal(t, "sk-test-123", cfg.OpenAI.APIKey)
}
