package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotEmpty(t, cfg.Models.Candidates)
	assert.Equal(t, 3, cfg.Models.MaxRetries)
	assert.Equal(t, 12, cfg.Agent.MaxIterations)
	assert.Equal(t, time.Hour, cfg.Agent.StatusRetention)
	assert.Equal(t, 90*time.Second, cfg.Retrieval.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, Default().Models.Candidates, cfg.Models.Candidates)
	assert.Equal(t, DefaultSystemInstruction, cfg.Agent.SystemInstruction)
}

func TestLoad_EnvWithoutFile(t *testing.T) {
	t.Setenv("ZONEWISE_SERVER_PORT", "9090")
	t.Setenv("ZONEWISE_AGENT_MAX_ITERATIONS", "3")
	t.Setenv("ZONEWISE_RETRIEVAL_STORE_NAME", "pilot-documents")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Agent.MaxIterations)
	assert.Equal(t, "pilot-documents", cfg.Retrieval.StoreName)
	// Untouched keys keep defaults
	assert.Equal(t, Default().Models.Candidates, cfg.Models.Candidates)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0644))
	t.Setenv("ZONEWISE_SERVER_PORT", "9191")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
models:
  candidates: ["gemini-2.5-pro"]
  max_retries: 5
agent:
  max_iterations: 8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"gemini-2.5-pro"}, cfg.Models.Candidates)
	assert.Equal(t, 5, cfg.Models.MaxRetries)
	assert.Equal(t, 8, cfg.Agent.MaxIterations)
	// Unspecified sections keep defaults
	assert.Equal(t, 90*time.Second, cfg.Retrieval.Timeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no candidates", func(c *Config) { c.Models.Candidates = nil }},
		{"zero retries", func(c *Config) { c.Models.MaxRetries = 0 }},
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }},
		{"empty instruction", func(c *Config) { c.Agent.SystemInstruction = "" }},
		{"empty retrieval model", func(c *Config) { c.Retrieval.Model = "" }},
		{"zero timeout", func(c *Config) { c.Retrieval.Timeout = 0 }},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
