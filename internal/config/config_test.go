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
	assert.Equal(t, "anthropic", cfg.Gateway.Provider)
	assert.Equal(t, 4096, cfg.Gateway.MaxTokens)
	assert.Equal(t, 2*time.Minute, cfg.Gateway.Timeout)
	assert.Equal(t, int64(100_000), cfg.Quota.FreeTierTokens)
	assert.Equal(t, int64(500_000), cfg.Quota.FreeMonthlyLimit)
	assert.Equal(t, ".workforce/ledger.db", cfg.Ledger.Path)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "workforce.yaml")
	content := `
gateway:
  provider: OpenAI
  model: gpt-4o-mini
  apiKeys:
    openai: sk-from-file
quota:
  freeMonthlyLimit: 42
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("WORKFORCE_LEDGER_PATH", filepath.Join(dir, "l.db"))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Gateway.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Gateway.Model)
	assert.Equal(t, int64(42), cfg.Quota.FreeMonthlyLimit)
	assert.Equal(t, filepath.Join(dir, "l.db"), cfg.Ledger.Path)
	assert.Equal(t, "sk-from-file", cfg.APIKey("openai"))
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workforce.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway:\n  provider: mistral\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAPIKeyFallsBackToEnv(t *testing.T) {
	cfg := &Config{}
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")
	t.Setenv("PERPLEXITY_API_KEY", "pplx-key")

	assert.Equal(t, "g-key", cfg.APIKey("google"))
	assert.Equal(t, "pplx-key", cfg.APIKey("perplexity"))
	assert.Empty(t, cfg.APIKey("ollama"))
}
