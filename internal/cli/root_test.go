package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "workforce.yaml")
	cfg := fmt.Sprintf("gateway:\n  provider: ollama\nledger:\n  path: %s\nlog:\n  file: %s\n",
		filepath.Join(dir, "ledger.db"), filepath.Join(dir, "workforce.log"))
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return path
}

func TestExecuteClosesAppWhenCommandFails(t *testing.T) {
	path := writeConfig(t)
	t.Cleanup(func() { planTier = "" })

	err := execute(context.Background(), []string{"balance", "--config", path, "--user", "u1", "--plan", "platinum"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tier")
	assert.Nil(t, app, "app must be closed after a failed command")
}

func TestExecuteClosesAppOnSuccess(t *testing.T) {
	path := writeConfig(t)

	require.NoError(t, execute(context.Background(), []string{"employees", "--config", path}))
	assert.Nil(t, app)
}
