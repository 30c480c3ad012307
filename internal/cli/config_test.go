package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit_WritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quadrant.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ws_path: /ws")
	assert.Contains(t, out, "snapshot_timeout: 5s")
}

func TestConfigInit_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quadrant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9999\"\n"), 0644))

	_, err := execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "config", "init", path, "--force")
	require.NoError(t, err)
}

func TestConfigShow_FlagOverrides(t *testing.T) {
	out, err := execute(t, "config", "show", "--owner", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "id: alice")
}
