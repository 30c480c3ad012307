package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: toggle
description: a created task can be completed
clients:
  - name: alice
flow:
  - client: alice
    send: create-task
    as: t
    payload: {title: Water plants}
  - client: alice
    send: toggle-completion
    payload: {id: $t}
    expect: {type: task-updated, record: {completed: true}}
assertions:
  - type: view
    client: alice
    completed: [$t]
`

const failingScenario = `name: wrong
description: expects a reply the engine never sends
clients:
  - name: alice
flow:
  - client: alice
    send: delete-task
    payload: {id: nope}
    expect: {type: task-deleted}
`

func writeScenario(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyScenariosDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "toggle", passingScenario)

	out, err := execute(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ toggle")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "toggle", passingScenario)
	writeScenario(t, dir, "wrong", failingScenario)

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "expected reply task-deleted, got operation-failed")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "toggle", passingScenario)
	writeScenario(t, dir, "wrong", failingScenario)

	out, err := execute(t, "test", dir, "--filter", "tog*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenUpdateThenMatch(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "toggle", passingScenario)

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "toggle.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name": "toggle"`)

	_, err = execute(t, "test", dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "toggle.golden"), []byte("{}\n"), 0644))
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandJSON(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong", failingScenario)

	out, err := execute(t, "test", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "wrong", resp.Data.Scenarios[0].Name)
}

func TestTestCommandBadScenarioFile(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "broken", "name: broken\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
}
