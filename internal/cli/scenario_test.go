package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioYAML = `
name: quick_edit
description: "Edit and save one work package"
work_packages:
  - id: "1"
    fields: { subject: "A", status: "new" }
steps:
  - op: require
    id: "1"
  - op: set
    id: "1"
    field: subject
    value: "B"
  - op: save
    id: "1"
    expect:
      lock_version: 1
`

func TestScenario_Testdata(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata")
	out, err := execute(t, "--db", filepath.Join(t.TempDir(), "x.db"), "scenario",
		filepath.Join(dir, "scenarios"), "--golden-dir", filepath.Join(dir, "golden"))
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ edit_save_propagates")
	assert.Contains(t, out, "✓ stop_and_reset")
	assert.Contains(t, out, "2 passed, 0 failed, 2 total")
}

func TestScenario_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick_edit.yaml"), []byte(scenarioYAML), 0644))
	db := filepath.Join(t.TempDir(), "x.db")

	out, err := execute(t, "--db", db, "scenario", dir, "--update")
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ quick_edit (golden updated)")

	goldenPath := filepath.Join(dir, "golden", "quick_edit.golden")
	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"quick_edit"`)

	out, err = execute(t, "--db", db, "scenario", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}"), 0644))
	out, err = execute(t, "--db", db, "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestScenario_Filter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quick_edit.yaml"), []byte(scenarioYAML), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := execute(t, "--db", filepath.Join(t.TempDir(), "x.db"), "scenario", dir, "--filter", "quick_*")
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	out, err = execute(t, "--db", filepath.Join(t.TempDir(), "x.db"), "scenario", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
}

func TestScenario_MissingDir(t *testing.T) {
	_, err := execute(t, "--db", filepath.Join(t.TempDir(), "x.db"), "scenario", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestScenario_Empty(t *testing.T) {
	out, err := execute(t, "--db", filepath.Join(t.TempDir(), "x.db"), "scenario", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}
