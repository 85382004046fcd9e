package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seedYAML = `
work_packages:
  - id: "9"
    fields:
      subject: "Parent"
      status: "new"
      percentage_done: 0
  - id: "5"
    parent_id: "9"
    fields:
      subject: "E1"
      status: "new"
      percentage_done: 0
`

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seededDB returns a database path seeded with seedYAML.
func seededDB(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	require.NoError(t, os.WriteFile(seedPath, []byte(seedYAML), 0644))

	db := filepath.Join(dir, "wpedit.db")
	_, err := execute(t, "--db", db, "seed", seedPath)
	require.NoError(t, err)
	return db
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "wpedit", cmd.Use)
	assert.Contains(t, cmd.Long, "WPEDIT_DB")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"seed", "show", "edit", "scenario"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "show", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestRootCommand_DatabaseFromEnvironment(t *testing.T) {
	db := seededDB(t)
	t.Setenv("WPEDIT_DB", db)

	out, err := execute(t, "show", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "#9 Parent")
}

func TestRootCommand_InvalidEnvironment(t *testing.T) {
	t.Setenv("WPEDIT_LOG_LEVEL", "loud")

	_, err := execute(t, "--db", filepath.Join(t.TempDir(), "x.db"), "show", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
