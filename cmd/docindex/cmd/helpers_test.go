package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupCorpus creates an isolated corpus directory, makes it the working
// directory and points the user config and log directory somewhere empty.
func setupCorpus(t *testing.T, files map[string]string) string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("NO_COLOR", "1")

	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	t.Chdir(dir)
	return dir
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// sampleCorpus scans .exe files so the policy has something to deny.
var sampleCorpus = map[string]string{
	".docindex.yaml": "scanner:\n  extensions: [.md, .txt, .exe]\n",
	"atlas.md":       "# Project Atlas\n\nThe Atlas budget for 2024 covers hardware and travel.\n",
	"notes.txt":      "Weekly notes about the garden, tomatoes and watering schedules.\n",
	"tool.exe":       "MZ binary",
}
