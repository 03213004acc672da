package watcher

import (
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollingWatcher_Diff(t *testing.T) {
	// Given: a root with two files and a pruned directory
	root := t.TempDir()
	keep := filepath.Join(root, "keep.md")
	gone := filepath.Join(root, "gone.md")
	require.NoError(t, os.WriteFile(keep, []byte("v1"), 0o644))
	require.NoError(t, os.WriteFile(gone, []byte("x"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	var got []FileEvent
	p := newPollingWatcher([]string{root}, time.Hour, newFilter(DefaultOptions()), func(ev FileEvent) {
		got = append(got, ev)
	})
	p.state = p.walk()

	// When: one file changes, one is removed and one appears
	require.NoError(t, os.WriteFile(keep, []byte("version two"), 0o644))
	require.NoError(t, os.Remove(gone))
	added := filepath.Join(root, "new.md")
	require.NoError(t, os.WriteFile(added, []byte("n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref"), 0o644))
	p.diff(p.walk())

	// Then: exactly those three events are reported
	sort.Slice(got, func(i, j int) bool { return got[i].Path < got[j].Path })
	require.Len(t, got, 3)
	assert.Equal(t, gone, got[0].Path)
	assert.Equal(t, OpDelete, got[0].Operation)
	assert.Equal(t, keep, got[1].Path)
	assert.Equal(t, OpModify, got[1].Operation)
	assert.Equal(t, added, got[2].Path)
	assert.Equal(t, OpCreate, got[2].Operation)
	assert.Equal(t, root, got[2].Root)
}
