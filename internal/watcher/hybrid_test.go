package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startWatcher runs w in the background and waits for it to pick a mode.
func startWatcher(t *testing.T, w *HybridWatcher, roots ...string) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Start(ctx, roots...) }()
	require.Eventually(t, func() bool { return w.Mode() != "" }, 2*time.Second, 10*time.Millisecond)
	// Polling takes its baseline after the mode is set.
	time.Sleep(50 * time.Millisecond)
	t.Cleanup(func() {
		cancel()
		_ = w.Stop()
	})
	return cancel
}

// waitFor drains batches until one contains path.
func waitFor(t *testing.T, w *HybridWatcher, path string) FileEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch, ok := <-w.Events():
			require.True(t, ok, "events closed")
			for _, ev := range batch {
				if ev.Path == path {
					return ev
				}
			}
		case <-deadline:
			t.Fatalf("no event for %s", path)
			return FileEvent{}
		}
	}
}

func TestHybridWatcher_Create(t *testing.T) {
	// Given: a watcher on a temp root
	root := t.TempDir()
	w, err := NewHybridWatcher(Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	// When: a file is written
	path := filepath.Join(root, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	// Then: a create event arrives with its root
	ev := waitFor(t, w, path)
	assert.Equal(t, OpCreate, ev.Operation)
	assert.Equal(t, root, ev.Root)
}

func TestHybridWatcher_ConfigChange(t *testing.T) {
	root := t.TempDir()
	w, err := NewHybridWatcher(Options{Debounce: 20 * time.Millisecond})
	require.NoError(t, err)
	startWatcher(t, w, root)

	path := filepath.Join(root, ".docindex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 1\n"), 0o644))

	assert.Equal(t, OpConfigChange, waitFor(t, w, path).Operation)
}

func TestHybridWatcher_PollingFallback(t *testing.T) {
	// Given: a watcher forced into polling mode
	root := t.TempDir()
	w, err := NewHybridWatcher(Options{
		Debounce:     20 * time.Millisecond,
		PollInterval: 30 * time.Millisecond,
		ForcePolling: true,
	})
	require.NoError(t, err)
	startWatcher(t, w, root)
	assert.Equal(t, "polling", w.Mode())

	// When: a file appears
	path := filepath.Join(root, "polled.md")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// Then: polling reports it
	assert.Equal(t, OpCreate, waitFor(t, w, path).Operation)
}

func TestHybridWatcher_Start_Errors(t *testing.T) {
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	assert.Error(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background(), filepath.Join(t.TempDir(), "missing")))
}

func TestHybridWatcher_StopClosesChannels(t *testing.T) {
	w, err := NewHybridWatcher(DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	_, ok := <-w.Events()
	assert.False(t, ok)
	_, ok = <-w.Errors()
	assert.False(t, ok)
}
