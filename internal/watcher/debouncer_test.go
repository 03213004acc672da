package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nextBatch(t *testing.T, ch <-chan []FileEvent, wait time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch, ok := <-ch:
		require.True(t, ok, "channel closed")
		return batch
	case <-time.After(wait):
		t.Fatal("timeout waiting for batch")
		return nil
	}
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"create then modify stays create", []Operation{OpCreate, OpModify}, OpCreate},
		{"modify then delete is delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"delete then create is modify", []Operation{OpDelete, OpCreate}, OpModify},
		{"rename then create is modify", []Operation{OpRename, OpCreate}, OpModify},
		{"repeated modify is one modify", []Operation{OpModify, OpModify, OpModify}, OpModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a debouncer with a short window
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			// When: a burst of events hits one path
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "/docs/a.md", Operation: op, Timestamp: time.Now()})
			}

			// Then: one merged event comes out
			batch := nextBatch(t, d.Output(), time.Second)
			require.Len(t, batch, 1)
			assert.Equal(t, tt.want, batch[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDelete_Cancels(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: a file is created and removed within the window
	d.Add(FileEvent{Path: "/docs/tmp.md", Operation: OpCreate})
	d.Add(FileEvent{Path: "/docs/tmp.md", Operation: OpDelete})

	// Then: nothing is pending and nothing is emitted
	assert.Zero(t, d.Pending())
	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	// Given: events for several files in arbitrary order
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()
	for _, p := range []string{"/docs/c.md", "/docs/a.md", "/docs/b.md"} {
		d.Add(FileEvent{Path: p, Operation: OpModify})
	}

	// When: the window passes
	batch := nextBatch(t, d.Output(), time.Second)

	// Then: the batch is sorted
	require.Len(t, batch, 3)
	assert.Equal(t, "/docs/a.md", batch[0].Path)
	assert.Equal(t, "/docs/b.md", batch[1].Path)
	assert.Equal(t, "/docs/c.md", batch[2].Path)
}

func TestDebouncer_WindowRestartsOnActivity(t *testing.T) {
	// Given: a 60ms window
	d := NewDebouncer(60 * time.Millisecond)
	defer d.Stop()

	// When: events keep arriving inside the window
	for i := 0; i < 4; i++ {
		d.Add(FileEvent{Path: "/docs/a.md", Operation: OpModify})
		time.Sleep(20 * time.Millisecond)
	}

	// Then: still pending, then exactly one batch
	assert.Equal(t, 1, d.Pending())
	batch := nextBatch(t, d.Output(), time.Second)
	assert.Len(t, batch, 1)
}

func TestDebouncer_Stop(t *testing.T) {
	// Given: a debouncer with a pending event
	d := NewDebouncer(time.Hour)
	d.Add(FileEvent{Path: "/docs/a.md", Operation: OpCreate})

	// When: stopped twice
	d.Stop()
	d.Stop()

	// Then: output is closed and later adds are ignored
	_, ok := <-d.Output()
	assert.False(t, ok)
	d.Add(FileEvent{Path: "/docs/b.md", Operation: OpCreate})
}
