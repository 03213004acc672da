package ui

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Renderer selection
// ============================================================================

func TestNewRenderer_NonTTYIsPlain(t *testing.T) {
	// Given: a buffer output
	buf := &bytes.Buffer{}

	// When: I create a renderer
	r := NewRenderer(NewConfig(buf))

	// Then: the plain renderer is used
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestNewRenderer_ForcePlain(t *testing.T) {
	r := NewRenderer(NewConfig(&bytes.Buffer{}, WithForcePlain(true), WithNoColor(true), WithTitle("/docs")))
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestIsTTY_NonFile(t *testing.T) {
	assert.False(t, IsTTY(&bytes.Buffer{}))
	assert.False(t, IsTTY(nil))
}

func TestNewTUIRenderer_RejectsNonTTY(t *testing.T) {
	r, err := NewTUIRenderer(NewConfig(&bytes.Buffer{}))
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestStage_Names(t *testing.T) {
	assert.Equal(t, "Scanning", StageScanning.String())
	assert.Equal(t, "Extracting", StageExtracting.String())
	assert.Equal(t, "EXTRACT", StageExtracting.Icon())
	assert.Equal(t, "DONE", StageComplete.Icon())
	assert.Equal(t, "Unknown", Stage(99).String())
}

// ============================================================================
// Plain renderer
// ============================================================================

func TestPlainRenderer_UpdateProgress(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: progress is reported with and without totals
	r.UpdateProgress(ProgressEvent{Stage: StageExtracting, Current: 3, Total: 10, CurrentFile: "/docs/a.md"})
	r.UpdateProgress(ProgressEvent{Stage: StageScanning, Message: "scanning /docs"})
	r.UpdateProgress(ProgressEvent{Stage: StageIndexing})

	// Then: one line per informative event, no ANSI codes
	assert.Equal(t, "[EXTRACT] 3/10 /docs/a.md\n[SCAN] scanning /docs\n", buf.String())
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	r.AddError(ErrorEvent{File: "/docs/a.pdf", Err: errors.New("unsupported"), IsWarn: true})
	r.AddError(ErrorEvent{Err: errors.New("disk full")})

	assert.Equal(t, "WARN: /docs/a.pdf: unsupported\nERROR: disk full\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a finished run with stage timings
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: completion is reported
	r.Complete(CompletionStats{
		Files: 2, Chunks: 8, Cached: 5, Deleted: 1, Denied: 3,
		Duration: 1500 * time.Millisecond, Warnings: 1,
		Stages:   StageTimings{Scan: time.Millisecond, Embed: 2 * time.Second},
		Embedder: EmbedderInfo{Backend: "hash", Model: "hash-256", Dimensions: 256, DType: "fp32"},
	})

	// Then: the summary carries counts, stages and backend
	out := buf.String()
	assert.Contains(t, out, "Complete: 2 files, 8 chunks embedded in 1.5s")
	assert.Contains(t, out, "unchanged: 5  deleted: 1  denied: 3")
	assert.Contains(t, out, "0 errors, 1 warnings")
	assert.Contains(t, out, "Embed:   2s (4.0 chunks/sec)")
	assert.Contains(t, out, "Embedder: hash (hash-256, 256 dims, fp32)")
}

func TestNopRenderer(t *testing.T) {
	var r Renderer = NopRenderer{}
	require.NoError(t, r.Start(t.Context()))
	r.UpdateProgress(ProgressEvent{})
	r.AddError(ErrorEvent{})
	r.Complete(CompletionStats{})
	require.NoError(t, r.Stop())
}

// ============================================================================
// Progress tracker and TUI model
// ============================================================================

func TestProgressTracker_Stats(t *testing.T) {
	// Given: a tracker halfway through embedding
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 100)
	p.Update(50, 0, "/docs/a.md")
	p.AddError(ErrorEvent{IsWarn: true})
	p.AddError(ErrorEvent{})

	// When: I take a snapshot
	s := p.Stats()

	// Then: progress and counts are reported
	assert.Equal(t, StageEmbedding, s.Stage)
	assert.InDelta(t, 0.5, s.Progress, 1e-9)
	assert.Equal(t, "/docs/a.md", s.CurrentFile)
	assert.Equal(t, 1, s.WarnCount)
	assert.Equal(t, 1, s.ErrorCount)
}

func TestProgressTracker_ProgressCapped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageIndexing, 10)
	p.Update(20, 0, "")
	assert.InDelta(t, 1.0, p.Stats().Progress, 1e-9)
	assert.Zero(t, p.Stats().ETA)
}

func TestIndexingModel_View(t *testing.T) {
	// Given: a model in the extract stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageExtracting, 4)
	tracker.Update(1, 0, "/docs/notes.md")
	m := newIndexingModel(tracker, "/docs")
	m.styles = NoColorStyles()

	// When: it renders
	view := m.View()

	// Then: stages, counts and the current file are visible
	for _, want := range []string{"docindex • /docs", "Scan", "Extract", "Embed", "Index", "1 / 4", "/docs/notes.md"} {
		assert.Contains(t, view, want)
	}
}

func TestIndexingModel_Complete(t *testing.T) {
	m := newIndexingModel(NewProgressTracker(), "")
	m.styles = NoColorStyles()

	_, cmd := m.Update(completeMsg(CompletionStats{Files: 3, Chunks: 9, Denied: 2}))

	assert.NotNil(t, cmd)
	view := m.View()
	assert.Contains(t, view, "Indexing complete")
	assert.Contains(t, view, "Denied:         2")
}

func TestTruncateFilePath(t *testing.T) {
	assert.Equal(t, "/a/b.md", truncateFilePath("/a/b.md", 20))
	assert.Equal(t, "...ng/file.md", truncateFilePath("/a/very/long/file.md", 13))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "5s", formatDuration(5*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 1m", formatDuration(61*time.Minute))
}
