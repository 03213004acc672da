package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event. Used for pipes, CI and --no-tui.
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}
	switch {
	case event.Total > 0:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	case msg != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d chunks embedded in %s\n",
		stats.Files, stats.Chunks, stats.Duration.Round(100*time.Millisecond))
	_, _ = fmt.Fprintf(r.out, "  unchanged: %d  deleted: %d  denied: %d\n",
		stats.Cached, stats.Deleted, stats.Denied)
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, "  %d errors, %d warnings\n", stats.Errors, stats.Warnings)
	}

	if stats.Stages.Scan > 0 || stats.Stages.Embed > 0 {
		round := func(d time.Duration) time.Duration { return d.Round(time.Millisecond) }
		_, _ = fmt.Fprintln(r.out, "Stages:")
		_, _ = fmt.Fprintf(r.out, "  Scan:    %s\n", round(stats.Stages.Scan))
		_, _ = fmt.Fprintf(r.out, "  Extract: %s\n", round(stats.Stages.Extract))
		if stats.Stages.Embed > 0 && stats.Chunks > 0 {
			_, _ = fmt.Fprintf(r.out, "  Embed:   %s (%.1f chunks/sec)\n",
				round(stats.Stages.Embed), float64(stats.Chunks)/stats.Stages.Embed.Seconds())
		} else {
			_, _ = fmt.Fprintf(r.out, "  Embed:   %s\n", round(stats.Stages.Embed))
		}
		_, _ = fmt.Fprintf(r.out, "  Index:   %s\n", round(stats.Stages.Index))
	}

	if stats.Embedder.Backend != "" {
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%s, %d dims, %s)\n",
			stats.Embedder.Backend, stats.Embedder.Model, stats.Embedder.Dimensions, stats.Embedder.DType)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }

var _ Renderer = (*PlainRenderer)(nil)
