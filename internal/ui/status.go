package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// StatusInfo describes the persisted index and its bookkeeping.
type StatusInfo struct {
	Roots   []string `json:"roots"`
	DataDir string   `json:"data_dir"`

	Indexed   bool   `json:"indexed"`
	Rows      int    `json:"rows"`
	Documents int    `json:"documents"`
	Dim       int    `json:"dim"`
	DType     string `json:"dtype"`
	Model     string `json:"model"`
	Orphans   int    `json:"orphans"`
	IndexSize int64  `json:"index_size"`
	Issues    int    `json:"issues"`

	TrackedFiles int       `json:"tracked_files"`
	LastScan     time.Time `json:"last_scan"`

	CacheBackend string `json:"cache_backend"`
	CacheEntries int    `json:"cache_entries"`

	Queries           int64 `json:"queries"`
	ZeroResultQueries int64 `json:"zero_result_queries"`

	Embedder       string `json:"embedder"`
	EmbedderStatus string `json:"embedder_status"` // "ready", "offline", "error"
	Reranker       string `json:"reranker,omitempty"`
}

// StatusRenderer prints StatusInfo.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info StatusInfo) error {
	w := r.out
	_, _ = fmt.Fprintf(w, "%s\n\n", r.styles.Header.Render("Index: "+strings.Join(info.Roots, ", ")))
	_, _ = fmt.Fprintf(w, "  Data dir:   %s\n", info.DataDir)

	if !info.Indexed {
		_, _ = fmt.Fprintf(w, "  Index:      %s\n\n", r.styles.Warning.Render("not built (run 'docindex index')"))
	} else {
		_, _ = fmt.Fprintf(w, "  Documents:  %d\n", info.Documents)
		_, _ = fmt.Fprintf(w, "  Chunks:     %d\n", info.Rows)
		_, _ = fmt.Fprintf(w, "  Vectors:    %d dims, %s, %s\n", info.Dim, info.DType, info.Model)
		if info.Orphans > 0 {
			_, _ = fmt.Fprintf(w, "  Orphans:    %d graph nodes pending rebuild\n", info.Orphans)
		}
		if info.Issues > 0 {
			_, _ = fmt.Fprintf(w, "  Issues:     %s\n", r.styles.Warning.Render(fmt.Sprintf("%d cache/index mismatches (run 'docindex index' to repair)", info.Issues)))
		}
		_, _ = fmt.Fprintf(w, "  Size:       %s\n\n", FormatBytes(info.IndexSize))
	}

	_, _ = fmt.Fprintf(w, "  Scan state: %d files", info.TrackedFiles)
	if !info.LastScan.IsZero() {
		_, _ = fmt.Fprintf(w, ", newest mtime %s", formatTime(info.LastScan))
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "  Cache:      %s, %d entries\n", info.CacheBackend, info.CacheEntries)
	if info.Queries > 0 {
		_, _ = fmt.Fprintf(w, "  Queries:    %d, %d with no results\n", info.Queries, info.ZeroResultQueries)
	}
	_, _ = fmt.Fprintf(w, "  Embedder:   %s (%s)\n", info.Embedder, r.renderStatus(info.EmbedderStatus))
	if info.Reranker != "" {
		_, _ = fmt.Fprintf(w, "  Reranker:   %s\n", info.Reranker)
	}
	return nil
}

// RenderJSON writes info as indented JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func (r *StatusRenderer) renderStatus(status string) string {
	switch status {
	case "ready":
		return r.styles.Success.Render(status)
	case "offline":
		return r.styles.Warning.Render(status)
	case "error":
		return r.styles.Error.Render(status)
	default:
		return status
	}
}

// RenderDenied prints a per-reason count table, sorted by reason.
func (r *StatusRenderer) RenderDenied(denied map[string]int) {
	if len(denied) == 0 {
		return
	}
	reasons := make([]string, 0, len(denied))
	for reason := range denied {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	_, _ = fmt.Fprintln(r.out, "  Denied by policy:")
	for _, reason := range reasons {
		_, _ = fmt.Fprintf(r.out, "    %-18s %d\n", reason, denied[reason])
	}
}

func formatTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats a byte count for humans.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
