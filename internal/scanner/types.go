// Package scanner discovers candidate documents under the configured roots
// and asks the policy oracle about each one.
package scanner

import (
	"sort"
	"strings"
	"time"

	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
)

// ScannedFile is one discovered file together with its policy decision.
type ScannedFile struct {
	Path       string        `json:"path"` // absolute, cleaned
	Size       int64         `json:"size"`
	ModTime    time.Time     `json:"mtime"`
	CTime      time.Time     `json:"ctime"`
	Ext        string        `json:"ext"` // lower-case, with dot
	Owner      string        `json:"owner,omitempty"`
	Drive      string        `json:"drive,omitempty"`
	Allowed    bool          `json:"allowed"`
	DenyReason policy.Reason `json:"deny_reason,omitempty"`
}

// Mtime returns the modification time as fractional Unix seconds.
func (f ScannedFile) Mtime() float64 { return unixSeconds(f.ModTime) }

// Ctime returns the change time as fractional Unix seconds.
func (f ScannedFile) Ctime() float64 { return unixSeconds(f.CTime) }

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Options configures a scan.
type Options struct {
	// Roots are the directories to walk.
	Roots []string

	// Extensions to keep, matched case-insensitively. Nil uses DefaultExtensions.
	Extensions []string

	// SkipDirs are directory names pruned anywhere in the tree. Nil uses DefaultSkipDirs.
	SkipDirs []string

	// AllowedDotDir is the one dot-directory that is walked.
	AllowedDotDir string

	// AllowedHiddenFile is the one dot-file that is kept.
	AllowedHiddenFile string

	// Oracle decides allow/deny per file. Nil allows everything.
	Oracle policy.Oracle

	// Agent is passed to the oracle.
	Agent string

	// Workers bounds concurrent stat+policy calls (0 = NumCPU).
	Workers int
}

// Result is the outcome of one scan pass.
type Result struct {
	// Files holds allowed and denied files, sorted by path.
	Files []ScannedFile

	// StatFailed counts files dropped because they could not be stat'ed.
	StatFailed int
}

// Allowed returns only files the oracle allowed. This is the sole input the
// pipeline hands to extraction.
func (r *Result) Allowed() []ScannedFile {
	out := make([]ScannedFile, 0, len(r.Files))
	for _, f := range r.Files {
		if f.Allowed {
			out = append(out, f)
		}
	}
	return out
}

// Denied returns files the oracle denied, for auditing.
func (r *Result) Denied() []ScannedFile {
	var out []ScannedFile
	for _, f := range r.Files {
		if !f.Allowed {
			out = append(out, f)
		}
	}
	return out
}

// DeniedByReason counts denied files per reason.
func (r *Result) DeniedByReason() map[policy.Reason]int {
	counts := make(map[policy.Reason]int)
	for _, f := range r.Files {
		if !f.Allowed {
			counts[f.DenyReason]++
		}
	}
	return counts
}

// DefaultExtensions covers common office, document and text formats.
var DefaultExtensions = []string{
	".txt", ".md", ".markdown", ".rst", ".csv", ".tsv", ".json", ".html", ".htm", ".xml",
	".pdf", ".doc", ".docx", ".ppt", ".pptx", ".xls", ".xlsx", ".hwp", ".hwpx", ".odt", ".rtf",
}

// DefaultSkipDirs are pruned wherever they appear.
var DefaultSkipDirs = []string{
	"__pycache__", ".git", "node_modules", "build", "dist",
	"venv", ".venv", "env", "target", ".tox", ".mypy_cache",
}

func toSet(items []string, lower bool) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if lower {
			it = strings.ToLower(it)
		}
		if it != "" {
			set[it] = struct{}{}
		}
	}
	return set
}

func sortFiles(files []ScannedFile) {
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
}
