package watcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
)

// Operation is the kind of change a FileEvent reports.
type Operation int

const (
	// OpCreate is a new file or directory.
	OpCreate Operation = iota
	// OpModify is a content or metadata change.
	OpModify
	// OpDelete is a removal.
	OpDelete
	// OpRename is a file moved away from Path. fsnotify reports the new
	// name as a separate create.
	OpRename
	// OpConfigChange is a write to a project config file.
	OpConfigChange
)

// String returns the upper-case operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one observed change. Path is absolute.
type FileEvent struct {
	Path      string
	Root      string
	Operation Operation
	IsDir     bool
	Timestamp time.Time
}

// Options configures a HybridWatcher.
type Options struct {
	// Debounce is the quiet period before a batch is emitted. Default 500ms.
	Debounce time.Duration

	// PollInterval is the rescan interval when fsnotify is unavailable. Default 5s.
	PollInterval time.Duration

	// EventBufferSize bounds queued batches. Default 64.
	EventBufferSize int

	// SkipDirs are directory names never watched, at any depth.
	SkipDirs []string

	// AllowedDotDir is the one dot-directory that is watched.
	AllowedDotDir string

	// IgnoreDirs are absolute directories never watched, such as the data dir.
	IgnoreDirs []string

	// IgnorePatterns are gitignore-style patterns matched against paths
	// relative to their root.
	IgnorePatterns []string

	// ConfigNames are file base names reported as OpConfigChange.
	ConfigNames []string

	// ForcePolling skips fsnotify.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		Debounce:        500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 64,
		ConfigNames:     []string{".docindex.yaml", ".docindex.yml", ".docindex.toml"},
	}
}

// WithDefaults fills zero values from DefaultOptions.
func (o Options) WithDefaults() Options {
	d := DefaultOptions()
	if o.Debounce <= 0 {
		o.Debounce = d.Debounce
	}
	if o.PollInterval <= 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	if o.ConfigNames == nil {
		o.ConfigNames = d.ConfigNames
	}
	return o
}

// filter decides which paths reach the debouncer. It mirrors the
// scanner's directory pruning so watch mode never reacts to paths a scan
// would not visit.
type filter struct {
	skipDirs   map[string]struct{}
	dotDir     string
	ignoreDirs []string
	configs    map[string]struct{}
	patterns   *policy.Matcher
}

func newFilter(opts Options) *filter {
	f := &filter{
		skipDirs: make(map[string]struct{}, len(opts.SkipDirs)),
		dotDir:   opts.AllowedDotDir,
		configs:  make(map[string]struct{}, len(opts.ConfigNames)),
		patterns: policy.NewMatcher(false, opts.IgnorePatterns...),
	}
	for _, d := range opts.SkipDirs {
		f.skipDirs[d] = struct{}{}
	}
	for _, d := range opts.IgnoreDirs {
		if abs, err := filepath.Abs(d); err == nil {
			f.ignoreDirs = append(f.ignoreDirs, abs)
		}
	}
	for _, n := range opts.ConfigNames {
		f.configs[n] = struct{}{}
	}
	return f
}

// pruneDir reports whether a directory name is never descended into.
func (f *filter) pruneDir(name string) bool {
	if _, skip := f.skipDirs[name]; skip {
		return true
	}
	return strings.HasPrefix(name, ".") && (f.dotDir == "" || name != f.dotDir)
}

// isConfig reports whether path names a project config file.
func (f *filter) isConfig(path string) bool {
	_, ok := f.configs[filepath.Base(path)]
	return ok
}

// ignored reports whether an event for path under root is dropped.
func (f *filter) ignored(root, path string, isDir bool) bool {
	for _, d := range f.ignoreDirs {
		if path == d || strings.HasPrefix(path, d+string(filepath.Separator)) {
			return true
		}
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return true
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for _, dir := range parts[:len(parts)-1] {
		if f.pruneDir(dir) {
			return true
		}
	}
	if isDir && f.pruneDir(parts[len(parts)-1]) {
		return true
	}
	return f.patterns.Match(rel, isDir)
}
