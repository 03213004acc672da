package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// HybridWatcher watches a set of roots with fsnotify and falls back to
// polling when fsnotify cannot be initialised. Events are filtered,
// debounced and delivered as batches on Events.
type HybridWatcher struct {
	opts      Options
	filter    *filter
	debouncer *Debouncer

	events chan []FileEvent
	errors chan error
	stopCh chan struct{}

	mu      sync.RWMutex
	roots   []string
	mode    string
	fsw     *fsnotify.Watcher
	stopped bool

	droppedBatches atomic.Uint64
}

// NewHybridWatcher creates a watcher. Nothing is watched until Start.
func NewHybridWatcher(opts Options) (*HybridWatcher, error) {
	opts = opts.WithDefaults()
	return &HybridWatcher{
		opts:      opts,
		filter:    newFilter(opts),
		debouncer: NewDebouncer(opts.Debounce),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 16),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start watches roots until ctx is cancelled or Stop is called. It blocks.
func (h *HybridWatcher) Start(ctx context.Context, roots ...string) error {
	if len(roots) == 0 {
		return errors.New("no roots to watch")
	}
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		a, err := filepath.Abs(r)
		if err != nil {
			return fmt.Errorf("resolve root %s: %w", r, err)
		}
		if info, err := os.Stat(a); err != nil || !info.IsDir() {
			return fmt.Errorf("root is not a directory: %s", a)
		}
		abs = append(abs, a)
	}
	// Longest first so nested roots claim their own events.
	sort.Slice(abs, func(i, j int) bool { return len(abs[i]) > len(abs[j]) })

	h.mu.Lock()
	h.roots = abs
	h.mu.Unlock()

	go h.forward(ctx)

	if !h.opts.ForcePolling {
		err := h.startFsnotify()
		if err == nil {
			return h.runFsnotify(ctx)
		}
		slog.Warn("watch_polling_fallback", slog.String("error", err.Error()))
	}
	return h.runPolling(ctx)
}

func (h *HybridWatcher) startFsnotify() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.fsw = fsw
	h.mode = "fsnotify"
	h.mu.Unlock()

	for _, root := range h.roots {
		if err := h.addRecursive(root, root); err != nil {
			h.mu.Lock()
			h.fsw = nil
			h.mode = ""
			h.mu.Unlock()
			_ = fsw.Close()
			return err
		}
	}
	return nil
}

func (h *HybridWatcher) runFsnotify(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			_ = h.Stop()
			return ctx.Err()
		case <-h.stopCh:
			return nil
		case ev, ok := <-h.fsw.Events:
			if !ok {
				return nil
			}
			h.handleFsnotify(ev)
		case err, ok := <-h.fsw.Errors:
			if !ok {
				return nil
			}
			h.emitError(err)
		}
	}
}

func (h *HybridWatcher) runPolling(ctx context.Context) error {
	h.mu.Lock()
	h.mode = "polling"
	h.mu.Unlock()

	p := newPollingWatcher(h.roots, h.opts.PollInterval, h.filter, h.accept)
	err := p.run(ctx, h.stopCh)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		_ = h.Stop()
	}
	return err
}

// addRecursive watches dir and every non-pruned directory below it.
func (h *HybridWatcher) addRecursive(root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && h.filter.ignored(root, path, true) {
			return filepath.SkipDir
		}
		return h.fsw.Add(path)
	})
}

func (h *HybridWatcher) handleFsnotify(ev fsnotify.Event) {
	root := h.rootOf(ev.Name)
	if root == "" {
		return
	}

	isDir := false
	if info, err := os.Stat(ev.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create != 0:
		op = OpCreate
		if isDir && !h.filter.ignored(root, ev.Name, true) {
			if err := h.addRecursive(root, ev.Name); err != nil {
				h.emitError(fmt.Errorf("watch %s: %w", ev.Name, err))
			}
		}
	case ev.Op&fsnotify.Write != 0:
		op = OpModify
	case ev.Op&fsnotify.Remove != 0:
		op = OpDelete
	case ev.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	h.accept(FileEvent{Path: ev.Name, Root: root, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// accept filters an event, maps config writes, and queues it.
func (h *HybridWatcher) accept(ev FileEvent) {
	if h.filter.ignored(ev.Root, ev.Path, ev.IsDir) {
		return
	}
	if !ev.IsDir && h.filter.isConfig(ev.Path) {
		ev.Operation = OpConfigChange
	}
	h.debouncer.Add(ev)
}

// rootOf returns the watched root containing path, or "".
func (h *HybridWatcher) rootOf(path string) string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, r := range h.roots {
		if path == r || strings.HasPrefix(path, r+string(filepath.Separator)) {
			return r
		}
	}
	return ""
}

func (h *HybridWatcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stopCh:
			return
		case batch, ok := <-h.debouncer.Output():
			if !ok {
				return
			}
			h.emitBatch(batch)
		}
	}
}

func (h *HybridWatcher) emitBatch(batch []FileEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.events <- batch:
	default:
		n := h.droppedBatches.Add(1)
		slog.Warn("watch_buffer_full",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("dropped_batches", n))
	}
}

func (h *HybridWatcher) emitError(err error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.stopped {
		return
	}
	select {
	case h.errors <- err:
	default:
	}
}

// Stop releases the watcher and closes Events and Errors. Safe to call
// more than once.
func (h *HybridWatcher) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return nil
	}
	h.stopped = true
	close(h.stopCh)
	h.debouncer.Stop()
	if h.fsw != nil {
		_ = h.fsw.Close()
	}
	close(h.events)
	close(h.errors)
	return nil
}

// Events returns debounced batches.
func (h *HybridWatcher) Events() <-chan []FileEvent { return h.events }

// Errors returns non-fatal watcher errors.
func (h *HybridWatcher) Errors() <-chan error { return h.errors }

// Mode returns "fsnotify", "polling", or "" before Start.
func (h *HybridWatcher) Mode() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.mode
}

// Roots returns the watched roots.
func (h *HybridWatcher) Roots() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.roots...)
}

// DroppedBatches counts batches lost to a full Events buffer.
func (h *HybridWatcher) DroppedBatches() uint64 {
	return h.droppedBatches.Load()
}
