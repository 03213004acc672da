package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"
)

// pollingWatcher rescans the roots on an interval and diffs snapshots. It
// backs HybridWatcher when fsnotify cannot be used, such as on network
// mounts or when the inotify watch limit is exhausted.
type pollingWatcher struct {
	roots    []string
	interval time.Duration
	filter   *filter
	emit     func(FileEvent)

	state map[string]snapshot
}

type snapshot struct {
	root    string
	modTime time.Time
	size    int64
	isDir   bool
}

func newPollingWatcher(roots []string, interval time.Duration, f *filter, emit func(FileEvent)) *pollingWatcher {
	return &pollingWatcher{roots: roots, interval: interval, filter: f, emit: emit}
}

// run takes a baseline snapshot and then diffs on every tick until ctx
// is done or stop is closed.
func (p *pollingWatcher) run(ctx context.Context, stop <-chan struct{}) error {
	p.state = p.walk()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			p.diff(p.walk())
		}
	}
}

func (p *pollingWatcher) walk() map[string]snapshot {
	out := make(map[string]snapshot)
	for _, root := range p.roots {
		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if path == root {
				return nil
			}
			if p.filter.ignored(root, path, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			out[path] = snapshot{root: root, modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
			return nil
		})
	}
	return out
}

func (p *pollingWatcher) diff(current map[string]snapshot) {
	now := time.Now()
	for path, cur := range current {
		prev, seen := p.state[path]
		switch {
		case !seen:
			p.emit(FileEvent{Path: path, Root: cur.root, Operation: OpCreate, IsDir: cur.isDir, Timestamp: now})
		case !cur.isDir && (prev.modTime != cur.modTime || prev.size != cur.size):
			p.emit(FileEvent{Path: path, Root: cur.root, Operation: OpModify, Timestamp: now})
		}
	}
	for path, prev := range p.state {
		if _, ok := current[path]; !ok {
			p.emit(FileEvent{Path: path, Root: prev.root, Operation: OpDelete, IsDir: prev.isDir, Timestamp: now})
		}
	}
	p.state = current
}
