// Package incremental persists the scan state and splits a scan pass into
// files that need processing and files that can be skipped.
package incremental

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/scanner"
)

// DefaultTolerance absorbs filesystem timestamp jitter across platforms.
const DefaultTolerance = time.Second

// StateFileName is the scan state file name inside the data directory.
const StateFileName = "scan_state.json"

// Entry is the stored signature of one file.
type Entry struct {
	Size  int64   `json:"size"`
	Mtime float64 `json:"mtime"`
}

// State maps paths to their last seen signature.
type State struct {
	Paths             map[string]Entry `json:"paths"`
	LastScanTimestamp float64          `json:"last_scan_timestamp"`
}

// NewState returns an empty state.
func NewState() *State {
	return &State{Paths: make(map[string]Entry)}
}

// Len returns the number of tracked paths.
func (s *State) Len() int { return len(s.Paths) }

// Filter splits rows into files that need processing and files whose size and
// mtime match the stored state within tolerance. A nil state treats every row
// as new.
func Filter(rows []scanner.ScannedFile, state *State, tolerance time.Duration) (needs, cached []scanner.ScannedFile) {
	tol := tolerance.Seconds()
	for _, r := range rows {
		if state == nil {
			needs = append(needs, r)
			continue
		}
		prev, ok := state.Paths[r.Path]
		if !ok || prev.Size != r.Size || math.Abs(r.Mtime()-prev.Mtime) > tol {
			needs = append(needs, r)
			continue
		}
		cached = append(cached, r)
	}
	return needs, cached
}

// Update returns a new state holding exactly the rows of this pass. Entries
// for paths not seen are pruned, and LastScanTimestamp becomes the max mtime
// observed.
func Update(state *State, rows []scanner.ScannedFile) *State {
	next := NewState()
	for _, r := range rows {
		m := r.Mtime()
		next.Paths[r.Path] = Entry{Size: r.Size, Mtime: m}
		if m > next.LastScanTimestamp {
			next.LastScanTimestamp = m
		}
	}
	if len(rows) == 0 && state != nil {
		next.LastScanTimestamp = state.LastScanTimestamp
	}
	return next
}

// Load reads the state file. A missing file yields an empty state; a corrupt
// one is logged, moved aside and also yields an empty state.
func Load(path string) *State {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logCorrupt(path, err)
		}
		return NewState()
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		logCorrupt(path, err)
		quarantine(path)
		return NewState()
	}
	if st.Paths == nil {
		st.Paths = make(map[string]Entry)
	}
	return &st
}

// Save writes the state atomically.
func Save(path string, st *State) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scan state: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scan state: %w", err)
	}
	return nil
}

func logCorrupt(path string, err error) {
	de := docerrors.CacheCorruptionError(path, err)
	slog.LogAttrs(context.Background(), slog.LevelWarn, "scan_state_unreadable", docerrors.LogAttrs(de)...)
}

func quarantine(path string) {
	_ = os.Rename(path, fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix()))
}
