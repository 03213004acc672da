package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio"
)

// FileName is the statistics file inside the data directory.
const FileName = "query_metrics.json"

// FileStore persists a Snapshot as JSON, replacing the file atomically.
type FileStore struct {
	path string
}

// NewFileStore returns a store for dataDir/FileName.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{path: filepath.Join(dataDir, FileName)}
}

// Path returns the statistics file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the persisted snapshot. A missing file returns nil, nil.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read query metrics: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode query metrics: %w", err)
	}
	return &snap, nil
}

// Save writes snap.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode query metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write query metrics: %w", err)
	}
	return nil
}
