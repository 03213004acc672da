package preflight

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
)

// MarkerFile records a passing run of the required checks in the data dir.
const MarkerFile = ".preflight-passed"

type marker struct {
	PassedAt    time.Time `json:"passed_at"`
	Fingerprint string    `json:"fingerprint"`
}

// Fingerprint identifies the settings the required checks depend on. A
// marker written under a different fingerprint no longer counts.
func Fingerprint(cfg *config.Config) string {
	e := cfg.Embeddings
	return fmt.Sprintf("%s|%s|%d|%s", e.Provider, e.Model, e.Dimensions, strings.Join(cfg.Paths.Roots, ","))
}

func readMarker(dataDir string) (marker, bool) {
	var m marker
	data, err := os.ReadFile(filepath.Join(dataDir, MarkerFile))
	if err != nil {
		return m, false
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, false
	}
	return m, true
}

// NeedsCheck reports whether dataDir lacks a valid marker for fingerprint.
func NeedsCheck(dataDir, fingerprint string) bool {
	m, ok := readMarker(dataDir)
	return !ok || m.Fingerprint != fingerprint
}

// MarkPassed writes the marker, creating dataDir if needed.
func MarkPassed(dataDir, fingerprint string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create marker directory: %w", err)
	}
	data, err := json.Marshal(marker{PassedAt: time.Now().UTC(), Fingerprint: fingerprint})
	if err != nil {
		return err
	}
	return renameio.WriteFile(filepath.Join(dataDir, MarkerFile), data, 0o644)
}

// ClearMarker removes the marker. A missing marker is not an error.
func ClearMarker(dataDir string) error {
	err := os.Remove(filepath.Join(dataDir, MarkerFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove marker file: %w", err)
	}
	return nil
}

// MarkerAge returns how long ago the checks passed, or zero without a marker.
func MarkerAge(dataDir string) time.Duration {
	m, ok := readMarker(dataDir)
	if !ok {
		return 0
	}
	return time.Since(m.PassedAt)
}
