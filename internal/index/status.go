package index

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/NOVA-ALLRounder/main-sub002/internal/cache"
	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/incremental"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
	"github.com/NOVA-ALLRounder/main-sub002/internal/telemetry"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

// ReadStatus reports on the persisted artifacts under cfg's data
// directory without loading an embedding model. A missing cache file is
// reported as empty rather than created.
func ReadStatus(cfg *config.Config) (ui.StatusInfo, error) {
	info := baseStatus(cfg)
	info.Embedder = cfg.Embeddings.Provider
	info.EmbedderStatus = "configured"

	idx, err := store.Load(IndexDir(cfg), GraphConfig(cfg))
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return info, err
	default:
		fillIndex(&info, idx, cfg)
	}

	if _, err := os.Stat(filepath.Join(cfg.ResolveDataDir(), cache.FileName(cfg.Cache.Backend))); err == nil {
		c, err := cache.Open(cfg.Cache.Backend, cfg.ResolveDataDir())
		if err != nil {
			return info, err
		}
		defer func() { _ = c.Close() }()
		info.CacheEntries, _ = c.Len()
		if idx != nil {
			info.Issues = countIssues(idx, c)
		}
	}
	return info, nil
}

// Status reports on the live index held by the Runner.
func (r *Runner) Status() ui.StatusInfo {
	info := baseStatus(r.cfg)
	info.Embedder = r.cfg.Embeddings.Provider + " (" + r.embedder.Model().Name() + ")"
	info.EmbedderStatus = "ready"
	if idx := r.Index(); idx != nil {
		fillIndex(&info, idx, r.cfg)
		info.Issues = countIssues(idx, r.cache)
	}
	info.CacheEntries, _ = r.cache.Len()
	return info
}

func baseStatus(cfg *config.Config) ui.StatusInfo {
	info := ui.StatusInfo{
		Roots:        cfg.Paths.Roots,
		DataDir:      cfg.ResolveDataDir(),
		CacheBackend: cfg.Cache.Backend,
	}
	if p := cfg.Search.Reranker.Provider; p != "" && p != "none" {
		info.Reranker = p + " " + cfg.Search.Reranker.Endpoint
	}

	state := incremental.Load(StatePath(cfg))
	info.TrackedFiles = state.Len()
	if state.LastScanTimestamp > 0 {
		sec := int64(state.LastScanTimestamp)
		nsec := int64((state.LastScanTimestamp - float64(sec)) * 1e9)
		info.LastScan = time.Unix(sec, nsec)
	}

	if snap, err := telemetry.NewFileStore(cfg.ResolveDataDir()).Load(); err == nil && snap != nil {
		info.Queries = snap.TotalQueries
		info.ZeroResultQueries = snap.ZeroResultCount
	}
	return info
}

func fillIndex(info *ui.StatusInfo, idx *store.Index, cfg *config.Config) {
	s := idx.Stats()
	info.Indexed = true
	info.Rows = s.Rows
	info.Documents = s.Documents
	info.Dim = s.Dim
	info.DType = s.DType
	info.Model = s.Model
	info.Orphans = s.Orphans
	for _, name := range []string{store.EmbeddingsFile, store.MetadataFile} {
		if fi, err := os.Stat(filepath.Join(IndexDir(cfg), name)); err == nil {
			info.IndexSize += fi.Size()
		}
	}
}

func countIssues(idx *store.Index, c cache.Cache) int {
	check, err := NewConsistencyChecker(idx, c).Check()
	if err != nil {
		return 0
	}
	return len(check.Inconsistencies)
}
