package index

import (
	"log/slog"
	"sort"
	"time"

	"github.com/NOVA-ALLRounder/main-sub002/internal/cache"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// InconsistencyType categorizes a disagreement between the index and the
// chunk cache.
type InconsistencyType int

const (
	// InconsistencyOrphanRows is a path with index rows but no cache entry.
	InconsistencyOrphanRows InconsistencyType = iota
	// InconsistencyMissingRows is a cache entry with chunks but no rows.
	InconsistencyMissingRows
	// InconsistencyRowCount is a path whose row count differs from the
	// cached chunk count.
	InconsistencyRowCount
)

// String returns the snake_case name.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanRows:
		return "orphan_rows"
	case InconsistencyMissingRows:
		return "missing_rows"
	case InconsistencyRowCount:
		return "row_count"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected issue.
type Inconsistency struct {
	Type InconsistencyType
	Path string
}

// CheckResult is the outcome of a consistency check.
type CheckResult struct {
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// ConsistencyChecker compares the index with the chunk cache. The cache
// is what drift detection trusts, so every index path must have an entry
// and every entry with chunks must have exactly that many rows.
type ConsistencyChecker struct {
	idx   *store.Index
	cache cache.Cache
}

// NewConsistencyChecker creates a checker.
func NewConsistencyChecker(idx *store.Index, c cache.Cache) *ConsistencyChecker {
	return &ConsistencyChecker{idx: idx, cache: c}
}

// Check lists every inconsistency, sorted by path.
func (c *ConsistencyChecker) Check() (*CheckResult, error) {
	start := time.Now()
	rows := c.idx.RowCounts()
	known, err := c.cache.KnownPaths()
	if err != nil {
		return nil, err
	}

	var issues []Inconsistency
	for path := range rows {
		if _, ok := known[path]; !ok {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanRows, Path: path})
		}
	}
	for path := range known {
		entry, ok, err := c.cache.Get(path)
		if err != nil {
			return nil, err
		}
		if !ok || entry.ChunkCount == 0 {
			continue
		}
		switch n := rows[path]; {
		case n == 0:
			issues = append(issues, Inconsistency{Type: InconsistencyMissingRows, Path: path})
		case n != entry.ChunkCount:
			issues = append(issues, Inconsistency{Type: InconsistencyRowCount, Path: path})
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Type < issues[j].Type
	})

	return &CheckResult{
		Checked:         len(rows) + len(known),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// Repair resolves issues so the next run reprocesses the affected paths:
// orphan rows are deleted and bad cache entries are dropped.
func (c *ConsistencyChecker) Repair(issues []Inconsistency) error {
	var orphans []string
	dropped := 0
	for _, issue := range issues {
		switch issue.Type {
		case InconsistencyOrphanRows:
			orphans = append(orphans, issue.Path)
		case InconsistencyMissingRows, InconsistencyRowCount:
			if err := c.cache.Remove(issue.Path); err != nil {
				return err
			}
			dropped++
		}
	}
	removed := c.idx.DeletePaths(orphans)

	if len(issues) > 0 {
		slog.Info("index_consistency_repaired",
			slog.Int("orphan_paths", len(orphans)),
			slog.Int("orphan_rows", removed),
			slog.Int("cache_entries_dropped", dropped))
	}
	return nil
}
