// Package telemetry keeps local search statistics: query kinds, a latency
// histogram, frequent terms and recent zero-result queries. Everything
// stays in the data directory.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// QueryType classifies a query by what drives its ranking.
type QueryType string

const (
	// QueryTypeExact queries name something literally: quoted phrases,
	// proper nouns, numbers or Hangul keywords.
	QueryTypeExact QueryType = "exact"
	// QueryTypeSemantic queries rely on vector similarity alone.
	QueryTypeSemantic QueryType = "semantic"
)

// ClassifyQuery returns the query type of q.
func ClassifyQuery(q string) QueryType {
	if len(search.ExtractExactTerms(q)) > 0 {
		return QueryTypeExact
	}
	return QueryTypeSemantic
}

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one completed search.
type QueryEvent struct {
	Query       string
	Type        QueryType // classified from Query when empty
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the search found nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the statistics. It is also the
// persisted form.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	QueryTypeCounts     map[QueryType]int64     `json:"query_type_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of zero-result queries in percent.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s == nil || s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config configures QueryMetrics.
type Config struct {
	TopTermsCapacity      int           // distinct terms tracked, default 100
	ZeroResultsCapacity   int           // recent zero-result queries kept, default 50
	RecentQueriesCapacity int           // query hashes kept for repeat detection, default 500
	FlushInterval         time.Duration // 0 disables background flushing
}

// DefaultConfig returns the default collector configuration.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   50,
		RecentQueriesCapacity: 500,
	}
}

// QueryMetrics aggregates QueryEvents. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	queryTypes      map[QueryType]int64
	latencies       map[LatencyBucket]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	recentQueries   *lru.Cache[string, struct{}]
	totalQueries    int64
	zeroResultCount int64
	exactRepeats    int64
	since           time.Time

	store  *FileStore
	stopCh chan struct{}
	done   chan struct{}
	closed bool
}

// NewQueryMetrics creates a collector. With a store, it resumes from the
// persisted snapshot and Flush writes back to it; a nil store keeps
// everything in memory.
func NewQueryMetrics(fs *FileStore, cfg Config) *QueryMetrics {
	d := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = d.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = d.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = d.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)
	m := &QueryMetrics{
		queryTypes:    make(map[QueryType]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		recentQueries: recent,
		since:         time.Now(),
		store:         fs,
	}

	if fs != nil {
		if snap, err := fs.Load(); err == nil && snap != nil {
			m.restore(snap)
		}
		if cfg.FlushInterval > 0 {
			m.stopCh = make(chan struct{})
			m.done = make(chan struct{})
			go m.flushLoop(cfg.FlushInterval)
		}
	}
	return m
}

func (m *QueryMetrics) restore(s *Snapshot) {
	m.totalQueries = s.TotalQueries
	m.zeroResultCount = s.ZeroResultCount
	m.exactRepeats = s.ExactRepeatCount
	for k, v := range s.QueryTypeCounts {
		m.queryTypes[k] = v
	}
	for k, v := range s.LatencyDistribution {
		m.latencies[k] = v
	}
	// Least frequent first so the LRU evicts them first.
	for i := len(s.TopTerms) - 1; i >= 0; i-- {
		m.topTerms.Add(s.TopTerms[i].Term, s.TopTerms[i].Count)
	}
	for _, q := range s.ZeroResultQueries {
		m.zeroResults.Add(q)
	}
	if !s.Since.IsZero() {
		m.since = s.Since
	}
}

func (m *QueryMetrics) flushLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one search to the statistics.
func (m *QueryMetrics) Record(event QueryEvent) {
	query := strings.TrimSpace(event.Query)
	if query == "" {
		return
	}
	if event.Type == "" {
		event.Type = ClassifyQuery(query)
	}
	terms := store.TokenSet(query)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.totalQueries++
	m.queryTypes[event.Type]++
	m.latencies[LatencyToBucket(event.Latency)]++
	for _, term := range terms {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}
	if event.IsZeroResult() {
		m.zeroResultCount++
		m.zeroResults.Add(query)
	}

	key := hashQuery(query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.exactRepeats++
	}
	m.recentQueries.Add(key, struct{}{})
}

// hashQuery keys a normalized query for repeat detection.
func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the current statistics.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *QueryMetrics) snapshotLocked() *Snapshot {
	types := make(map[QueryType]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		types[k] = v
	}
	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	terms := make([]TermCount, 0, m.topTerms.Len())
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	sort.SliceStable(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})

	return &Snapshot{
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		ExactRepeatCount:    m.exactRepeats,
		QueryTypeCounts:     types,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.Items(),
		Since:               m.since,
	}
}

// Flush writes the statistics to the store. A nil store is a no-op.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(m.Snapshot())
}

// Close stops background flushing and flushes once more.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.stopCh != nil {
		close(m.stopCh)
		<-m.done
	}
	return m.Flush()
}
