package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), tt.latency.String())
	}
}

func TestClassifyQuery(t *testing.T) {
	assert.Equal(t, QueryTypeExact, ClassifyQuery(`"Project Atlas" budget`))
	assert.Equal(t, QueryTypeExact, ClassifyQuery("report 2024"))
	assert.Equal(t, QueryTypeSemantic, ClassifyQuery("how do we onboard people"))
}

// ============================================================================
// Recording
// ============================================================================

func TestQueryMetrics_Record(t *testing.T) {
	// Given: an in-memory collector
	m := NewQueryMetrics(nil, DefaultConfig())

	// When: three searches are recorded, one repeated and one empty-handed
	m.Record(QueryEvent{Query: "garden tomatoes", ResultCount: 3, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Query: "  garden tomatoes", ResultCount: 2, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "Atlas budget", ResultCount: 0, Latency: time.Second})

	// Then: the snapshot aggregates all of them
	s := m.Snapshot()
	assert.EqualValues(t, 3, s.TotalQueries)
	assert.EqualValues(t, 1, s.ZeroResultCount)
	assert.EqualValues(t, 1, s.ExactRepeatCount)
	assert.EqualValues(t, 2, s.QueryTypeCounts[QueryTypeSemantic])
	assert.EqualValues(t, 1, s.QueryTypeCounts[QueryTypeExact])
	assert.EqualValues(t, 1, s.LatencyDistribution[BucketP10])
	assert.EqualValues(t, 1, s.LatencyDistribution[BucketP50])
	assert.EqualValues(t, 1, s.LatencyDistribution[BucketP1000])
	assert.Equal(t, []string{"Atlas budget"}, s.ZeroResultQueries)
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "garden", Count: 2}, s.TopTerms[0])
	assert.InDelta(t, 33.33, s.ZeroResultPercentage(), 0.01)
}

func TestQueryMetrics_IgnoresBlankQueries(t *testing.T) {
	m := NewQueryMetrics(nil, DefaultConfig())
	m.Record(QueryEvent{Query: "   "})
	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestQueryMetrics_ExplicitTypeKept(t *testing.T) {
	m := NewQueryMetrics(nil, DefaultConfig())
	m.Record(QueryEvent{Query: "Atlas", Type: QueryTypeSemantic, ResultCount: 1})
	assert.EqualValues(t, 1, m.Snapshot().QueryTypeCounts[QueryTypeSemantic])
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := NewQueryMetrics(nil, DefaultConfig())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Query: "late", ResultCount: 1})
	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestSnapshot_ZeroResultPercentageEmpty(t *testing.T) {
	var s *Snapshot
	assert.Zero(t, s.ZeroResultPercentage())
	assert.Zero(t, (&Snapshot{}).ZeroResultPercentage())
}

// ============================================================================
// Persistence
// ============================================================================

func TestQueryMetrics_PersistsAcrossInstances(t *testing.T) {
	// Given: a collector backed by a file store
	dir := t.TempDir()
	first := NewQueryMetrics(NewFileStore(dir), DefaultConfig())
	first.Record(QueryEvent{Query: "garden tomatoes", ResultCount: 1})
	first.Record(QueryEvent{Query: "missing thing", ResultCount: 0})
	require.NoError(t, first.Close())

	// When: a new collector opens the same store
	second := NewQueryMetrics(NewFileStore(dir), DefaultConfig())
	second.Record(QueryEvent{Query: "garden hose", ResultCount: 2})
	s := second.Snapshot()

	// Then: counts continue from the persisted totals
	assert.EqualValues(t, 3, s.TotalQueries)
	assert.EqualValues(t, 1, s.ZeroResultCount)
	assert.Equal(t, []string{"missing thing"}, s.ZeroResultQueries)
	assert.Equal(t, TermCount{Term: "garden", Count: 2}, s.TopTerms[0])
	assert.False(t, s.Since.IsZero())
}

func TestQueryMetrics_BackgroundFlush(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	m := NewQueryMetrics(fs, Config{FlushInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = m.Close() })

	m.Record(QueryEvent{Query: "garden", ResultCount: 1})

	assert.Eventually(t, func() bool {
		snap, err := fs.Load()
		return err == nil && snap != nil && snap.TotalQueries == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileStore_LoadMissing(t *testing.T) {
	snap, err := NewFileStore(t.TempDir()).Load()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	require.NoError(t, fs.Save(&Snapshot{TotalQueries: 1}))
	require.NoError(t, writeRaw(fs.Path(), "{not json"))

	_, err := fs.Load()
	assert.Error(t, err)
}

// ============================================================================
// Circular buffer
// ============================================================================

func TestCircularBuffer(t *testing.T) {
	b := NewCircularBuffer[int](3)
	assert.Empty(t, b.Items())

	for i := 1; i <= 5; i++ {
		b.Add(i)
	}

	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []int{3, 4, 5}, b.Items())
}

func TestCircularBuffer_DefaultCapacity(t *testing.T) {
	b := NewCircularBuffer[string](0)
	b.Add("a")
	assert.Equal(t, []string{"a"}, b.Items())
}
