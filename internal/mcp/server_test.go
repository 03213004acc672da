package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/telemetry"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

// ============================================================================
// Construction
// ============================================================================

func TestNewServer_RequiresStatus(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	assert.Error(t, err)
}

func TestServer_InfoAndTools(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	name, _ := srv.Info()
	assert.Equal(t, "docindex", name)
	assert.NotNil(t, srv.MCPServer())

	names := []string{}
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{ToolSearchDocuments, ToolIndexStatus}, names)
}

// ============================================================================
// search_documents
// ============================================================================

func TestSearchDocuments_ReturnsMarkdown(t *testing.T) {
	// Given: a searcher with one hit
	rerank := 0.88
	searcher := &fakeSearcher{hits: []search.Hit{{
		Path: "/docs/plan.md", ChunkID: 2, Score: 0.91, Heading: "Plan > Budget", Ext: ".md",
		Preview: "Budget for Q3", ExactTermsMatched: []string{"Q3"}, RerankScore: &rerank,
	}}}
	srv := newTestServer(t, ServerConfig{Searcher: searcher})

	// When: the tool is called
	result, err := srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "Q3 budget"})

	// Then: markdown with location, section and reason is returned
	require.NoError(t, err)
	text, ok := result.(string)
	require.True(t, ok, "expected string result, got %T", result)
	assert.Contains(t, text, "## Search Results")
	assert.Contains(t, text, "/docs/plan.md#2 (score: 0.91)")
	assert.Contains(t, text, "**Section:** Plan > Budget")
	assert.Contains(t, text, "matched: Q3")
	assert.Contains(t, text, "reranked 0.88")
}

func TestSearchDocuments_LimitAndRerankOverride(t *testing.T) {
	// Given: server defaults without reranking
	searcher := &fakeSearcher{}
	srv := newTestServer(t, ServerConfig{Searcher: searcher, SearchOptions: search.DefaultOptions()})

	// When: a client asks for too many results with reranking
	_, err := srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{
		"query": "report", "limit": float64(500), "rerank": true,
	})
	require.NoError(t, err)

	// Then: the limit is clamped and the override applied
	assert.Equal(t, MaxLimit, searcher.gotK)
	assert.True(t, searcher.gotOpts.UseRerank)
	assert.Equal(t, search.DefaultLexicalWeight, searcher.gotOpts.LexicalWeight)
}

func TestSearchDocuments_DefaultLimit(t *testing.T) {
	searcher := &fakeSearcher{}
	srv := newTestServer(t, ServerConfig{Searcher: searcher})

	_, err := srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "report"})

	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, searcher.gotK)
	assert.False(t, searcher.gotOpts.UseRerank)
}

func TestSearchDocuments_EmptyQuery(t *testing.T) {
	searcher := &fakeSearcher{}
	srv := newTestServer(t, ServerConfig{Searcher: searcher})

	_, err := srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "   "})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	assert.Zero(t, searcher.calls)
}

func TestSearchDocuments_NoIndex(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	_, err := srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "report"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexNotFound, mcpErr.Code)
}

func TestSearchDocuments_SearchErrorIsMapped(t *testing.T) {
	searcher := &fakeSearcher{err: docerrors.EmbeddingError("model offline", errors.New("dial tcp"))}
	srv := newTestServer(t, ServerConfig{Searcher: searcher})

	_, err := srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "report"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeEmbeddingFailed, mcpErr.Code)
}

func TestSearchHandler_StructuredOutput(t *testing.T) {
	searcher := &fakeSearcher{hits: []search.Hit{{Path: "/docs/a.txt", Score: 0.5, Preview: "alpha"}}}
	srv := newTestServer(t, ServerConfig{Searcher: searcher})

	_, out, err := srv.mcpSearchHandler(context.Background(), nil, SearchDocumentsInput{Query: " alpha "})

	require.NoError(t, err)
	assert.Equal(t, "alpha", out.Query)
	require.Len(t, out.Hits, 1)
	assert.Equal(t, "/docs/a.txt", out.Hits[0].Path)
	assert.False(t, out.Hits[0].Reranked)
}

// ============================================================================
// index_status
// ============================================================================

func TestIndexStatus(t *testing.T) {
	// Given: a built index but no searcher yet
	status := fakeStatus{info: ui.StatusInfo{Indexed: true, Documents: 3, Rows: 9, Model: "hash-64"}}
	srv := newTestServer(t, ServerConfig{Status: status})

	// When: status is requested before and after the index is installed
	before, err := srv.CallTool(context.Background(), ToolIndexStatus, nil)
	require.NoError(t, err)
	srv.SetIndex(&fakeSearcher{}, newDocSet())
	_, after, err := srv.mcpIndexStatusHandler(context.Background(), nil, IndexStatusInput{})
	require.NoError(t, err)

	// Then: readiness follows the searcher and the stats pass through
	assert.False(t, before.(*IndexStatusOutput).Ready)
	assert.True(t, after.Ready)
	assert.Equal(t, 3, after.Status.Documents)
	assert.Equal(t, "hash-64", after.Status.Model)
}

func TestSearchDocuments_RecordsMetrics(t *testing.T) {
	// Given: a server with a metrics collector
	metrics := telemetry.NewQueryMetrics(nil, telemetry.DefaultConfig())
	searcher := &fakeSearcher{hits: []search.Hit{{Path: "/docs/a.md", Score: 0.5}}}
	srv := newTestServer(t, ServerConfig{Searcher: searcher, Metrics: metrics})

	// When: two searches succeed and one fails validation
	_, err := srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "garden"})
	require.NoError(t, err)
	searcher.hits = nil
	_, err = srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": "Atlas"})
	require.NoError(t, err)
	_, err = srv.CallTool(context.Background(), ToolSearchDocuments, map[string]any{"query": ""})
	require.Error(t, err)

	// Then: only the completed searches are counted, and status reports them
	snap := metrics.Snapshot()
	assert.EqualValues(t, 2, snap.TotalQueries)
	assert.EqualValues(t, 1, snap.ZeroResultCount)

	status, err := srv.CallTool(context.Background(), ToolIndexStatus, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, status.(*IndexStatusOutput).Status.Queries)
	assert.EqualValues(t, 1, status.(*IndexStatusOutput).Status.ZeroResultQueries)
}

func TestCallTool_Unknown(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})

	_, err := srv.CallTool(context.Background(), "search_code", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServe_UnknownTransport(t *testing.T) {
	srv := newTestServer(t, ServerConfig{})
	assert.Error(t, srv.Serve(context.Background(), "sse"))
}
