package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/index"
	"github.com/NOVA-ALLRounder/main-sub002/internal/mcp"
)

func newTestMCPServer(t *testing.T) (*mcp.Server, *index.Runner) {
	t.Helper()
	cfg, err := readConfig()
	require.NoError(t, err)
	e, err := newEmbedder(t.Context(), cfg)
	require.NoError(t, err)
	oracle, err := index.NewOracle(cfg)
	require.NoError(t, err)

	srv, runner, err := newMCPServer(cfg, e, oracle, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = runner.Close() })
	return srv, runner
}

func TestNewMCPServer_PublishesPersistedIndex(t *testing.T) {
	// Given: an indexed corpus
	setupCorpus(t, sampleCorpus)
	_, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)

	// When: the MCP server is wired up
	srv, _ := newTestMCPServer(t)

	// Then: search works straight away
	res, err := srv.CallTool(t.Context(), mcp.ToolSearchDocuments, map[string]any{"query": "Atlas budget", "limit": float64(1)})
	require.NoError(t, err)
	text, ok := res.(string)
	require.True(t, ok)
	assert.Contains(t, text, "atlas.md")

	status, err := srv.CallTool(t.Context(), mcp.ToolIndexStatus, nil)
	require.NoError(t, err)
	out := status.(*mcp.IndexStatusOutput)
	assert.True(t, out.Ready)
	assert.Equal(t, 2, out.Status.Documents)
}

func TestNewMCPServer_IndexAppearsAfterRun(t *testing.T) {
	// Given: a corpus with no index yet
	setupCorpus(t, sampleCorpus)
	srv, runner := newTestMCPServer(t)

	// Then: search reports the missing index
	_, err := srv.CallTool(t.Context(), mcp.ToolSearchDocuments, map[string]any{"query": "garden"})
	require.Error(t, err)

	// When: the runner builds the index
	_, err = runner.Run(t.Context(), index.RunOptions{})
	require.NoError(t, err)

	// Then: the new index is searchable without restarting
	res, err := srv.CallTool(t.Context(), mcp.ToolSearchDocuments, map[string]any{"query": "garden tomatoes"})
	require.NoError(t, err)
	assert.Contains(t, res.(string), "notes.txt")
}

func TestServeCmd_RejectsUnknownTransport(t *testing.T) {
	setupCorpus(t, sampleCorpus)

	_, err := execute(t, "serve", "--transport", "sse")

	require.Error(t, err)
}
