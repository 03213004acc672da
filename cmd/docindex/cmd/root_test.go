package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"index", "search", "status", "watch", "serve", "config", "doctor", "eval", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"debug", "config", "profile-cpu", "profile-mem", "profile-trace"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

// ============================================================================
// Config resolution
// ============================================================================

func TestReadConfig_DefaultsRootToWorkingDir(t *testing.T) {
	// Given: a directory without a project config
	setupCorpus(t, nil)
	wd, err := os.Getwd()
	require.NoError(t, err)

	// When: config is read
	cfg, err := readConfig()
	require.NoError(t, err)

	// Then: the working directory is the only root
	assert.Equal(t, []string{wd}, cfg.Paths.Roots)
	assert.Equal(t, filepath.Join(wd, ".docindex"), cfg.ResolveDataDir())
}

func TestReadConfig_RelativePathsResolve(t *testing.T) {
	// Given: a project config with relative roots and data dir
	setupCorpus(t, map[string]string{
		".docindex.yaml": "paths:\n  roots: [docs]\n  data_dir: state\npolicy:\n  scope_roots: [docs/public]\n",
		"docs/a.md":      "a",
	})
	wd, err := os.Getwd()
	require.NoError(t, err)

	// When: config is read
	cfg, err := readConfig()
	require.NoError(t, err)

	// Then: every path is absolute under the working directory
	assert.Equal(t, []string{filepath.Join(wd, "docs")}, cfg.Paths.Roots)
	assert.Equal(t, filepath.Join(wd, "state"), cfg.Paths.DataDir)
	assert.Equal(t, []string{filepath.Join(wd, "docs", "public")}, cfg.Policy.ScopeRoots)
}

func TestReadConfig_ExplicitFile(t *testing.T) {
	setupCorpus(t, map[string]string{"custom.toml": "[search]\ntop_k = 3\n"})

	out, err := execute(t, "--config", "custom.toml", "config", "show", "--json")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	searchSection := decoded["search"].(map[string]any)
	assert.EqualValues(t, 3, searchSection["top_k"])
}

func TestReadConfig_MissingExplicitFile(t *testing.T) {
	setupCorpus(t, nil)

	_, err := execute(t, "--config", "nope.yaml", "status")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

// ============================================================================
// index, search, status
// ============================================================================

func TestIndexThenSearch(t *testing.T) {
	// Given: a small corpus with an allowed doc, another doc and a denied binary
	setupCorpus(t, sampleCorpus)

	// When: the corpus is indexed
	out, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)

	// Then: the run completes and the binary is reported as denied
	assert.Contains(t, out, "Complete: 2 files")
	assert.Contains(t, out, "Denied by policy")
	assert.Contains(t, out, "type_denied")

	// When: searching for a name and a term in one document
	out, err = execute(t, "search", "Atlas", "budget", "-k", "1", "--json")
	require.NoError(t, err)

	// Then: that document ranks first with the exact name matched
	var decoded struct {
		Query string       `json:"query"`
		Hits  []search.Hit `json:"hits"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "Atlas budget", decoded.Query)
	require.Len(t, decoded.Hits, 1)
	assert.Equal(t, "atlas.md", filepath.Base(decoded.Hits[0].Path))
	assert.Contains(t, decoded.Hits[0].ExactTermsMatched, "Atlas")
}

func TestIndex_SecondRunIsIncremental(t *testing.T) {
	setupCorpus(t, sampleCorpus)

	_, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)

	out, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 0 files, 0 chunks")
}

func TestIndex_Force(t *testing.T) {
	setupCorpus(t, sampleCorpus)

	_, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)

	out, err := execute(t, "index", "--no-tui", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "Complete: 2 files")
}

func TestSearch_NoIndex(t *testing.T) {
	// Given: a corpus that was never indexed
	setupCorpus(t, sampleCorpus)

	// When: searching
	_, err := execute(t, "search", "anything")

	// Then: the error says to index first
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no index found")
}

func TestSearch_RequiresQuery(t *testing.T) {
	setupCorpus(t, nil)

	_, err := execute(t, "search")
	assert.Error(t, err)

	_, err = execute(t, "search", "  ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query is empty")
}

func TestSearch_InvalidLexicalWeight(t *testing.T) {
	setupCorpus(t, nil)

	_, err := execute(t, "search", "q", "--lexical-weight", "1.5")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid search options")
}

func TestSearch_PlainOutputWithExplain(t *testing.T) {
	setupCorpus(t, sampleCorpus)
	_, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)

	out, err := execute(t, "search", "garden tomatoes", "--explain", "--lexical-weight", "0.5")
	require.NoError(t, err)

	assert.Contains(t, out, "notes.txt#0")
	assert.Contains(t, out, "vector=")
}

func TestStatus_BeforeAndAfterIndex(t *testing.T) {
	// Given: a fresh corpus
	setupCorpus(t, sampleCorpus)

	// When/Then: status reports no index yet
	out, err := execute(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not built")

	// When: the corpus is indexed
	_, err = execute(t, "index", "--no-tui")
	require.NoError(t, err)

	// Then: JSON status reports both documents
	out, err = execute(t, "status", "--json")
	require.NoError(t, err)
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.True(t, info.Indexed)
	assert.Equal(t, 2, info.Documents)
	assert.Equal(t, 2, info.TrackedFiles)
	assert.Equal(t, 2, info.CacheEntries)
	assert.Zero(t, info.Issues)
	assert.Equal(t, "hash", info.Embedder)
}

func TestStatus_CountsSearches(t *testing.T) {
	// Given: an indexed corpus searched twice, once without results
	setupCorpus(t, sampleCorpus)
	_, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)
	_, err = execute(t, "search", "garden")
	require.NoError(t, err)
	_, err = execute(t, "search", "garden", "--min-similarity", "1.01")
	require.NoError(t, err)

	// When: status is read
	out, err := execute(t, "status", "--json")
	require.NoError(t, err)

	// Then: both searches are counted
	var info ui.StatusInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.EqualValues(t, 2, info.Queries)
	assert.EqualValues(t, 1, info.ZeroResultQueries)
}
