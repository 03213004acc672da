package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/validation"
)

func writeQueries(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEval_Passes(t *testing.T) {
	// Given: an indexed corpus and a query set it satisfies
	setupCorpus(t, sampleCorpus)
	_, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)
	queries := writeQueries(t, `
tier1:
  - id: T1-Q1
    query: Atlas budget hardware
    expected: [atlas.md]
negative:
  - id: N-1
    query: binary
    forbidden: [tool.exe]
`)

	// When: I evaluate with JSON output
	out, err := execute(t, "eval", queries, "--json")
	require.NoError(t, err)

	// Then: every query passes at rank 1
	var result validation.ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Tier1Pass)
	assert.Equal(t, 1, result.NegPass)
	assert.Equal(t, 0, result.Tier1[0].MatchedAt)
	assert.InDelta(t, 1.0, result.MRR, 1e-9)
}

func TestEval_FailureExitsNonZero(t *testing.T) {
	setupCorpus(t, sampleCorpus)
	_, err := execute(t, "index", "--no-tui")
	require.NoError(t, err)
	queries := writeQueries(t, "tier1:\n  - id: T1-Q1\n    query: garden tomatoes\n    expected: [missing.md]\n")

	out, err := execute(t, "eval", queries)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "tier 1 0/1")
	assert.Contains(t, out, "[FAIL] T1-Q1")
}

func TestEval_InvalidQuerySet(t *testing.T) {
	setupCorpus(t, sampleCorpus)

	_, err := execute(t, "eval", filepath.Join(t.TempDir(), "missing.yaml"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid query set")
}
