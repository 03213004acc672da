package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
)

// testConfig returns a config rooted at a fresh corpus directory.
func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	root := t.TempDir()
	cfg := config.NewConfig()
	cfg.Paths.Roots = []string{root}
	cfg.Scanner.Workers = 2
	cfg.Chunking.MaxTokens = 64
	cfg.Chunking.OverlapTokens = 8
	return cfg, root
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func hashEmbedder(dims int) *embed.Embedder {
	return embed.NewEmbedder(embed.NewHashModel(dims), embed.Options{BatchSize: 1, Concurrency: 2})
}

func newTestRunner(t *testing.T, cfg *config.Config, e *embed.Embedder) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerDependencies{Config: cfg, Embedder: e})
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

var errModelDown = errors.New("model down")

// flakyModel fails every batch containing a marker string; an empty
// marker fails every batch.
type flakyModel struct {
	*embed.HashModel
	marker string
}

func (m *flakyModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if strings.Contains(t, m.marker) {
			return nil, errModelDown
		}
	}
	return m.HashModel.Encode(ctx, texts)
}

func readPairBytes(t *testing.T, cfg *config.Config) ([]byte, []byte) {
	t.Helper()
	emb, err := os.ReadFile(filepath.Join(IndexDir(cfg), "embeddings.bin"))
	require.NoError(t, err)
	meta, err := os.ReadFile(filepath.Join(IndexDir(cfg), "metadata.json"))
	require.NoError(t, err)
	return emb, meta
}
