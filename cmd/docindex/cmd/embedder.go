package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/index"
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// errNoIndex is returned by commands that need a built index.
var errNoIndex = docerrors.New(docerrors.ErrCodeIndexNotFound, "no index found", nil).
	WithSuggestion("Run 'docindex index' first")

// newEmbedder constructs the model handle once and wraps it in an
// Embedder. Query vectors are memoised with an LRU in front of the model.
func newEmbedder(ctx context.Context, cfg *config.Config) (*embed.Embedder, error) {
	model, err := embed.NewModel(ctx, cfg.Embeddings)
	if err != nil {
		return nil, err
	}
	cached := embed.NewCachedModel(model, cfg.Embeddings.QueryCacheSize)
	return embed.NewEmbedderFromConfig(cached, cfg.Embeddings), nil
}

// loadIndex reads the persisted index pair for cfg.
func loadIndex(cfg *config.Config) (*store.Index, error) {
	idx, err := store.Load(index.IndexDir(cfg), index.GraphConfig(cfg))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errNoIndex
	}
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// newRetriever builds a retriever over idx with the configured reranker.
func newRetriever(cfg *config.Config, idx search.Index, e *embed.Embedder) (*search.Retriever, error) {
	reranker, err := search.NewReranker(cfg.Search.Reranker, cfg.RerankTimeout())
	if err != nil {
		return nil, err
	}
	return search.NewRetriever(idx, e,
		search.WithReranker(reranker),
		search.WithLexicalFallback(cfg.Search.LexicalFallback)), nil
}

// checkModel reports an index built by a different model.
func checkModel(idx *store.Index, e *embed.Embedder) error {
	if idx.Model() != e.Model().Name() || idx.Dim() != e.Dimensions() {
		return docerrors.New(docerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("index was built with %s (%d dims), configured model is %s (%d dims)",
				idx.Model(), idx.Dim(), e.Model().Name(), e.Dimensions()), nil).
			WithSuggestion("Run 'docindex index' to rebuild")
	}
	return nil
}
