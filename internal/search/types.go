// Package search ranks index candidates for a query: vector similarity
// blended with token overlap, optional cross-encoder reranking,
// exact-term boosting and boilerplate penalties.
package search

import (
	"context"

	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// Hit is one ranked search result.
type Hit struct {
	Path              string   `json:"path"`
	ChunkID           int      `json:"chunk_id"`
	Score             float64  `json:"score"`
	VectorSimilarity  float64  `json:"vector_similarity"`
	LexicalScore      float64  `json:"lexical_score"`
	RerankScore       *float64 `json:"rerank_score,omitempty"`
	ExactTermsMatched []string `json:"exact_terms_matched"`
	PenaltyReasons    []string `json:"penalty_reasons"`
	Preview           string   `json:"preview"`
	Heading           string   `json:"heading,omitempty"`
	Ext               string   `json:"ext"`
	Mtime             float64  `json:"mtime"`
}

// Index is the read side of store.Index used by the retriever.
type Index interface {
	Search(query []float32, k int) ([]store.Candidate, error)
	LexicalSearch(tokens []string, k int) []store.Candidate
}

// QueryEncoder embeds a query string.
type QueryEncoder interface {
	EncodeQuery(ctx context.Context, text string) ([]float32, error)
}

var _ Index = (*store.Index)(nil)
