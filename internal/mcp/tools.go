package mcp

import (
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

// Tool names.
const (
	ToolSearchDocuments = "search_documents"
	ToolIndexStatus     = "index_status"
)

// SearchDocumentsInput is the input schema for search_documents.
type SearchDocumentsInput struct {
	Query  string `json:"query" jsonschema:"natural language or keyword query; Korean and English are both supported"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10, max 50"`
	Rerank *bool  `json:"rerank,omitempty" jsonschema:"rerank candidates with the configured cross-encoder; defaults to the server configuration"`
}

// SearchDocumentsOutput is the structured result of search_documents.
type SearchDocumentsOutput struct {
	Query string      `json:"query"`
	Hits  []HitOutput `json:"hits" jsonschema:"ranked results, best first"`
}

// HitOutput is one ranked chunk.
type HitOutput struct {
	Path              string   `json:"path" jsonschema:"absolute path of the document"`
	ChunkID           int      `json:"chunk_id"`
	Score             float64  `json:"score" jsonschema:"final ranking score"`
	Heading           string   `json:"heading,omitempty" jsonschema:"section heading path of the chunk"`
	Preview           string   `json:"preview" jsonschema:"leading text of the chunk"`
	ExactTermsMatched []string `json:"exact_terms_matched,omitempty" jsonschema:"quoted, proper-noun or numeric query terms found in the chunk"`
	PenaltyReasons    []string `json:"penalty_reasons,omitempty" jsonschema:"boilerplate patterns that lowered the score"`
	Reranked          bool     `json:"reranked,omitempty"`
}

// IndexStatusInput is the input schema for index_status (no parameters).
type IndexStatusInput struct{}

// IndexStatusOutput is the structured result of index_status.
type IndexStatusOutput struct {
	Ready  bool          `json:"ready" jsonschema:"true when an index exists and search can be served"`
	Status ui.StatusInfo `json:"status"`
}

func toHitOutputs(hits []search.Hit) []HitOutput {
	out := make([]HitOutput, 0, len(hits))
	for _, h := range hits {
		out = append(out, HitOutput{
			Path:              h.Path,
			ChunkID:           h.ChunkID,
			Score:             h.Score,
			Heading:           h.Heading,
			Preview:           h.Preview,
			ExactTermsMatched: h.ExactTermsMatched,
			PenaltyReasons:    h.PenaltyReasons,
			Reranked:          h.RerankScore != nil,
		})
	}
	return out
}
