package search

import (
	"fmt"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
)

// Ranking defaults.
const (
	DefaultTopK = 10

	// CandidateMultiplier widens the ANN fetch so blending, filtering and
	// reranking have room to reorder.
	CandidateMultiplier = 3

	DefaultLexicalWeight   = 0.3
	DefaultRerankDepth     = 30
	DefaultExactTermBoost  = 0.15
	DefaultTemplatePenalty = 0.2

	// NoMinSimilarity disables the vector similarity floor.
	NoMinSimilarity = -1.0
)

// Options controls a single search.
type Options struct {
	UseRerank      bool
	RerankDepth    int
	RerankMinScore float64

	// LexicalWeight w blends (1-w)*vector + w*lexical.
	LexicalWeight float64
	// Candidates with vector similarity below MinSimilarity are dropped.
	MinSimilarity float64

	ExactTermBoost  float64
	TemplatePenalty float64
}

// DefaultOptions returns the built-in ranking options.
func DefaultOptions() Options {
	return Options{
		RerankDepth:     DefaultRerankDepth,
		LexicalWeight:   DefaultLexicalWeight,
		MinSimilarity:   NoMinSimilarity,
		ExactTermBoost:  DefaultExactTermBoost,
		TemplatePenalty: DefaultTemplatePenalty,
	}
}

// OptionsFromConfig converts the search config section.
func OptionsFromConfig(cfg config.SearchConfig) Options {
	return Options{
		UseRerank:       cfg.UseRerank,
		RerankDepth:     cfg.RerankDepth,
		RerankMinScore:  cfg.RerankMinScore,
		LexicalWeight:   cfg.LexicalWeight,
		MinSimilarity:   cfg.MinSimilarity,
		ExactTermBoost:  cfg.ExactTermBoost,
		TemplatePenalty: cfg.TemplatePenalty,
	}
}

// Validate rejects out-of-range values.
func (o Options) Validate() error {
	if o.LexicalWeight < 0 || o.LexicalWeight > 1 {
		return fmt.Errorf("lexical weight must be within [0,1], got %v", o.LexicalWeight)
	}
	if o.RerankDepth < 0 {
		return fmt.Errorf("rerank depth must not be negative, got %d", o.RerankDepth)
	}
	if o.ExactTermBoost < 0 || o.TemplatePenalty < 0 {
		return fmt.Errorf("boost and penalty must not be negative")
	}
	return nil
}

// fetchSize is how many candidates the ANN stage returns.
func (o Options) fetchSize(topK int) int {
	n := topK
	if o.UseRerank && o.RerankDepth > n {
		n = o.RerankDepth
	}
	return n * CandidateMultiplier
}

// rerankDepth is how many blended candidates the cross-encoder sees.
func (o Options) rerankDepth(topK int) int {
	return max(o.RerankDepth, topK)
}
