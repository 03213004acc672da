package search

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// Retriever answers queries against an index.
type Retriever struct {
	index    atomic.Pointer[indexHolder]
	encoder  QueryEncoder
	reranker Reranker

	// lexicalFallback serves token-overlap results when the query cannot
	// be embedded; otherwise the embedding error is returned.
	lexicalFallback bool
}

type indexHolder struct{ Index }

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithReranker sets the cross-encoder used when Options.UseRerank is on.
func WithReranker(r Reranker) RetrieverOption {
	return func(rt *Retriever) { rt.reranker = r }
}

// WithLexicalFallback enables lexical-only results on query embedding failure.
func WithLexicalFallback(enabled bool) RetrieverOption {
	return func(rt *Retriever) { rt.lexicalFallback = enabled }
}

// NewRetriever creates a retriever over idx.
func NewRetriever(idx Index, encoder QueryEncoder, opts ...RetrieverOption) *Retriever {
	r := &Retriever{encoder: encoder}
	r.index.Store(&indexHolder{idx})
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetIndex swaps the index, e.g. after a full rebuild.
func (r *Retriever) SetIndex(idx Index) {
	r.index.Store(&indexHolder{idx})
}

type scored struct {
	cand     store.Candidate
	annRank  int
	vector   float64
	lexical  float64
	rerank   *float64
	base     float64
	adjusted float64
	exact    []string
	reasons  []string
}

// Search returns up to topK hits for query.
func (r *Retriever) Search(ctx context.Context, query string, topK int, opts Options) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, docerrors.New(docerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if err := opts.Validate(); err != nil {
		return nil, docerrors.New(docerrors.ErrCodeInvalidQuery, err.Error(), err)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	start := time.Now()
	idx := r.index.Load().Index

	queryTokens := store.Tokenize(query)
	fetch := opts.fetchSize(topK)

	vectorMode := true
	var cands []store.Candidate
	qvec, err := r.encoder.EncodeQuery(ctx, query)
	switch {
	case err == nil:
		cands, err = idx.Search(qvec, fetch)
		if err != nil {
			return nil, docerrors.New(docerrors.ErrCodeSearchFailed, "index search failed", err)
		}
	case r.lexicalFallback && ctx.Err() == nil:
		de := docerrors.EmbeddingError("query embedding failed, serving lexical results", err)
		slog.LogAttrs(ctx, slog.LevelWarn, "search_lexical_fallback", docerrors.LogAttrs(de)...)
		vectorMode = false
		cands = idx.LexicalSearch(queryTokens, fetch)
	default:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if docerrors.GetCode(err) != "" {
			return nil, err
		}
		return nil, docerrors.EmbeddingError("query embedding failed", err)
	}

	w := opts.LexicalWeight
	items := make([]*scored, 0, len(cands))
	for _, c := range cands {
		s := &scored{cand: c, annRank: c.Rank, vector: c.Similarity}
		s.lexical = store.LexicalOverlap(queryTokens, c.Meta.Tokens)
		if vectorMode {
			if s.vector < opts.MinSimilarity {
				continue
			}
			s.base = (1-w)*s.vector + w*s.lexical
		} else {
			s.base = s.lexical
		}
		items = append(items, s)
	}
	sortByScore(items, func(s *scored) float64 { return s.base })

	if opts.UseRerank && r.reranker != nil && len(items) > 0 {
		items = r.rerank(ctx, query, items, opts, topK)
	}

	terms := ExtractExactTerms(query)
	for _, s := range items {
		s.adjusted = s.base
		s.exact = MatchExactTerms(terms, s.cand.Meta.FullText())
		if len(terms) > 0 && len(s.exact) > 0 {
			s.adjusted += opts.ExactTermBoost * float64(len(s.exact)) / float64(len(terms))
		}
		s.reasons = TemplateReasons(s.cand.Meta.Preview)
		s.adjusted -= opts.TemplatePenalty * float64(len(s.reasons))
	}
	sortByScore(items, func(s *scored) float64 { return s.adjusted })

	if len(items) > topK {
		items = items[:topK]
	}
	hits := make([]Hit, len(items))
	for i, s := range items {
		m := s.cand.Meta
		hits[i] = Hit{
			Path:              m.Path,
			ChunkID:           m.ChunkID,
			Score:             s.adjusted,
			VectorSimilarity:  s.vector,
			LexicalScore:      s.lexical,
			RerankScore:       s.rerank,
			ExactTermsMatched: s.exact,
			PenaltyReasons:    s.reasons,
			Preview:           m.Preview,
			Heading:           m.Heading,
			Ext:               m.Ext,
			Mtime:             m.Mtime,
		}
	}

	slog.Debug("search_complete",
		slog.String("query", truncateQuery(query, 50)),
		slog.Int("candidates", len(cands)),
		slog.Int("hits", len(hits)),
		slog.Bool("vector", vectorMode),
		slog.Duration("duration", time.Since(start)))
	return hits, nil
}

// rerank re-scores the top blended candidates. Only reranked candidates
// at or above RerankMinScore survive; candidates past the rerank depth
// are dropped without being scored. The depth is never below topK, so
// the drop only discards candidates that could not have been returned.
// On reranker failure the blended order is kept.
func (r *Retriever) rerank(ctx context.Context, query string, items []*scored, opts Options, topK int) []*scored {
	depth := min(opts.rerankDepth(topK), len(items))
	head := items[:depth]
	docs := make([]string, len(head))
	for i, s := range head {
		docs[i] = rerankText(s.cand.Meta)
	}

	results, err := r.reranker.Rerank(ctx, query, docs, 0)
	if err != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "rerank_failed_using_blended", docerrors.LogAttrs(err)...)
		return items
	}

	kept := make([]*scored, 0, len(results))
	seen := make(map[int]bool, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= len(head) || seen[res.Index] || res.Score < opts.RerankMinScore {
			continue
		}
		seen[res.Index] = true
		s := head[res.Index]
		score := res.Score
		s.rerank = &score
		s.base = score
		kept = append(kept, s)
	}
	sortByScore(kept, func(s *scored) float64 { return s.base })
	return kept
}

func rerankText(m store.Meta) string {
	if m.Heading != "" {
		return m.Heading + "\n" + m.Preview
	}
	return m.Preview
}

// sortByScore orders by score descending, ties by ANN rank.
func sortByScore(items []*scored, score func(*scored) float64) {
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := score(items[i]), score(items[j])
		if si != sj {
			return si > sj
		}
		return items[i].annRank < items[j].annRank
	})
}
