package search

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// fakeIndex returns fixed candidates. Similarities are taken as given and
// the query vector is ignored.
type fakeIndex struct {
	cands     []store.Candidate
	searchErr error

	mu            sync.Mutex
	lastK         int
	lexicalCalled bool
}

func (f *fakeIndex) Search(_ []float32, k int) ([]store.Candidate, error) {
	f.mu.Lock()
	f.lastK = k
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := append([]store.Candidate(nil), f.cands...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > k {
		out = out[:k]
	}
	for i := range out {
		out[i].Rank = i
	}
	return out, nil
}

func (f *fakeIndex) LexicalSearch(tokens []string, k int) []store.Candidate {
	f.mu.Lock()
	f.lexicalCalled = true
	f.mu.Unlock()
	var out []store.Candidate
	for _, c := range f.cands {
		if store.LexicalOverlap(tokens, c.Meta.Tokens) > 0 {
			c.Similarity = 0
			out = append(out, c)
		}
	}
	if len(out) > k {
		out = out[:k]
	}
	for i := range out {
		out[i].Rank = i
	}
	return out
}

type fakeEncoder struct {
	err error
}

func (f fakeEncoder) EncodeQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

var errEncoderDown = errors.New("encoder down")

// fakeReranker scores documents by a lookup on their text.
type fakeReranker struct {
	scores map[string]float64
	err    error

	mu       sync.Mutex
	lastDocs []string
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, docs []string, _ int) ([]RerankResult, error) {
	f.mu.Lock()
	f.lastDocs = append([]string(nil), docs...)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []RerankResult
	for i, d := range docs {
		if s, ok := f.scores[d]; ok {
			out = append(out, RerankResult{Index: i, Score: s})
		}
	}
	return out, nil
}

func (f *fakeReranker) Available(context.Context) bool { return f.err == nil }
func (f *fakeReranker) Close() error                   { return nil }

func cand(path, preview string, sim float64) store.Candidate {
	return store.Candidate{
		Similarity: sim,
		Meta: store.Meta{
			Path:    path,
			Ext:     ".txt",
			Preview: preview,
			Tokens:  store.TokenSet(preview),
		},
	}
}

func hitPaths(hits []Hit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.Path
	}
	return out
}

// plainOptions disables boosts and penalties so tests see raw blending.
func plainOptions() Options {
	o := DefaultOptions()
	o.ExactTermBoost = 0
	o.TemplatePenalty = 0
	return o
}
