package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// ============================================================================
// Input validation
// ============================================================================

func TestRetriever_Search_EmptyQuery(t *testing.T) {
	// Given: a retriever over an empty index
	r := NewRetriever(&fakeIndex{}, fakeEncoder{})

	// When: I search with a blank query
	_, err := r.Search(context.Background(), "   ", 5, DefaultOptions())

	// Then: the query is rejected
	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeQueryEmpty, docerrors.GetCode(err))
}

func TestRetriever_Search_InvalidOptions(t *testing.T) {
	r := NewRetriever(&fakeIndex{}, fakeEncoder{})
	opts := DefaultOptions()
	opts.LexicalWeight = 1.5

	_, err := r.Search(context.Background(), "budget", 5, opts)

	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeInvalidQuery, docerrors.GetCode(err))
}

func TestRetriever_Search_IndexErrorIsSearchFailed(t *testing.T) {
	r := NewRetriever(&fakeIndex{searchErr: assert.AnError}, fakeEncoder{})

	_, err := r.Search(context.Background(), "budget", 5, DefaultOptions())

	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeSearchFailed, docerrors.GetCode(err))
}

// ============================================================================
// Blending, filtering and truncation
// ============================================================================

func TestRetriever_Search_BlendsLexicalOverlap(t *testing.T) {
	// Given: a slightly closer vector match with no shared words
	idx := &fakeIndex{cands: []store.Candidate{
		cand("/docs/a.txt", "alpha beta", 0.80),
		cand("/docs/b.txt", "budget forecast", 0.75),
	}}
	r := NewRetriever(idx, fakeEncoder{})

	// When: I search for words only the second document contains
	hits, err := r.Search(context.Background(), "budget forecast", 5, plainOptions())

	// Then: token overlap lifts it above the first
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, []string{"/docs/b.txt", "/docs/a.txt"}, hitPaths(hits))
	assert.InDelta(t, 0.7*0.75+0.3*1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.75, hits[0].VectorSimilarity, 1e-9)
	assert.InDelta(t, 1.0, hits[0].LexicalScore, 1e-9)
	assert.InDelta(t, 0.7*0.80, hits[1].Score, 1e-9)
	assert.Nil(t, hits[0].RerankScore)
}

func TestRetriever_Search_MinSimilarityDropsWeakCandidates(t *testing.T) {
	idx := &fakeIndex{cands: []store.Candidate{
		cand("/docs/strong.txt", "strong match", 0.9),
		cand("/docs/weak.txt", "weak match", 0.3),
	}}
	r := NewRetriever(idx, fakeEncoder{})
	opts := plainOptions()
	opts.MinSimilarity = 0.5

	hits, err := r.Search(context.Background(), "match", 5, opts)

	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/strong.txt"}, hitPaths(hits))
}

func TestRetriever_Search_DefaultTopKAndFetchSize(t *testing.T) {
	// Given: more candidates than the default result count
	var cands []store.Candidate
	for i := 0; i < 15; i++ {
		cands = append(cands, cand("/docs/n.txt", "note", 0.9-float64(i)*0.01))
	}
	idx := &fakeIndex{cands: cands}
	r := NewRetriever(idx, fakeEncoder{})

	// When: I search with topK 0
	hits, err := r.Search(context.Background(), "note", 0, plainOptions())

	// Then: the default count comes back from a widened fetch
	require.NoError(t, err)
	assert.Len(t, hits, DefaultTopK)
	assert.Equal(t, DefaultTopK*CandidateMultiplier, idx.lastK)
}

func TestRetriever_Search_TiesKeepANNOrder(t *testing.T) {
	idx := &fakeIndex{cands: []store.Candidate{
		cand("/docs/first.txt", "twin words", 0.5),
		cand("/docs/second.txt", "twin words", 0.5),
	}}
	r := NewRetriever(idx, fakeEncoder{})

	hits, err := r.Search(context.Background(), "twin", 5, plainOptions())

	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/first.txt", "/docs/second.txt"}, hitPaths(hits))
}

// ============================================================================
// Exact terms and template penalties
// ============================================================================

func TestRetriever_Search_ExactTermBoost(t *testing.T) {
	// Given: a slightly weaker candidate that contains the proper noun
	idx := &fakeIndex{cands: []store.Candidate{
		cand("/docs/generic.txt", "quarterly plan overview", 0.62),
		cand("/docs/acme.txt", "ACME quarterly plan", 0.60),
	}}
	r := NewRetriever(idx, fakeEncoder{})
	opts := DefaultOptions()
	opts.LexicalWeight = 0
	opts.TemplatePenalty = 0

	// When: the query names it
	hits, err := r.Search(context.Background(), "ACME quarterly plan", 5, opts)

	// Then: the boost moves it to the top and records the match
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "/docs/acme.txt", hits[0].Path)
	assert.Equal(t, []string{"ACME"}, hits[0].ExactTermsMatched)
	assert.InDelta(t, 0.60+DefaultExactTermBoost, hits[0].Score, 1e-9)
	assert.Empty(t, hits[1].ExactTermsMatched)
}

func TestRetriever_Search_ExactTermBeyondPreview(t *testing.T) {
	// Given: a chunk whose proper noun sits after the preview cutoff
	long := strings.Repeat("quarterly plan overview ", 20)
	c := cand("/docs/long.txt", long[:400], 0.60)
	c.Meta.Text = long + "prepared for ACME"
	idx := &fakeIndex{cands: []store.Candidate{
		cand("/docs/generic.txt", "quarterly plan overview", 0.62),
		c,
	}}
	r := NewRetriever(idx, fakeEncoder{})
	opts := DefaultOptions()
	opts.LexicalWeight = 0
	opts.TemplatePenalty = 0

	// When: the query names it
	hits, err := r.Search(context.Background(), "ACME quarterly plan", 5, opts)

	// Then: the full chunk text is matched and the hit still shows the preview
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "/docs/long.txt", hits[0].Path)
	assert.Equal(t, []string{"ACME"}, hits[0].ExactTermsMatched)
	assert.Equal(t, long[:400], hits[0].Preview)
}

func TestRetriever_Search_TemplatePenalty(t *testing.T) {
	// Given: a table of contents that is the closest vector match
	idx := &fakeIndex{cands: []store.Candidate{
		cand("/docs/toc.txt", "Table of contents budget", 0.9),
		cand("/docs/body.txt", "budget details", 0.8),
	}}
	r := NewRetriever(idx, fakeEncoder{})
	opts := DefaultOptions()
	opts.LexicalWeight = 0
	opts.ExactTermBoost = 0

	// When: I search
	hits, err := r.Search(context.Background(), "budget", 5, opts)

	// Then: the boilerplate chunk is pushed down and says why
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "/docs/body.txt", hits[0].Path)
	assert.Equal(t, []string{ReasonTableOfContents}, hits[1].PenaltyReasons)
	assert.InDelta(t, 0.9-DefaultTemplatePenalty, hits[1].Score, 1e-9)
	assert.Empty(t, hits[0].PenaltyReasons)
}

func TestRetriever_Search_KoreanNameRanksFirst(t *testing.T) {
	// Given: a real index with resumes, a table of contents and unrelated notes
	embedder := embed.NewEmbedder(embed.NewHashModel(128), embed.Options{})
	docs := []struct{ path, text string }{
		{"/docs/minutes.txt", "주간 회의록 예산 논의 결과"},
		{"/docs/toc.txt", "목차 이력서 작성 요령 ....... 3"},
		{"/docs/hong_resume.txt", "홍길동 이력서 학력 사항"},
		{"/docs/gana_resume.txt", "가나다 이력서 경력 요약 소프트웨어 개발"},
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.text
	}
	m, err := embedder.Encode(context.Background(), texts)
	require.NoError(t, err)

	idx := store.New(store.Config{
		Dim:                  embedder.Dimensions(),
		Model:                embedder.Model().Name(),
		ExactSearchThreshold: store.DefaultExactSearchThreshold,
	})
	items := make([]store.Item, len(docs))
	for i, d := range docs {
		items[i] = store.Item{
			Meta:   store.Meta{Path: d.path, Ext: ".txt", Preview: d.text, Tokens: store.TokenSet(d.text)},
			Vector: m.Row(i),
		}
	}
	require.NoError(t, idx.UpsertBatch(items))
	r := NewRetriever(idx, embedder)

	// When: I ask for that person's resume
	hits, err := r.Search(context.Background(), "가나다 이력서 찾아줘", 10, DefaultOptions())

	// Then: the named resume is first and the table of contents is penalised
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "/docs/gana_resume.txt", hits[0].Path)
	assert.Equal(t, []string{"가나다"}, hits[0].ExactTermsMatched)
	for _, h := range hits {
		if h.Path == "/docs/toc.txt" {
			assert.Equal(t, []string{ReasonTableOfContents}, h.PenaltyReasons)
			assert.Less(t, h.Score, hits[0].Score)
		}
	}
}

// ============================================================================
// Reranking
// ============================================================================

func rerankCandidates() *fakeIndex {
	return &fakeIndex{cands: []store.Candidate{
		cand("/docs/a.txt", "alpha", 0.9),
		cand("/docs/b.txt", "bravo", 0.8),
		cand("/docs/c.txt", "charlie", 0.7),
	}}
}

func TestRetriever_Search_RerankReordersAndFilters(t *testing.T) {
	// Given: a reranker that prefers bravo and dislikes alpha
	rr := &fakeReranker{scores: map[string]float64{"alpha": 0.2, "bravo": 0.95, "charlie": 0.6}}
	r := NewRetriever(rerankCandidates(), fakeEncoder{}, WithReranker(rr))
	opts := plainOptions()
	opts.UseRerank = true
	opts.RerankMinScore = 0.5

	// When: I search with reranking on
	hits, err := r.Search(context.Background(), "anything", 5, opts)

	// Then: rerank scores order the results and low scores are dropped
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/b.txt", "/docs/c.txt"}, hitPaths(hits))
	require.NotNil(t, hits[0].RerankScore)
	assert.InDelta(t, 0.95, *hits[0].RerankScore, 1e-9)
	assert.InDelta(t, 0.95, hits[0].Score, 1e-9)
}

func TestRetriever_Search_OnlyRerankedCandidatesSurvive(t *testing.T) {
	// Given: rerank depth 2 over three candidates
	rr := &fakeReranker{scores: map[string]float64{"alpha": 0.1, "bravo": 0.3, "charlie": 0.99}}
	r := NewRetriever(rerankCandidates(), fakeEncoder{}, WithReranker(rr))
	opts := plainOptions()
	opts.UseRerank = true
	opts.RerankDepth = 2

	// When: I ask for one result
	hits, err := r.Search(context.Background(), "anything", 1, opts)

	// Then: the reranker saw the top two only and charlie never returns
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo"}, rr.lastDocs)
	assert.Equal(t, []string{"/docs/b.txt"}, hitPaths(hits))
}

func TestRetriever_Search_RerankDepthNeverBelowTopK(t *testing.T) {
	// Given: rerank depth 2 but a request for three results
	rr := &fakeReranker{scores: map[string]float64{"alpha": 0.4, "bravo": 0.3, "charlie": 0.99}}
	r := NewRetriever(rerankCandidates(), fakeEncoder{}, WithReranker(rr))
	opts := plainOptions()
	opts.UseRerank = true
	opts.RerankDepth = 2

	// When: I search
	hits, err := r.Search(context.Background(), "anything", 3, opts)

	// Then: the depth widens to topK, so no candidate is dropped unscored
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, rr.lastDocs)
	assert.Equal(t, []string{"/docs/c.txt", "/docs/a.txt", "/docs/b.txt"}, hitPaths(hits))
}

func TestRetriever_Search_RerankFailureKeepsBlendedOrder(t *testing.T) {
	rr := &fakeReranker{err: docerrors.New(docerrors.ErrCodeRerankUnavailable, "down", nil)}
	r := NewRetriever(rerankCandidates(), fakeEncoder{}, WithReranker(rr))
	opts := plainOptions()
	opts.UseRerank = true

	hits, err := r.Search(context.Background(), "anything", 5, opts)

	require.NoError(t, err)
	assert.Equal(t, []string{"/docs/a.txt", "/docs/b.txt", "/docs/c.txt"}, hitPaths(hits))
	for _, h := range hits {
		assert.Nil(t, h.RerankScore)
	}
}

func TestRetriever_Search_RerankOffIgnoresReranker(t *testing.T) {
	rr := &fakeReranker{scores: map[string]float64{"charlie": 1}}
	r := NewRetriever(rerankCandidates(), fakeEncoder{}, WithReranker(rr))

	hits, err := r.Search(context.Background(), "anything", 5, plainOptions())

	require.NoError(t, err)
	assert.Len(t, hits, 3)
	assert.Nil(t, rr.lastDocs)
}

// ============================================================================
// Query embedding failure
// ============================================================================

func TestRetriever_Search_LexicalFallback(t *testing.T) {
	// Given: a broken encoder and lexical fallback enabled
	idx := &fakeIndex{cands: []store.Candidate{
		cand("/docs/a.txt", "unrelated text", 0.9),
		cand("/docs/b.txt", "budget forecast", 0.8),
	}}
	r := NewRetriever(idx, fakeEncoder{err: errEncoderDown}, WithLexicalFallback(true))

	// When: I search
	hits, err := r.Search(context.Background(), "budget", 5, plainOptions())

	// Then: token overlap alone answers the query
	require.NoError(t, err)
	assert.True(t, idx.lexicalCalled)
	require.Len(t, hits, 1)
	assert.Equal(t, "/docs/b.txt", hits[0].Path)
	assert.Zero(t, hits[0].VectorSimilarity)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestRetriever_Search_EncoderFailureWithoutFallback(t *testing.T) {
	idx := &fakeIndex{cands: []store.Candidate{cand("/docs/b.txt", "budget", 0.8)}}
	r := NewRetriever(idx, fakeEncoder{err: errEncoderDown})

	_, err := r.Search(context.Background(), "budget", 5, plainOptions())

	require.Error(t, err)
	assert.Equal(t, docerrors.ErrCodeEmbeddingFailed, docerrors.GetCode(err))
	assert.False(t, idx.lexicalCalled)
}

func TestRetriever_Search_EncoderTimeoutKeepsCode(t *testing.T) {
	timeout := docerrors.New(docerrors.ErrCodeEmbedTimeout, "timed out", nil)
	r := NewRetriever(&fakeIndex{}, fakeEncoder{err: timeout})

	_, err := r.Search(context.Background(), "budget", 5, plainOptions())

	assert.Equal(t, docerrors.ErrCodeEmbedTimeout, docerrors.GetCode(err))
}

func TestRetriever_SetIndex(t *testing.T) {
	r := NewRetriever(&fakeIndex{}, fakeEncoder{})
	hits, err := r.Search(context.Background(), "note", 5, plainOptions())
	require.NoError(t, err)
	assert.Empty(t, hits)

	r.SetIndex(&fakeIndex{cands: []store.Candidate{cand("/docs/n.txt", "note", 0.5)}})
	hits, err = r.Search(context.Background(), "note", 5, plainOptions())
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

// ============================================================================
// Options
// ============================================================================

func TestOptions_FetchAndRerankDepth(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 10*CandidateMultiplier, opts.fetchSize(10))

	opts.UseRerank = true
	assert.Equal(t, DefaultRerankDepth*CandidateMultiplier, opts.fetchSize(10))
	assert.Equal(t, DefaultRerankDepth, opts.rerankDepth(5))
	assert.Equal(t, 50, opts.rerankDepth(50))
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, DefaultOptions().Validate())

	bad := DefaultOptions()
	bad.RerankDepth = -1
	assert.Error(t, bad.Validate())

	bad = DefaultOptions()
	bad.TemplatePenalty = -0.1
	assert.Error(t, bad.Validate())
}
