package store

import (
	"sort"
)

// LexicalOverlap is |Q ∩ D| / |Q| over distinct query tokens.
func LexicalOverlap(query []string, doc []string) float64 {
	q := Dedup(query)
	if len(q) == 0 || len(doc) == 0 {
		return 0
	}
	d := make(map[string]struct{}, len(doc))
	for _, t := range doc {
		d[t] = struct{}{}
	}
	hit := 0
	for _, t := range q {
		if _, ok := d[t]; ok {
			hit++
		}
	}
	return float64(hit) / float64(len(q))
}

// LexicalSearch ranks rows by token overlap with queryTokens using an
// inverted index over stored token sets. Rows with no overlap are
// omitted. Candidate.Similarity is left zero.
func (idx *Index) LexicalSearch(queryTokens []string, k int) []Candidate {
	q := Dedup(queryTokens)
	if len(q) == 0 || k <= 0 {
		return []Candidate{}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	postings := idx.lexicalPostings()
	hits := make(map[int]int)
	for _, t := range q {
		for _, docID := range postings[t] {
			hits[docID]++
		}
	}

	cands := make([]Candidate, 0, len(hits))
	for docID := range hits {
		cands = append(cands, Candidate{DocID: docID, Meta: idx.metas[docID]})
	}
	sort.Slice(cands, func(i, j int) bool {
		hi, hj := hits[cands[i].DocID], hits[cands[j].DocID]
		if hi != hj {
			return hi > hj
		}
		return cands[i].DocID < cands[j].DocID
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	for i := range cands {
		cands[i].Rank = i
	}
	return cands
}

// lexicalPostings builds the inverted index on first use after a
// mutation. Callers hold idx.mu for reading; writers clear postings
// under the write lock.
func (idx *Index) lexicalPostings() map[string][]int {
	idx.lexMu.Lock()
	defer idx.lexMu.Unlock()
	if idx.postings != nil {
		return idx.postings
	}
	postings := make(map[string][]int)
	for docID, m := range idx.metas {
		for _, t := range Dedup(m.Tokens) {
			postings[t] = append(postings[t], docID)
		}
	}
	idx.postings = postings
	return postings
}
