package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
)

var testModel = embed.NewHashModel(64)

func vec(t *testing.T, text string) []float32 {
	t.Helper()
	out, err := testModel.Encode(context.Background(), []string{text})
	require.NoError(t, err)
	return out[0]
}

func item(t *testing.T, path string, chunkID int, text string) Item {
	t.Helper()
	return Item{
		Meta: Meta{
			Path:    path,
			ChunkID: chunkID,
			Ext:     ".txt",
			Preview: text,
			Tokens:  TokenSet(text),
			Size:    int64(len(text)),
			Mtime:   1700000000.25,
			Ctime:   1700000000.5,
			Owner:   "tester",
		},
		Vector: vec(t, text),
	}
}

// corpusIndex builds an index over n generated documents with two chunks each.
func corpusIndex(t *testing.T, dtype embed.DType, n int) *Index {
	t.Helper()
	idx := New(Config{Dim: testModel.Dimensions(), DType: dtype, Model: testModel.Name()})
	var items []Item
	for i := 0; i < n; i++ {
		path := fmt.Sprintf("/corpus/doc%03d.txt", i)
		items = append(items,
			item(t, path, 0, fmt.Sprintf("document %d about topic %d and subject %d", i, i%7, i%3)),
			item(t, path, 1, fmt.Sprintf("appendix %d with notes on area %d", i, i%5)),
		)
	}
	require.NoError(t, idx.UpsertBatch(items))
	return idx
}

// clusteredItems returns clusters*perCluster rows of dim floats grouped
// tightly around random centres, interleaved so consecutive rows belong to
// different clusters. Row i belongs to cluster i%clusters.
func clusteredItems(rng *rand.Rand, clusters, perCluster, dim int) (items []Item, centres [][]float32) {
	centres = make([][]float32, clusters)
	for c := range centres {
		centres[c] = jitter(rng, make([]float32, dim), 1)
	}
	for i := 0; i < clusters*perCluster; i++ {
		c := i % clusters
		items = append(items, Item{
			Meta: Meta{
				Path:    fmt.Sprintf("/c%03d/m%04d.txt", c, i),
				Ext:     ".txt",
				Preview: fmt.Sprintf("row %d", i),
				Text:    fmt.Sprintf("row %d of cluster %d", i, c),
				Tokens:  []string{"row"},
			},
			Vector: jitter(rng, centres[c], 0.06),
		})
	}
	return items, centres
}

// jitter returns base plus gaussian noise of the given scale per dimension.
func jitter(rng *rand.Rand, base []float32, scale float64) []float32 {
	out := make([]float32, len(base))
	for i, v := range base {
		out[i] = v + float32(rng.NormFloat64()*scale)
	}
	return out
}

// exactTopK returns the positions in items of the k rows most similar to q
// by brute force, ties broken by position.
func exactTopK(items []Item, q []float32, k int) []int {
	qn := norm(q)
	sims := make([]float64, len(items))
	order := make([]int, len(items))
	for i, it := range items {
		sims[i] = cosine(q, qn, it.Vector, norm(it.Vector))
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return sims[order[a]] > sims[order[b]] })
	return order[:min(k, len(order))]
}
