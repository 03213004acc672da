package store

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
)

// graph is a hierarchical navigable small-world graph over unit vectors,
// keyed by dense node ids. Adding the same vectors in the same order with
// the same seed always yields the same graph: levels come from a seeded
// source, neighbour lists are ordered slices and every tie breaks on node id.
type graph struct {
	dim     int
	m       int // neighbours kept per node above layer 0
	m0      int // neighbours kept per node on layer 0
	efBuild int
	ml      float64
	rng     *rand.Rand

	vecs     []float32
	links    [][][]int32 // node -> layer -> neighbours
	entry    int32
	maxLevel int
}

func newHNSW(dim, m, efBuild int, seed int64) *graph {
	return &graph{
		dim:     dim,
		m:       m,
		m0:      2 * m,
		efBuild: max(efBuild, m),
		ml:      1 / math.Log(float64(max(m, 2))),
		rng:     rand.New(rand.NewSource(seed)),
		entry:   -1,
	}
}

// Len returns the number of nodes, orphaned ones included.
func (g *graph) Len() int { return len(g.links) }

func (g *graph) vec(id int32) []float32 {
	return g.vecs[int(id)*g.dim : (int(id)+1)*g.dim]
}

func (g *graph) dist(q []float32, id int32) float32 {
	v := g.vec(id)
	var dot float32
	for i := range q {
		dot += q[i] * v[i]
	}
	return 1 - dot
}

func (g *graph) randomLevel() int {
	return int(-math.Log(1-g.rng.Float64()) * g.ml)
}

func (g *graph) maxLinks(layer int) int {
	if layer == 0 {
		return g.m0
	}
	return g.m
}

// Add inserts unit vector v and returns its node id.
func (g *graph) Add(v []float32) int32 {
	id := int32(len(g.links))
	level := g.randomLevel()
	g.vecs = append(g.vecs, v...)
	g.links = append(g.links, make([][]int32, level+1))

	if g.entry < 0 {
		g.entry = id
		g.maxLevel = level
		return id
	}

	ep := g.entry
	for l := g.maxLevel; l > level; l-- {
		ep = g.searchLayer(v, []int32{ep}, 1, l)[0].id
	}
	for l := min(level, g.maxLevel); l >= 0; l-- {
		found := g.searchLayer(v, []int32{ep}, g.efBuild, l)
		neighbours := g.selectNeighbours(found, g.maxLinks(l))
		g.links[id][l] = neighbours
		for _, n := range neighbours {
			g.connect(n, id, l)
		}
		ep = found[0].id
	}
	if level > g.maxLevel {
		g.entry = id
		g.maxLevel = level
	}
	return id
}

// connect links n to id on layer l, dropping n's farthest neighbour when
// the list overflows.
func (g *graph) connect(n, id int32, l int) {
	g.links[n][l] = append(g.links[n][l], id)
	limit := g.maxLinks(l)
	if len(g.links[n][l]) <= limit {
		return
	}
	base := g.vec(n)
	cands := make([]scoredNode, len(g.links[n][l]))
	for i, c := range g.links[n][l] {
		cands[i] = scoredNode{id: c, dist: g.dist(base, c)}
	}
	sortScored(cands)
	kept := g.links[n][l][:0]
	for _, c := range cands[:limit] {
		kept = append(kept, c.id)
	}
	g.links[n][l] = kept
}

// selectNeighbours keeps candidates closer to the base than to any already
// kept neighbour, then tops up with the nearest of the rest. cands must be
// sorted by distance.
func (g *graph) selectNeighbours(cands []scoredNode, limit int) []int32 {
	out := make([]int32, 0, limit)
	var skipped []int32
	for _, c := range cands {
		if len(out) >= limit {
			break
		}
		keep := true
		for _, kept := range out {
			if g.dist(g.vec(c.id), kept) < c.dist {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, c.id)
		} else {
			skipped = append(skipped, c.id)
		}
	}
	for _, id := range skipped {
		if len(out) >= limit {
			break
		}
		out = append(out, id)
	}
	return out
}

// Search returns up to k node ids nearest to unit vector q, exploring at
// least ef candidates on the bottom layer.
func (g *graph) Search(q []float32, k, ef int) []int32 {
	if g.entry < 0 || k <= 0 {
		return nil
	}
	ep := g.entry
	for l := g.maxLevel; l > 0; l-- {
		ep = g.searchLayer(q, []int32{ep}, 1, l)[0].id
	}
	found := g.searchLayer(q, []int32{ep}, max(ef, k), 0)
	if len(found) > k {
		found = found[:k]
	}
	ids := make([]int32, len(found))
	for i, f := range found {
		ids[i] = f.id
	}
	return ids
}

// searchLayer is a best-first beam search of width ef on layer l. The
// result is sorted by distance, ties by id.
func (g *graph) searchLayer(q []float32, entries []int32, ef, l int) []scoredNode {
	visited := make(map[int32]struct{}, ef*4)
	cands := &nearHeap{}
	best := &farHeap{}
	for _, e := range entries {
		visited[e] = struct{}{}
		s := scoredNode{id: e, dist: g.dist(q, e)}
		heap.Push(cands, s)
		heap.Push(best, s)
	}

	for cands.Len() > 0 {
		c := heap.Pop(cands).(scoredNode)
		if best.Len() >= ef && (*best)[0].before(c) {
			break
		}
		for _, n := range g.links[c.id][l] {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			s := scoredNode{id: n, dist: g.dist(q, n)}
			if best.Len() < ef || s.before((*best)[0]) {
				heap.Push(cands, s)
				heap.Push(best, s)
				if best.Len() > ef {
					heap.Pop(best)
				}
			}
		}
	}

	out := []scoredNode(*best)
	sortScored(out)
	return out
}

type scoredNode struct {
	id   int32
	dist float32
}

func (a scoredNode) before(b scoredNode) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.id < b.id
}

func sortScored(s []scoredNode) {
	sort.Slice(s, func(i, j int) bool { return s[i].before(s[j]) })
}

// nearHeap pops the closest node first.
type nearHeap []scoredNode

func (h nearHeap) Len() int           { return len(h) }
func (h nearHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h nearHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *nearHeap) Push(x any)        { *h = append(*h, x.(scoredNode)) }
func (h *nearHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}

// farHeap pops the farthest node first.
type farHeap []scoredNode

func (h farHeap) Len() int           { return len(h) }
func (h farHeap) Less(i, j int) bool { return h[j].before(h[i]) }
func (h farHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *farHeap) Push(x any)        { *h = append(*h, x.(scoredNode)) }
func (h *farHeap) Pop() any {
	old := *h
	x := old[len(old)-1]
	*h = old[:len(old)-1]
	return x
}
