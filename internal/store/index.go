package store

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// Graph defaults
const (
	DefaultM                    = 24
	DefaultEfSearch             = 128
	DefaultExactSearchThreshold = 4096
	DefaultSeed                 = 42
)

// Meta is the per-row metadata stored alongside each embedding.
type Meta struct {
	Path      string            `json:"path"`
	ChunkID   int               `json:"chunk_id"`
	Ext       string            `json:"ext"`
	Preview   string            `json:"preview"`
	Text      string            `json:"text,omitempty"`
	Heading   string            `json:"heading,omitempty"`
	Tokens    []string          `json:"tokens"`
	Size      int64             `json:"size"`
	Mtime     float64           `json:"mtime"`
	Ctime     float64           `json:"ctime"`
	Owner     string            `json:"owner"`
	Drive     string            `json:"drive"`
	ExtraMeta map[string]string `json:"extra_meta,omitempty"`
}

// FullText returns the whole chunk text. Text is only stored when the
// chunk is longer than its preview.
func (m Meta) FullText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Preview
}

// Item is one row to insert.
type Item struct {
	Meta
	Vector []float32
}

// Candidate is a search result. Similarity is the exact cosine between
// the query and the stored row.
type Candidate struct {
	DocID      int
	Rank       int
	Similarity float64
	Meta       Meta
}

// Config fixes the shape and graph parameters of an Index.
type Config struct {
	Dim   int
	DType embed.DType
	Model string

	M                    int
	EfSearch             int
	ExactSearchThreshold int
	Seed                 int64
}

// Stats describes the index for status output.
type Stats struct {
	Rows       int    `json:"rows"`
	Documents  int    `json:"documents"`
	Dim        int    `json:"dim"`
	DType      string `json:"dtype"`
	Model      string `json:"model"`
	GraphNodes int    `json:"graph_nodes"`
	Orphans    int    `json:"orphans"`
}

type rowKey struct {
	path    string
	chunkID int
}

// Index holds the embedding matrix, parallel metadata and an HNSW graph
// over the rows. Row i of the matrix is doc_id i; deletes compact the
// arrays so doc ids stay dense. All mutation happens under the write
// lock, so searches never see a half-applied batch.
type Index struct {
	mu  sync.RWMutex
	cfg Config

	vectors []float32
	norms   []float64
	metas   []Meta
	keys    map[rowKey]int

	graph   *graph
	docNode []int32 // doc id -> graph node, -1 when not in the graph
	nodeDoc map[int32]int
	// graphStale is set once upserts or deletes leave the graph different
	// from a fresh doc-id-order build of the same rows.
	graphStale bool

	lexMu    sync.Mutex
	postings map[string][]int

	version      uint64
	savedVersion uint64
}

// New creates an empty index.
func New(cfg Config) *Index {
	if cfg.DType == "" {
		cfg.DType = embed.FP32
	}
	if cfg.M <= 0 {
		cfg.M = DefaultM
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}
	idx := &Index{cfg: cfg}
	idx.reset()
	return idx
}

func (idx *Index) reset() {
	idx.vectors = nil
	idx.norms = nil
	idx.metas = nil
	idx.keys = make(map[rowKey]int)
	idx.docNode = nil
	idx.newGraph()
	idx.postings = nil
}

func (idx *Index) newGraph() {
	idx.graph = newHNSW(idx.cfg.Dim, idx.cfg.M, idx.cfg.EfSearch, idx.cfg.Seed)
	idx.nodeDoc = make(map[int32]int)
	idx.graphStale = false
}

// Dim returns the vector width.
func (idx *Index) Dim() int { return idx.cfg.Dim }

// DType returns the storage precision.
func (idx *Index) DType() embed.DType { return idx.cfg.DType }

// Model returns the model name the vectors were produced with.
func (idx *Index) Model() string { return idx.cfg.Model }

// Len returns the number of rows.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.metas)
}

// Dirty reports whether the index changed since it was loaded or saved.
func (idx *Index) Dirty() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.version != idx.savedVersion
}

func (idx *Index) touch() {
	idx.version++
	idx.postings = nil
}

// Build replaces the whole index with rows of m and metas.
func (idx *Index) Build(m embed.Matrix, metas []Meta) error {
	if m.Rows != len(metas) {
		return docerrors.InternalError(fmt.Sprintf("build: %d rows but %d metadata entries", m.Rows, len(metas)), nil)
	}
	if m.Rows > 0 && m.Dim != idx.cfg.Dim {
		return dimensionMismatch(idx.cfg.Dim, m.Dim)
	}
	seen := make(map[rowKey]struct{}, len(metas))
	for _, meta := range metas {
		k := rowKey{meta.Path, meta.ChunkID}
		if _, dup := seen[k]; dup {
			return docerrors.ValidationError(fmt.Sprintf("duplicate row %s#%d", meta.Path, meta.ChunkID), nil)
		}
		seen[k] = struct{}{}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.reset()
	for i, meta := range metas {
		idx.appendRow(meta, m.Row(i))
	}
	idx.touch()
	return nil
}

// UpsertBatch adds rows, replacing any row with the same path and chunk id.
func (idx *Index) UpsertBatch(items []Item) error {
	if err := idx.checkItems(items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, it := range items {
		idx.upsertRow(it)
	}
	idx.touch()
	return nil
}

// ReplaceDocuments drops every existing row of each path present in
// items and inserts items, in one write. Used when a document's content
// changed and its chunk count may have shrunk.
func (idx *Index) ReplaceDocuments(items []Item) error {
	if err := idx.checkItems(items); err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	paths := make(map[string]struct{})
	for _, it := range items {
		paths[it.Path] = struct{}{}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.deleteLocked(paths)
	for _, it := range items {
		idx.upsertRow(it)
	}
	idx.touch()
	return nil
}

// DeletePaths removes all rows of the given paths and compacts the arrays.
// Returns the number of rows removed.
func (idx *Index) DeletePaths(paths []string) int {
	if len(paths) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := idx.deleteLocked(set)
	if removed > 0 {
		idx.touch()
	}
	return removed
}

func (idx *Index) checkItems(items []Item) error {
	for _, it := range items {
		if len(it.Vector) != idx.cfg.Dim {
			return dimensionMismatch(idx.cfg.Dim, len(it.Vector))
		}
	}
	return nil
}

func (idx *Index) upsertRow(it Item) {
	k := rowKey{it.Path, it.ChunkID}
	docID, exists := idx.keys[k]
	if !exists {
		idx.appendRow(it.Meta, it.Vector)
		return
	}

	row := idx.row(docID)
	copy(row, it.Vector)
	if idx.cfg.DType == embed.FP16 {
		embed.RoundFP16(row)
	}
	idx.norms[docID] = norm(row)
	idx.metas[docID] = it.Meta

	// Lazy deletion: the old node stays in the graph unmapped.
	if node := idx.docNode[docID]; node >= 0 {
		delete(idx.nodeDoc, node)
	}
	idx.graphStale = true
	idx.docNode[docID] = idx.addNode(docID)
	idx.maybeRebuildGraph()
}

func (idx *Index) appendRow(meta Meta, vec []float32) {
	docID := len(idx.metas)
	start := len(idx.vectors)
	idx.vectors = append(idx.vectors, vec...)
	row := idx.vectors[start : start+idx.cfg.Dim]
	if idx.cfg.DType == embed.FP16 {
		embed.RoundFP16(row)
	}
	idx.norms = append(idx.norms, norm(row))
	idx.metas = append(idx.metas, meta)
	idx.keys[rowKey{meta.Path, meta.ChunkID}] = docID
	idx.docNode = append(idx.docNode, idx.addNode(docID))
}

// addNode inserts a normalized copy of row docID into the graph.
// Zero vectors are kept out of the graph; exact scans still see them.
func (idx *Index) addNode(docID int) int32 {
	n := idx.norms[docID]
	if n == 0 {
		return -1
	}
	row := idx.row(docID)
	vec := make([]float32, len(row))
	for i, v := range row {
		vec[i] = float32(float64(v) / n)
	}
	node := idx.graph.Add(vec)
	idx.nodeDoc[node] = docID
	return node
}

func (idx *Index) deleteLocked(paths map[string]struct{}) int {
	keep := 0
	removed := 0
	dim := idx.cfg.Dim
	for docID, meta := range idx.metas {
		if _, drop := paths[meta.Path]; drop {
			delete(idx.keys, rowKey{meta.Path, meta.ChunkID})
			if node := idx.docNode[docID]; node >= 0 {
				delete(idx.nodeDoc, node)
			}
			removed++
			continue
		}
		if keep != docID {
			copy(idx.vectors[keep*dim:(keep+1)*dim], idx.vectors[docID*dim:(docID+1)*dim])
			idx.norms[keep] = idx.norms[docID]
			idx.metas[keep] = meta
			idx.docNode[keep] = idx.docNode[docID]
			idx.keys[rowKey{meta.Path, meta.ChunkID}] = keep
			if node := idx.docNode[keep]; node >= 0 {
				idx.nodeDoc[node] = keep
			}
		}
		keep++
	}
	if removed == 0 {
		return 0
	}
	for i := keep; i < len(idx.metas); i++ {
		idx.metas[i] = Meta{}
	}
	idx.vectors = idx.vectors[:keep*dim]
	idx.norms = idx.norms[:keep]
	idx.metas = idx.metas[:keep]
	idx.docNode = idx.docNode[:keep]
	idx.graphStale = true
	idx.maybeRebuildGraph()
	return removed
}

// maybeRebuildGraph rebuilds the graph once orphaned nodes outnumber live ones.
func (idx *Index) maybeRebuildGraph() {
	orphans := idx.graph.Len() - len(idx.nodeDoc)
	if orphans > 64 && orphans > len(idx.nodeDoc) {
		idx.rebuildGraph()
	}
}

// settleGraph rebuilds a stale graph in doc-id order, which is how Load
// builds it, so a saved index and its reload search the same graph.
func (idx *Index) settleGraph() {
	if idx.graphStale {
		idx.rebuildGraph()
	}
}

func (idx *Index) rebuildGraph() {
	idx.newGraph()
	for docID := range idx.metas {
		idx.docNode[docID] = idx.addNode(docID)
	}
}

func (idx *Index) row(docID int) []float32 {
	return idx.vectors[docID*idx.cfg.Dim : (docID+1)*idx.cfg.Dim]
}

// Search returns the k rows most similar to query by cosine. Small
// indexes are scanned exactly; larger ones are searched through the
// graph and re-scored exactly from the matrix. Ties break by doc id.
//
// The graph search keeps a beam of at least EfSearch nodes, widened by
// the number of orphaned nodes so k live rows survive the orphan filter.
func (idx *Index) Search(query []float32, k int) ([]Candidate, error) {
	if len(query) != idx.cfg.Dim {
		return nil, dimensionMismatch(idx.cfg.Dim, len(query))
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	count := len(idx.metas)
	if k <= 0 || count == 0 {
		return []Candidate{}, nil
	}
	qn := norm(query)

	var docIDs []int
	if count <= idx.cfg.ExactSearchThreshold || qn == 0 || len(idx.nodeDoc) == 0 {
		docIDs = make([]int, count)
		for i := range docIDs {
			docIDs[i] = i
		}
	} else {
		q := make([]float32, len(query))
		for i, v := range query {
			q[i] = float32(float64(v) / qn)
		}
		orphans := idx.graph.Len() - len(idx.nodeDoc)
		fetch := min(k+orphans, idx.graph.Len())
		seen := make(map[int]struct{}, fetch)
		for _, node := range idx.graph.Search(q, fetch, idx.cfg.EfSearch+orphans) {
			docID, ok := idx.nodeDoc[node]
			if !ok {
				continue
			}
			if _, dup := seen[docID]; dup {
				continue
			}
			seen[docID] = struct{}{}
			docIDs = append(docIDs, docID)
		}
	}

	cands := make([]Candidate, 0, len(docIDs))
	for _, docID := range docIDs {
		cands = append(cands, Candidate{
			DocID:      docID,
			Similarity: cosine(query, qn, idx.row(docID), idx.norms[docID]),
			Meta:       idx.metas[docID],
		})
	}
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Similarity != cands[j].Similarity {
			return cands[i].Similarity > cands[j].Similarity
		}
		return cands[i].DocID < cands[j].DocID
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	for i := range cands {
		cands[i].Rank = i
	}
	return cands, nil
}

// Similarity returns the exact cosine between query and row docID.
func (idx *Index) Similarity(query []float32, docID int) float64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if docID < 0 || docID >= len(idx.metas) || len(query) != idx.cfg.Dim {
		return 0
	}
	return cosine(query, norm(query), idx.row(docID), idx.norms[docID])
}

// HasPath reports whether any row belongs to path.
func (idx *Index) HasPath(path string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.keys[rowKey{path, 0}]
	if ok {
		return true
	}
	for k := range idx.keys {
		if k.path == path {
			return true
		}
	}
	return false
}

// Paths returns the sorted distinct document paths.
func (idx *Index) Paths() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	set := make(map[string]struct{})
	for _, m := range idx.metas {
		set[m.Path] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// RowCounts returns the number of rows per document path.
func (idx *Index) RowCounts() map[string]int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make(map[string]int)
	for _, m := range idx.metas {
		out[m.Path]++
	}
	return out
}

// Entry returns a copy of the metadata of docID.
func (idx *Index) Entry(docID int) (Meta, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if docID < 0 || docID >= len(idx.metas) {
		return Meta{}, false
	}
	return idx.metas[docID], true
}

// Stats returns counts for status output.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docs := make(map[string]struct{})
	for _, m := range idx.metas {
		docs[m.Path] = struct{}{}
	}
	return Stats{
		Rows:       len(idx.metas),
		Documents:  len(docs),
		Dim:        idx.cfg.Dim,
		DType:      string(idx.cfg.DType),
		Model:      idx.cfg.Model,
		GraphNodes: idx.graph.Len(),
		Orphans:    idx.graph.Len() - len(idx.nodeDoc),
	}
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(q []float32, qn float64, row []float32, rn float64) float64 {
	if qn == 0 || rn == 0 {
		return 0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(row[i])
	}
	return dot / (qn * rn)
}

func dimensionMismatch(want, got int) error {
	return docerrors.New(docerrors.ErrCodeDimensionMismatch,
		fmt.Sprintf("vector has %d dimensions, index expects %d", got, want), nil)
}
