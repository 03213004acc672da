// Package index runs the indexing pipeline and keeps it current in watch mode.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/NOVA-ALLRounder/main-sub002/internal/cache"
	"github.com/NOVA-ALLRounder/main-sub002/internal/chunk"
	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/drift"
	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/extract"
	"github.com/NOVA-ALLRounder/main-sub002/internal/incremental"
	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
	"github.com/NOVA-ALLRounder/main-sub002/internal/scanner"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

// embedGroupChunks bounds how many chunks are embedded and upserted per
// step, so progress moves and memory stays flat on large corpora.
const embedGroupChunks = 512

// RunOptions configures one pipeline run.
type RunOptions struct {
	// Force discards the scan state, the chunk cache and the index. The
	// cache is cleared only once the rebuilt index is on disk.
	Force bool
}

// RunReport is the outcome of one pipeline run.
type RunReport struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Scanned counts candidates after extension filtering, allowed or not.
	Scanned    int                   `json:"scanned"`
	Allowed    int                   `json:"allowed"`
	Denied     map[policy.Reason]int `json:"denied"`
	StatFailed int                   `json:"stat_failed"`

	// Unchanged were skipped by size and mtime; ContentUnchanged were
	// re-read but hashed to the cached doc_hash.
	Unchanged        int `json:"unchanged"`
	ContentUnchanged int `json:"content_unchanged"`
	Added            int `json:"added"`
	Modified         int `json:"modified"`
	Deleted          int `json:"deleted"`

	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Failed    int `json:"failed"`
	Warnings  int `json:"warnings"`

	Rebuilt bool            `json:"rebuilt"`
	Saved   bool            `json:"saved"`
	Stages  ui.StageTimings `json:"stages"`
}

// DeniedTotal sums Denied.
func (r *RunReport) DeniedTotal() int {
	n := 0
	for _, c := range r.Denied {
		n += c
	}
	return n
}

// RunnerDependencies are the collaborators of a Runner. Config and
// Embedder are required; the rest default from Config.
type RunnerDependencies struct {
	Config   *config.Config
	Embedder *embed.Embedder

	Renderer  ui.Renderer
	Cache     cache.Cache
	Oracle    policy.Oracle
	Extractor *extract.Extractor

	// OnIndex is called whenever the live index object is replaced.
	OnIndex func(*store.Index)
}

// Runner executes the pipeline: scan, policy, incremental filter, drift,
// extract, chunk, embed, upsert and persist. One run executes at a time.
type Runner struct {
	mu sync.Mutex

	cfg       *config.Config
	embedder  *embed.Embedder
	renderer  ui.Renderer
	cache     cache.Cache
	ownsCache bool
	oracle    policy.Oracle
	extractor *extract.Extractor
	chunker   *chunk.Chunker
	onIndex   func(*store.Index)

	idxMu sync.RWMutex
	idx   *store.Index
}

// NewRunner creates a Runner. When deps.Cache is nil the configured
// backend is opened and closed again by Close.
func NewRunner(deps RunnerDependencies) (*Runner, error) {
	if deps.Config == nil {
		return nil, errors.New("config is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if len(deps.Config.Paths.Roots) == 0 {
		return nil, docerrors.ConfigError("no corpus roots configured", nil)
	}

	r := &Runner{
		cfg:       deps.Config,
		embedder:  deps.Embedder,
		renderer:  deps.Renderer,
		cache:     deps.Cache,
		oracle:    deps.Oracle,
		extractor: deps.Extractor,
		onIndex:   deps.OnIndex,
		chunker: chunk.New(chunk.Options{
			MaxTokens:     deps.Config.Chunking.MaxTokens,
			OverlapTokens: deps.Config.Chunking.OverlapTokens,
		}),
	}
	if r.renderer == nil {
		r.renderer = ui.NopRenderer{}
	}
	if r.extractor == nil {
		r.extractor = extract.New()
	}
	if r.oracle == nil {
		oracle, err := NewOracle(deps.Config)
		if err != nil {
			return nil, docerrors.ConfigError("invalid policy", err)
		}
		r.oracle = oracle
	}
	if r.cache == nil {
		c, err := cache.Open(deps.Config.Cache.Backend, deps.Config.ResolveDataDir())
		if err != nil {
			return nil, err
		}
		r.cache = c
		r.ownsCache = true
	}
	return r, nil
}

// SetRenderer replaces the progress renderer for subsequent runs.
func (r *Runner) SetRenderer(rd ui.Renderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rd == nil {
		rd = ui.NopRenderer{}
	}
	r.renderer = rd
}

// SetOracle replaces the policy oracle for subsequent runs. Paths the new
// oracle denies are removed on the next run.
func (r *Runner) SetOracle(o policy.Oracle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.oracle = o
}

// Close releases the cache if the Runner opened it.
func (r *Runner) Close() error {
	if r.ownsCache {
		return r.cache.Close()
	}
	return nil
}

// Index returns the live index, loading it from disk on first use. It
// returns nil when nothing has been indexed yet.
func (r *Runner) Index() *store.Index {
	r.idxMu.RLock()
	idx := r.idx
	r.idxMu.RUnlock()
	if idx != nil {
		return idx
	}
	idx, _, err := r.loadIndex(false)
	if err != nil || idx.Len() == 0 {
		return nil
	}
	r.setIndex(idx)
	return idx
}

func (r *Runner) setIndex(idx *store.Index) {
	r.idxMu.Lock()
	changed := r.idx != idx
	r.idx = idx
	r.idxMu.Unlock()
	if changed && r.onIndex != nil {
		r.onIndex(idx)
	}
}

// loadIndex returns the index to update and whether it is a fresh
// rebuild. A corrupt pair or a model change starts a rebuild.
func (r *Runner) loadIndex(force bool) (*store.Index, bool, error) {
	want := StoreConfig(r.cfg, r.embedder)
	if force {
		return store.New(want), true, nil
	}

	r.idxMu.RLock()
	live := r.idx
	r.idxMu.RUnlock()
	if live != nil {
		return live, false, nil
	}

	idx, err := store.Load(IndexDir(r.cfg), GraphConfig(r.cfg))
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.New(want), false, nil
	case docerrors.GetCode(err) == docerrors.ErrCodeIndexLocked:
		return nil, false, err
	case err != nil:
		slog.LogAttrs(context.Background(), slog.LevelWarn, "index_rebuild_required", docerrors.LogAttrs(err)...)
		return store.New(want), true, nil
	}

	if idx.Dim() != want.Dim || idx.DType() != want.DType || idx.Model() != want.Model {
		slog.Warn("index_model_changed",
			slog.String("index_model", idx.Model()),
			slog.Int("index_dim", idx.Dim()),
			slog.String("index_dtype", string(idx.DType())),
			slog.String("model", want.Model),
			slog.Int("dim", want.Dim),
			slog.String("dtype", string(want.DType)))
		return store.New(want), true, nil
	}
	return idx, false, nil
}

// document is one pending file after extraction.
type document struct {
	file      scanner.ScannedFile
	hash      string
	chunks    []chunk.Chunk
	unchanged bool
	skipped   bool // unsupported format
	err       error
}

type cacheUpdate struct {
	path   string
	hash   string
	chunks int
}

// Run executes the pipeline once.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	report := &RunReport{RunID: uuid.NewString(), StartedAt: start, Denied: map[policy.Reason]int{}}
	log := slog.With(slog.String("run_id", report.RunID))

	idx, rebuild, err := r.loadIndex(opts.Force)
	if err != nil {
		return nil, err
	}
	report.Rebuilt = rebuild

	statePath := StatePath(r.cfg)
	state := incremental.Load(statePath)
	if rebuild {
		state = incremental.NewState()
	}
	// A rebuild over a saved pair must not replace it with a partial index.
	keepPrevious := rebuild && store.Exists(IndexDir(r.cfg))
	if !rebuild {
		checker := NewConsistencyChecker(idx, r.cache)
		check, err := checker.Check()
		if err != nil {
			return nil, err
		}
		if err := checker.Repair(check.Inconsistencies); err != nil {
			return nil, err
		}
	}

	// Scan
	scanStart := time.Now()
	log.Info("index_scan_started", slog.String("roots", strings.Join(r.cfg.Paths.Roots, ",")), slog.Bool("force", opts.Force))
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: "scanning " + strings.Join(r.cfg.Paths.Roots, ", ")})

	res, err := scanner.New(ScannerOptions(r.cfg, r.oracle)).Scan(ctx)
	if err != nil {
		return nil, err
	}
	allowed := res.Allowed()
	report.Scanned = len(res.Files)
	report.Allowed = len(allowed)
	report.Denied = res.DeniedByReason()
	report.StatFailed = res.StatFailed

	needs, cached := incremental.Filter(allowed, state, r.cfg.MtimeTolerance())
	report.Unchanged = len(cached)

	known, err := r.cache.KnownPaths()
	if err != nil {
		return nil, err
	}
	if opts.Force {
		known = map[string]struct{}{}
	}
	byPath := make(map[string]scanner.ScannedFile, len(allowed))
	live := make([]string, 0, len(allowed))
	for _, f := range allowed {
		byPath[f.Path] = f
		live = append(live, f.Path)
	}
	dirty := make(map[string]struct{}, len(needs))
	for _, f := range needs {
		dirty[f.Path] = struct{}{}
	}
	st := drift.DetectWithIncremental(live, known, dirty)
	report.Added = len(st.Added)
	report.Modified = len(st.Modified)
	report.Deleted = len(st.Deleted)

	pending := st.Pending()
	for _, p := range st.Unchanged {
		if r.missingFromIndex(idx, p) {
			pending = append(pending, p)
			report.Unchanged--
		}
	}
	report.Stages.Scan = time.Since(scanStart)
	log.Info("index_scan_complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("allowed", report.Allowed),
		slog.Int("denied", report.DeniedTotal()),
		slog.Int("pending", len(pending)),
		slog.Int("deleted", len(st.Deleted)))

	idx.DeletePaths(st.Deleted)

	// Extract and chunk
	extractStart := time.Now()
	docs, err := r.extractAll(ctx, idx, pending, byPath, !opts.Force)
	if err != nil {
		return nil, err
	}
	report.Stages.Extract = time.Since(extractStart)

	var updates []cacheUpdate
	failed := make(map[string]struct{})
	var work []*document
	for i := range docs {
		d := &docs[i]
		switch {
		case d.err != nil:
			r.warn(log, report, d.file.Path, d.err)
			failed[d.file.Path] = struct{}{}
		case d.skipped:
			idx.DeletePaths([]string{d.file.Path})
			updates = append(updates, cacheUpdate{path: d.file.Path})
		case d.unchanged:
			report.ContentUnchanged++
		default:
			work = append(work, d)
		}
	}

	// Embed and upsert
	embedStart := time.Now()
	embedded, err := r.embedAll(ctx, log, report, idx, work, failed)
	if err != nil {
		return nil, err
	}
	updates = append(updates, embedded...)
	report.Stages.Embed = time.Since(embedStart)

	if keepPrevious && report.Failed > 0 {
		log.Warn("index_rebuild_aborted",
			slog.Int("failed", report.Failed),
			slog.Int("documents", report.Documents))
		return nil, docerrors.New(docerrors.ErrCodeIndexFailed,
			fmt.Sprintf("rebuild aborted: %d document(s) failed; previous index kept", report.Failed), nil).
			WithSuggestion("Check the embedding backend with 'docindex doctor' and re-run the rebuild")
	}

	// Persist
	persistStart := time.Now()
	r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageIndexing, Message: "saving index"})
	if rebuild {
		err = idx.Save(IndexDir(r.cfg))
		report.Saved = err == nil
	} else {
		report.Saved, err = idx.SaveIfChanged(IndexDir(r.cfg))
	}
	if err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	r.setIndex(idx)

	if opts.Force {
		if err := r.clearCache(); err != nil {
			return nil, err
		}
	}
	if err := r.commitCache(st.Deleted, updates); err != nil {
		return nil, err
	}
	okRows := make([]scanner.ScannedFile, 0, len(allowed))
	for _, f := range allowed {
		if _, bad := failed[f.Path]; !bad {
			okRows = append(okRows, f)
		}
	}
	if err := incremental.Save(statePath, incremental.Update(state, okRows)); err != nil {
		return nil, err
	}
	report.Stages.Index = time.Since(persistStart)
	report.Duration = time.Since(start)

	info := embed.GetInfo(r.cfg.Embeddings.Provider, r.embedder)
	r.renderer.Complete(ui.CompletionStats{
		Files:    report.Documents,
		Chunks:   report.Chunks,
		Cached:   report.Unchanged + report.ContentUnchanged,
		Deleted:  report.Deleted,
		Denied:   report.DeniedTotal(),
		Duration: report.Duration,
		Warnings: report.Warnings,
		Stages:   report.Stages,
		Embedder: ui.EmbedderInfo{Backend: info.Provider, Model: info.Model, Dimensions: info.Dimensions, DType: info.DType},
	})

	log.Info("index_complete",
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("content_unchanged", report.ContentUnchanged),
		slog.Int("deleted", report.Deleted),
		slog.Int("failed", report.Failed),
		slog.Bool("rebuilt", report.Rebuilt),
		slog.Bool("saved", report.Saved),
		slog.Int64("duration_scan_ms", report.Stages.Scan.Milliseconds()),
		slog.Int64("duration_extract_ms", report.Stages.Extract.Milliseconds()),
		slog.Int64("duration_embed_ms", report.Stages.Embed.Milliseconds()),
		slog.Int64("duration_index_ms", report.Stages.Index.Milliseconds()),
		slog.Int64("duration_total_ms", report.Duration.Milliseconds()))
	return report, nil
}

// missingFromIndex reports whether a cached path with chunks has no rows,
// which happens after the index was lost or rebuilt.
func (r *Runner) missingFromIndex(idx *store.Index, path string) bool {
	entry, ok, err := r.cache.Get(path)
	if err != nil || !ok {
		return true
	}
	return entry.ChunkCount > 0 && !idx.HasPath(path)
}

func (r *Runner) extractAll(ctx context.Context, idx *store.Index, pending []string, byPath map[string]scanner.ScannedFile, useCache bool) ([]document, error) {
	docs := make([]document, len(pending))
	if len(pending) == 0 {
		return docs, nil
	}

	workers := r.cfg.Scanner.Workers
	if workers <= 0 {
		workers = 4
	}
	var (
		done     atomic.Int64
		renderMu sync.Mutex
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range pending {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			docs[i] = r.prepare(gctx, idx, byPath[p], useCache)
			n := done.Add(1)
			renderMu.Lock()
			r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageExtracting, Current: int(n), Total: len(pending), CurrentFile: p})
			renderMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, ctx.Err()
}

// prepare extracts, normalizes, hashes and chunks one file. With useCache,
// a doc_hash that matches the cache marks the document unchanged.
func (r *Runner) prepare(ctx context.Context, idx *store.Index, f scanner.ScannedFile, useCache bool) document {
	d := document{file: f}
	text, err := r.extractor.Extract(ctx, f.Path)
	if err != nil {
		if docerrors.GetCode(err) == docerrors.ErrCodeUnsupportedFormat {
			slog.Debug("index_unsupported_format", slog.String("path", f.Path))
			d.skipped = true
			return d
		}
		d.err = err
		return d
	}

	normalized := extract.Normalize(text)
	d.hash = extract.DocHash(normalized)
	if !useCache {
		d.chunks = r.chunker.Chunk(f.Path, normalized)
		return d
	}
	if entry, ok, err := r.cache.Get(f.Path); err == nil && ok && entry.DocHash == d.hash &&
		(entry.ChunkCount == 0 || idx.HasPath(f.Path)) {
		d.unchanged = true
		return d
	}
	d.chunks = r.chunker.Chunk(f.Path, normalized)
	return d
}

// embedAll embeds work in groups and upserts every document whose chunks
// all embedded. A failed batch fails only the documents it touched.
func (r *Runner) embedAll(ctx context.Context, log *slog.Logger, report *RunReport, idx *store.Index, work []*document, failed map[string]struct{}) ([]cacheUpdate, error) {
	total := 0
	for _, d := range work {
		total += len(d.chunks)
	}

	var updates []cacheUpdate
	done := 0
	for start := 0; start < len(work); {
		end, size := start, 0
		for end < len(work) && (size == 0 || size+len(work[end].chunks) <= embedGroupChunks) {
			size += len(work[end].chunks)
			end++
		}
		group := work[start:end]
		start = end

		texts := make([]string, 0, size)
		for _, d := range group {
			for _, c := range d.chunks {
				texts = append(texts, embedText(c))
			}
		}
		m, errs := r.embedder.EncodeEach(ctx, texts)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row := 0
		for _, d := range group {
			items := make([]store.Item, 0, len(d.chunks))
			var batchErr error
			for _, c := range d.chunks {
				if errs[row] != nil && batchErr == nil {
					batchErr = errs[row]
				}
				items = append(items, store.Item{Meta: r.meta(d, c), Vector: m.Row(row)})
				row++
			}
			if batchErr != nil {
				r.warn(log, report, d.file.Path, batchErr)
				failed[d.file.Path] = struct{}{}
				continue
			}

			if len(items) == 0 {
				idx.DeletePaths([]string{d.file.Path})
			} else if err := idx.ReplaceDocuments(items); err != nil {
				return nil, err
			}
			report.Documents++
			report.Chunks += len(items)
			updates = append(updates, cacheUpdate{path: d.file.Path, hash: d.hash, chunks: len(items)})
		}

		done += size
		r.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: done, Total: total})
	}
	return updates, nil
}

// embedText is what the model sees for a chunk: its heading path, then
// its body.
func embedText(c chunk.Chunk) string {
	if c.Heading == "" {
		return c.Text
	}
	return c.Heading + "\n\n" + c.Text
}

func (r *Runner) meta(d *document, c chunk.Chunk) store.Meta {
	f := d.file
	p := preview(c.Text, r.cfg.Chunking.PreviewChars)
	var text string
	if p != c.Text {
		text = c.Text
	}
	return store.Meta{
		Path:      f.Path,
		ChunkID:   c.ID,
		Ext:       f.Ext,
		Preview:   p,
		Text:      text,
		Heading:   c.Heading,
		Tokens:    store.TokenSet(c.Heading + " " + c.Text),
		Size:      f.Size,
		Mtime:     f.Mtime(),
		Ctime:     f.Ctime(),
		Owner:     f.Owner,
		Drive:     f.Drive,
		ExtraMeta: map[string]string{"doc_hash": d.hash},
	}
}

// preview returns the first n runes of text.
func preview(text string, n int) string {
	if n <= 0 {
		n = 400
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

func (r *Runner) warn(log *slog.Logger, report *RunReport, path string, err error) {
	report.Failed++
	report.Warnings++
	attrs := append([]slog.Attr{slog.String("path", path)}, docerrors.LogAttrs(err)...)
	log.LogAttrs(context.Background(), slog.LevelWarn, "index_document_failed", attrs...)
	r.renderer.AddError(ui.ErrorEvent{File: path, Err: err, IsWarn: true})
}

// commitCache applies removals and updates after the index is on disk,
// so the cache never claims content the persisted index lacks.
func (r *Runner) commitCache(deleted []string, updates []cacheUpdate) error {
	for _, p := range deleted {
		if err := r.cache.Remove(p); err != nil {
			return err
		}
	}
	for _, u := range updates {
		if err := r.cache.Put(u.path, u.hash, u.chunks); err != nil {
			return err
		}
	}
	return r.cache.Save()
}

func (r *Runner) clearCache() error {
	known, err := r.cache.KnownPaths()
	if err != nil {
		return err
	}
	for p := range known {
		if err := r.cache.Remove(p); err != nil {
			return err
		}
	}
	return nil
}
