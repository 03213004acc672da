package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// Options controls batching and precision of an Embedder.
type Options struct {
	BatchSize    int
	Concurrency  int
	BatchTimeout time.Duration
	DType        DType
}

// Embedder turns texts into a Matrix by fanning batches out to a Model.
// At most Concurrency batches are in flight; rows always come back in
// input order.
type Embedder struct {
	model Model
	opts  Options
}

// NewEmbedder wraps model. Zero option values take the package defaults.
func NewEmbedder(model Model, opts Options) *Embedder {
	if opts.BatchSize < MinBatchSize {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.BatchSize > MaxBatchSize {
		opts.BatchSize = MaxBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = DefaultBatchTimeout
	}
	if opts.DType == "" {
		opts.DType = FP32
	}
	return &Embedder{model: model, opts: opts}
}

// Model returns the underlying model handle.
func (e *Embedder) Model() Model { return e.model }

// DType returns the precision of produced matrices.
func (e *Embedder) DType() DType { return e.opts.DType }

// Dimensions returns the vector width.
func (e *Embedder) Dimensions() int { return e.model.Dimensions() }

// Reset drops warm model state if the model supports it.
func (e *Embedder) Reset() {
	if r, ok := e.model.(Resetter); ok {
		r.Reset()
	}
}

// Encode embeds texts and fails if any batch fails.
func (e *Embedder) Encode(ctx context.Context, texts []string) (Matrix, error) {
	m, errs := e.EncodeEach(ctx, texts)
	for _, err := range errs {
		if err != nil {
			return Matrix{Dim: m.Dim, DType: m.DType}, err
		}
	}
	return m, nil
}

// EncodeQuery embeds a single query string.
func (e *Embedder) EncodeQuery(ctx context.Context, text string) ([]float32, error) {
	m, err := e.Encode(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return m.Row(0), nil
}

// EncodeEach embeds texts and reports failures per row. errs has one
// entry per input; rows belonging to a failed batch are left zero and
// carry that batch's error. A batch that exceeds BatchTimeout fails as
// a whole and is not retried.
func (e *Embedder) EncodeEach(ctx context.Context, texts []string) (Matrix, []error) {
	dim := e.model.Dimensions()
	m := NewMatrix(len(texts), dim, e.opts.DType)
	errs := make([]error, len(texts))
	if len(texts) == 0 {
		return m, errs
	}

	size := e.opts.BatchSize
	var g errgroup.Group
	g.SetLimit(e.opts.Concurrency)

	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batchIdx := start / size
		g.Go(func() error {
			vecs, err := e.encodeBatch(ctx, batchIdx, texts[start:end])
			if err != nil {
				for i := start; i < end; i++ {
					errs[i] = err
				}
				return nil
			}
			for j, v := range vecs {
				m.SetRow(start+j, normalizeVector(v))
			}
			return nil
		})
	}
	_ = g.Wait()

	return m, errs
}

func (e *Embedder) encodeBatch(ctx context.Context, batchIdx int, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bctx, cancel := context.WithTimeout(ctx, e.opts.BatchTimeout)
	defer cancel()

	began := time.Now()
	vecs, err := e.model.Encode(bctx, texts)
	timedOut := errors.Is(bctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil

	switch {
	case timedOut:
		de := docerrors.New(docerrors.ErrCodeEmbedTimeout, "embedding batch timed out", err).
			WithDetail("batch", strconv.Itoa(batchIdx)).
			WithDetail("timeout", e.opts.BatchTimeout.String())
		e.logBatchFailure(de)
		return nil, de
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	case err != nil:
		de := docerrors.EmbeddingError("embedding batch failed", err).
			WithDetail("batch", strconv.Itoa(batchIdx)).
			WithDetail("model", e.model.Name())
		e.logBatchFailure(de)
		return nil, de
	}

	if len(vecs) != len(texts) {
		de := docerrors.EmbeddingError(
			fmt.Sprintf("model returned %d vectors for %d texts", len(vecs), len(texts)), nil)
		e.logBatchFailure(de)
		return nil, de
	}
	dim := e.model.Dimensions()
	for _, v := range vecs {
		if len(v) != dim {
			de := docerrors.New(docerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector has %d dimensions, expected %d", len(v), dim), nil).
				WithDetail("model", e.model.Name())
			e.logBatchFailure(de)
			return nil, de
		}
	}

	slog.Debug("embed_batch_complete",
		slog.Int("batch", batchIdx),
		slog.Int("size", len(texts)),
		slog.Duration("duration", time.Since(began)))
	return vecs, nil
}

func (e *Embedder) logBatchFailure(de *docerrors.DocError) {
	slog.LogAttrs(context.Background(), slog.LevelWarn, "embed_batch_failed", docerrors.LogAttrs(de)...)
}
