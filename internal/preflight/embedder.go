package preflight

import (
	"context"
	"fmt"
	"time"

	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	"github.com/NOVA-ALLRounder/main-sub002/internal/index"
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
)

// ProbeTimeout bounds each check that talks to a model server.
const ProbeTimeout = 15 * time.Second

// CheckEmbedder builds the configured model and embeds a probe text.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{
		Name:     "embedder",
		Required: true,
	}

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	model, err := embed.NewModel(ctx, c.cfg.Embeddings)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s unavailable: %v", c.cfg.Embeddings.Provider, err)
		return result
	}
	defer func() { _ = model.Close() }()

	vecs, err := model.Encode(ctx, []string{"preflight probe"})
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s probe failed: %v", model.Name(), err)
		return result
	}
	if len(vecs) != 1 || len(vecs[0]) != model.Dimensions() {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s returned a malformed probe vector", model.Name())
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s, %d dims", model.Name(), model.Dimensions())
	return result
}

// CheckReranker checks the configured cross-encoder is reachable. Search
// falls back to blended scores without it, so failure only warns.
func (c *Checker) CheckReranker(ctx context.Context) CheckResult {
	result := CheckResult{
		Name: "reranker",
	}

	rr, err := search.NewReranker(c.cfg.Search.Reranker, c.cfg.RerankTimeout())
	if err != nil {
		result.Status = StatusWarn
		result.Message = err.Error()
		return result
	}
	if rr == nil {
		result.Status = StatusPass
		result.Message = "not configured"
		return result
	}
	defer func() { _ = rr.Close() }()

	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()
	if !rr.Available(ctx) {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is not reachable", c.cfg.Search.Reranker.Endpoint)
		result.Details = "Searches with --rerank keep the blended order"
		return result
	}
	result.Status = StatusPass
	result.Message = c.cfg.Search.Reranker.Endpoint
	return result
}

// CheckIndex reports whether a persisted index exists and agrees with the
// chunk cache.
func (c *Checker) CheckIndex() CheckResult {
	result := CheckResult{
		Name: "index",
	}

	info, err := index.ReadStatus(c.cfg)
	switch {
	case err != nil:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreadable: %v", err)
		result.Details = "Run 'docindex index --force' to rebuild"
	case !info.Indexed:
		result.Status = StatusWarn
		result.Message = "not built"
		result.Details = "Run 'docindex index'"
	case info.Issues > 0:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%d cache/index mismatches", info.Issues)
		result.Details = "Run 'docindex index' to repair"
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%d documents, %d chunks", info.Documents, info.Rows)
	}
	return result
}
