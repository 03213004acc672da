package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
	"github.com/NOVA-ALLRounder/main-sub002/internal/telemetry"
	"github.com/NOVA-ALLRounder/main-sub002/internal/ui"
)

type searchFlags struct {
	limit         int
	rerank        bool
	rerankDepth   int
	lexicalWeight float64
	minSimilarity float64
	jsonOutput    bool
	explain       bool
}

func newSearchCmd() *cobra.Command {
	var f searchFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index",
		Long: `Search the indexed documents. Results blend vector similarity with token
overlap; quoted phrases, names and numbers in the query are boosted when a
chunk contains them, and table-of-contents or template chunks are
penalised.`,
		Example: `  docindex search 가나다 이력서
  docindex search '"Project Atlas" budget' -k 5 --explain
  docindex search onboarding checklist --rerank --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, strings.Join(args, " "), f)
		},
	}

	cmd.Flags().IntVarP(&f.limit, "limit", "k", 0, "Number of results (default: search.top_k)")
	cmd.Flags().BoolVar(&f.rerank, "rerank", false, "Rerank candidates with the configured cross-encoder")
	cmd.Flags().IntVar(&f.rerankDepth, "rerank-depth", 0, "Candidates passed to the reranker (default: search.rerank_depth)")
	cmd.Flags().Float64Var(&f.lexicalWeight, "lexical-weight", 0, "Weight of token overlap in [0,1] (default: search.lexical_weight)")
	cmd.Flags().Float64Var(&f.minSimilarity, "min-similarity", 0, "Drop candidates below this vector similarity (default: search.min_similarity)")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVar(&f.explain, "explain", false, "Show score components for each result")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, f searchFlags) error {
	if strings.TrimSpace(query) == "" {
		return docerrors.New(docerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	opts := search.OptionsFromConfig(cfg.Search)
	topK := cfg.Search.TopK
	flags := cmd.Flags()
	if flags.Changed("limit") {
		topK = f.limit
	}
	if flags.Changed("rerank") {
		opts.UseRerank = f.rerank
	}
	if flags.Changed("rerank-depth") {
		opts.RerankDepth = f.rerankDepth
	}
	if flags.Changed("lexical-weight") {
		opts.LexicalWeight = f.lexicalWeight
	}
	if flags.Changed("min-similarity") {
		opts.MinSimilarity = f.minSimilarity
	}
	if err := opts.Validate(); err != nil {
		return docerrors.ValidationError("invalid search options", err)
	}
	if topK <= 0 {
		return docerrors.ValidationError("limit must be positive", nil)
	}

	idx, err := loadIndex(cfg)
	if err != nil {
		return err
	}

	e, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = e.Model().Close() }()
	if err := checkModel(idx, e); err != nil {
		return err
	}

	retriever, err := newRetriever(cfg, idx, e)
	if err != nil {
		return err
	}

	start := time.Now()
	hits, err := retriever.Search(ctx, query, topK, opts)
	if err != nil {
		return err
	}
	recordQuery(cfg, telemetry.QueryEvent{Query: query, ResultCount: len(hits), Latency: time.Since(start), Timestamp: start})

	r := ui.NewResultRenderer(cmd.OutOrStdout(), ui.DetectNoColor(), f.explain)
	if f.jsonOutput {
		return r.RenderJSON(query, hits)
	}
	r.Render(query, hits)
	return nil
}

// recordQuery adds one search to the persisted query statistics.
func recordQuery(cfg *config.Config, event telemetry.QueryEvent) {
	metrics := telemetry.NewQueryMetrics(telemetry.NewFileStore(cfg.ResolveDataDir()), telemetry.DefaultConfig())
	metrics.Record(event)
	if err := metrics.Close(); err != nil {
		slog.Warn("query_metrics_flush_failed", slog.String("error", err.Error()))
	}
}
