// Package validation measures retrieval quality against a data-driven query
// set. Each query names documents that must appear in the top results and,
// optionally, documents that must never appear, such as files the access
// policy denies.
//
// Query sets are YAML files with three sections:
//
//	tier1:     # must pass; a failure fails the run
//	  - id: T1-Q1
//	    query: "quarterly budget"
//	    expected: [finance/]
//	tier2:     # tracked, not gating
//	negative:  # must not error or must not surface forbidden paths
//	  - id: N-1
//	    query: "api token"
//	    forbidden: [keys/]
package validation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
)

// DefaultTopK is how many hits each query inspects.
const DefaultTopK = 10

// QuerySpec defines a test query with expected results.
type QuerySpec struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name,omitempty"`
	Query string `yaml:"query" json:"query"`
	// Expected are root-relative path prefixes; any one in the top results passes.
	Expected []string `yaml:"expected" json:"expected,omitempty"`
	// Forbidden are root-relative path prefixes that fail the query if returned.
	Forbidden []string `yaml:"forbidden" json:"forbidden,omitempty"`
	Rerank    bool     `yaml:"rerank" json:"rerank,omitempty"`
	Notes     string   `yaml:"notes" json:"notes,omitempty"`
	Tier      int      `yaml:"-" json:"tier"`
}

// QueryConfig holds all validation queries loaded from YAML.
type QueryConfig struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// Len returns the number of queries across all tiers.
func (c *QueryConfig) Len() int {
	return len(c.Tier1) + len(c.Tier2) + len(c.Negative)
}

// LoadQueries reads a query set from path.
func LoadQueries(path string) (*QueryConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read queries file %s: %w", path, err)
	}
	return ParseQueries(data)
}

// ParseQueries decodes a query set and assigns tiers.
func ParseQueries(data []byte) (*QueryConfig, error) {
	var cfg QueryConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse queries YAML: %w", err)
	}

	var errs []error
	check := func(tier int, specs []QuerySpec) {
		for i := range specs {
			specs[i].Tier = tier
			if strings.TrimSpace(specs[i].Query) == "" {
				errs = append(errs, fmt.Errorf("query %q has no query text", specs[i].ID))
			}
		}
	}
	check(1, cfg.Tier1)
	check(2, cfg.Tier2)
	check(0, cfg.Negative)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// TestResult captures the outcome of a single query test.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ms"`
	TopResults []string      `json:"top_results"`
	MatchedAt  int           `json:"matched_at"` // -1 if not found
	Leaked     []string      `json:"leaked,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// ValidationResult captures results of a full validation run.
type ValidationResult struct {
	Timestamp  time.Time    `json:"timestamp"`
	TopK       int          `json:"top_k"`
	Tier1      []TestResult `json:"tier1"`
	Tier2      []TestResult `json:"tier2"`
	Negative   []TestResult `json:"negative"`
	Tier1Pass  int          `json:"tier1_pass"`
	Tier1Total int          `json:"tier1_total"`
	Tier2Pass  int          `json:"tier2_pass"`
	Tier2Total int          `json:"tier2_total"`
	NegPass    int          `json:"negative_pass"`
	NegTotal   int          `json:"negative_total"`
	// MRR is the mean reciprocal rank over queries with expectations.
	MRR float64 `json:"mrr"`
}

// Passed reports whether every tier 1 and negative query passed.
func (r *ValidationResult) Passed() bool {
	return r.Tier1Pass == r.Tier1Total && r.NegPass == r.NegTotal
}

// Searcher answers queries; *search.Retriever implements it.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, opts search.Options) ([]search.Hit, error)
}

// Config configures a Validator.
type Config struct {
	// Roots make hit paths relative before matching.
	Roots   []string
	TopK    int
	Options search.Options
}

// Validator runs validation queries against a Searcher.
type Validator struct {
	searcher Searcher
	cfg      Config
}

// NewValidator creates a validator.
func NewValidator(s Searcher, cfg Config) *Validator {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	return &Validator{searcher: s, cfg: cfg}
}

// RunQuery executes a single query and returns the result.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	start := time.Now()
	result := TestResult{
		Spec:      spec,
		MatchedAt: -1,
	}

	opts := v.cfg.Options
	opts.UseRerank = opts.UseRerank || spec.Rerank
	hits, err := v.searcher.Search(ctx, spec.Query, v.cfg.TopK, opts)
	result.Duration = time.Since(start)
	if err != nil {
		// Negative queries may be rejected outright.
		if spec.Tier == 0 {
			result.Passed = true
		} else {
			result.Error = err.Error()
		}
		return result
	}

	result.TopResults = make([]string, len(hits))
	for i, h := range hits {
		result.TopResults[i] = v.relative(h.Path)
	}

	result.Passed = true
	if len(spec.Expected) > 0 {
		result.Passed, result.MatchedAt = checkExpected(result.TopResults, spec.Expected)
	}
	if result.Leaked = checkForbidden(result.TopResults, spec.Forbidden); len(result.Leaked) > 0 {
		result.Passed = false
	}
	return result
}

// RunAll executes all validation queries and returns results.
func (v *Validator) RunAll(ctx context.Context, queries *QueryConfig) *ValidationResult {
	result := &ValidationResult{
		Timestamp: time.Now(),
		TopK:      v.cfg.TopK,
	}

	var rr float64
	var ranked int
	run := func(specs []QuerySpec, out *[]TestResult, pass, total *int) {
		for _, spec := range specs {
			if ctx.Err() != nil {
				return
			}
			tr := v.RunQuery(ctx, spec)
			*out = append(*out, tr)
			*total++
			if tr.Passed {
				*pass++
			}
			if len(spec.Expected) > 0 {
				ranked++
				if tr.MatchedAt >= 0 {
					rr += 1 / float64(tr.MatchedAt+1)
				}
			}
		}
	}
	run(queries.Tier1, &result.Tier1, &result.Tier1Pass, &result.Tier1Total)
	run(queries.Tier2, &result.Tier2, &result.Tier2Pass, &result.Tier2Total)
	run(queries.Negative, &result.Negative, &result.NegPass, &result.NegTotal)

	if ranked > 0 {
		result.MRR = rr / float64(ranked)
	}
	return result
}

// relative maps an absolute hit path to slash form under its root.
func (v *Validator) relative(path string) string {
	for _, root := range v.cfg.Roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(path)
}

// checkExpected returns the rank of the first result matching any expected prefix.
func checkExpected(results []string, expected []string) (bool, int) {
	for i, path := range results {
		for _, exp := range expected {
			if strings.HasPrefix(path, exp) {
				return true, i
			}
		}
	}
	return false, -1
}

func checkForbidden(results []string, forbidden []string) []string {
	var leaked []string
	for _, path := range results {
		for _, f := range forbidden {
			if strings.HasPrefix(path, f) {
				leaked = append(leaked, path)
				break
			}
		}
	}
	return leaked
}
