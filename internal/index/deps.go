package index

import (
	"path/filepath"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	"github.com/NOVA-ALLRounder/main-sub002/internal/embed"
	"github.com/NOVA-ALLRounder/main-sub002/internal/incremental"
	"github.com/NOVA-ALLRounder/main-sub002/internal/policy"
	"github.com/NOVA-ALLRounder/main-sub002/internal/scanner"
	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// IndexDirName is the index pair directory inside the data directory.
const IndexDirName = "index"

// IndexDir returns the directory holding the persisted index pair.
func IndexDir(cfg *config.Config) string {
	return filepath.Join(cfg.ResolveDataDir(), IndexDirName)
}

// StatePath returns the scan state file path.
func StatePath(cfg *config.Config) string {
	return filepath.Join(cfg.ResolveDataDir(), incremental.StateFileName)
}

// NewOracle builds the policy oracle described by cfg.Policy. A disabled
// policy allows every path.
func NewOracle(cfg *config.Config) (policy.Oracle, error) {
	p := cfg.Policy
	if !p.Enabled {
		return policy.AllowAll, nil
	}
	scope := p.ScopeRoots
	if len(scope) == 0 {
		scope = cfg.Paths.Roots
	}
	return policy.NewRuleOracle(policy.Rules{
		ScopeRoots:        scope,
		SensitivePatterns: p.SensitivePatterns,
		DeniedTypes:       p.DeniedTypes,
		AllowedTypes:      p.AllowedTypes,
		MaxFileSize:       int64(p.MaxFileSizeMB) * 1024 * 1024,
		ManualDeny:        p.ManualDeny,
		AgentDenied:       p.AgentDenied,
	})
}

// ScannerOptions maps cfg onto scanner options.
func ScannerOptions(cfg *config.Config, oracle policy.Oracle) scanner.Options {
	opts := scanner.Options{
		Roots:             cfg.Paths.Roots,
		AllowedDotDir:     cfg.Scanner.AllowedDotDir,
		AllowedHiddenFile: cfg.Scanner.AllowedHiddenFile,
		Oracle:            oracle,
		Agent:             cfg.Policy.Agent,
		Workers:           cfg.Scanner.Workers,
	}
	if len(cfg.Scanner.Extensions) > 0 {
		opts.Extensions = cfg.Scanner.Extensions
	}
	if len(cfg.Scanner.SkipDirs) > 0 {
		opts.SkipDirs = cfg.Scanner.SkipDirs
	}
	return opts
}

// StoreConfig returns the index shape for embedder e with graph
// parameters from cfg.
func StoreConfig(cfg *config.Config, e *embed.Embedder) store.Config {
	sc := GraphConfig(cfg)
	sc.Dim = e.Dimensions()
	sc.DType = e.DType()
	sc.Model = e.Model().Name()
	return sc
}

// GraphConfig returns only the graph parameters, for loading an index
// whose shape is read from its metadata.
func GraphConfig(cfg *config.Config) store.Config {
	threshold := cfg.Index.ExactSearchThreshold
	if threshold <= 0 {
		threshold = store.DefaultExactSearchThreshold
	}
	return store.Config{
		M:                    cfg.Index.M,
		EfSearch:             cfg.Index.EfSearch,
		ExactSearchThreshold: threshold,
		Seed:                 store.DefaultSeed,
	}
}
