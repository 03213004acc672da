// Package config loads docindex configuration from defaults, user and
// project files, a .env file and DOCINDEX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete docindex configuration.
type Config struct {
	Version     int               `yaml:"version" toml:"version" json:"version"`
	Paths       PathsConfig       `yaml:"paths" toml:"paths" json:"paths"`
	Scanner     ScannerConfig     `yaml:"scanner" toml:"scanner" json:"scanner"`
	Policy      PolicyConfig      `yaml:"policy" toml:"policy" json:"policy"`
	Incremental IncrementalConfig `yaml:"incremental" toml:"incremental" json:"incremental"`
	Cache       CacheConfig       `yaml:"cache" toml:"cache" json:"cache"`
	Chunking    ChunkingConfig    `yaml:"chunking" toml:"chunking" json:"chunking"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings" toml:"embeddings" json:"embeddings"`
	Index       IndexConfig       `yaml:"index" toml:"index" json:"index"`
	Search      SearchConfig      `yaml:"search" toml:"search" json:"search"`
	Logging     LoggingConfig     `yaml:"logging" toml:"logging" json:"logging"`
	Watch       WatchConfig       `yaml:"watch" toml:"watch" json:"watch"`
}

// PathsConfig names the corpus roots and where derived artifacts live.
type PathsConfig struct {
	Roots []string `yaml:"roots" toml:"roots" json:"roots"`
	// DataDir holds scan state, chunk cache and the index directory.
	// Empty means <first root>/.docindex.
	DataDir string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`
}

// ScannerConfig configures discovery. Empty lists mean the scanner defaults.
type ScannerConfig struct {
	Extensions        []string `yaml:"extensions" toml:"extensions" json:"extensions"`
	SkipDirs          []string `yaml:"skip_dirs" toml:"skip_dirs" json:"skip_dirs"`
	AllowedDotDir     string   `yaml:"allowed_dot_dir" toml:"allowed_dot_dir" json:"allowed_dot_dir"`
	AllowedHiddenFile string   `yaml:"allowed_hidden_file" toml:"allowed_hidden_file" json:"allowed_hidden_file"`
	Workers           int      `yaml:"workers" toml:"workers" json:"workers"`
}

// PolicyConfig configures the built-in rule oracle.
type PolicyConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	Agent   string `yaml:"agent" toml:"agent" json:"agent"`
	// ScopeRoots limits access to these directories. Empty means Paths.Roots.
	ScopeRoots        []string            `yaml:"scope_roots" toml:"scope_roots" json:"scope_roots"`
	SensitivePatterns []string            `yaml:"sensitive_patterns" toml:"sensitive_patterns" json:"sensitive_patterns"`
	DeniedTypes       []string            `yaml:"denied_types" toml:"denied_types" json:"denied_types"`
	AllowedTypes      []string            `yaml:"allowed_types" toml:"allowed_types" json:"allowed_types"`
	MaxFileSizeMB     int                 `yaml:"max_file_size_mb" toml:"max_file_size_mb" json:"max_file_size_mb"`
	ManualDeny        []string            `yaml:"manual_deny" toml:"manual_deny" json:"manual_deny"`
	AgentDenied       map[string][]string `yaml:"agent_denied" toml:"agent_denied" json:"agent_denied"`
}

// IncrementalConfig configures the scan state store.
type IncrementalConfig struct {
	// MtimeToleranceSeconds absorbs filesystem timestamp jitter.
	MtimeToleranceSeconds float64 `yaml:"mtime_tolerance_seconds" toml:"mtime_tolerance_seconds" json:"mtime_tolerance_seconds"`
}

// CacheConfig selects the chunk cache backend.
type CacheConfig struct {
	// Backend is "json", "bolt" or "sqlite".
	Backend string `yaml:"backend" toml:"backend" json:"backend"`
}

// ChunkingConfig bounds chunk size.
type ChunkingConfig struct {
	MaxTokens     int `yaml:"max_tokens" toml:"max_tokens" json:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens" toml:"overlap_tokens" json:"overlap_tokens"`
	PreviewChars  int `yaml:"preview_chars" toml:"preview_chars" json:"preview_chars"`
}

// EmbeddingsConfig configures the embedding model and batch encoder.
type EmbeddingsConfig struct {
	// Provider is "hash" (offline, deterministic) or "ollama".
	Provider   string `yaml:"provider" toml:"provider" json:"provider"`
	Model      string `yaml:"model" toml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" toml:"dimensions" json:"dimensions"`
	OllamaHost string `yaml:"ollama_host" toml:"ollama_host" json:"ollama_host"`

	BatchSize    int    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	Concurrency  int    `yaml:"concurrency" toml:"concurrency" json:"concurrency"`
	BatchTimeout string `yaml:"batch_timeout" toml:"batch_timeout" json:"batch_timeout"`

	// Precision selection inputs.
	ForceFP32         bool    `yaml:"force_fp32" toml:"force_fp32" json:"force_fp32"`
	Runtime           string  `yaml:"runtime" toml:"runtime" json:"runtime"`
	Device            string  `yaml:"device" toml:"device" json:"device"`
	// ComputeCapability overrides nvidia-smi detection when positive.
	ComputeCapability float64 `yaml:"compute_capability" toml:"compute_capability" json:"compute_capability"`
	MinFP16Capability float64 `yaml:"min_fp16_capability" toml:"min_fp16_capability" json:"min_fp16_capability"`

	QueryCacheSize int `yaml:"query_cache_size" toml:"query_cache_size" json:"query_cache_size"`
}

// IndexConfig tunes the ANN graph.
type IndexConfig struct {
	M                    int `yaml:"m" toml:"m" json:"m"`
	EfSearch             int `yaml:"ef_search" toml:"ef_search" json:"ef_search"`
	ExactSearchThreshold int `yaml:"exact_search_threshold" toml:"exact_search_threshold" json:"exact_search_threshold"`
}

// SearchConfig holds retriever defaults.
type SearchConfig struct {
	TopK            int            `yaml:"top_k" toml:"top_k" json:"top_k"`
	LexicalWeight   float64        `yaml:"lexical_weight" toml:"lexical_weight" json:"lexical_weight"`
	MinSimilarity   float64        `yaml:"min_similarity" toml:"min_similarity" json:"min_similarity"`
	UseRerank       bool           `yaml:"use_rerank" toml:"use_rerank" json:"use_rerank"`
	RerankDepth     int            `yaml:"rerank_depth" toml:"rerank_depth" json:"rerank_depth"`
	RerankMinScore  float64        `yaml:"rerank_min_score" toml:"rerank_min_score" json:"rerank_min_score"`
	ExactTermBoost  float64        `yaml:"exact_term_boost" toml:"exact_term_boost" json:"exact_term_boost"`
	TemplatePenalty float64        `yaml:"template_penalty" toml:"template_penalty" json:"template_penalty"`
	LexicalFallback bool           `yaml:"lexical_fallback" toml:"lexical_fallback" json:"lexical_fallback"`
	Reranker        RerankerConfig `yaml:"reranker" toml:"reranker" json:"reranker"`
}

// RerankerConfig configures the cross-encoder client.
type RerankerConfig struct {
	// Provider is "none" or "http".
	Provider string `yaml:"provider" toml:"provider" json:"provider"`
	Endpoint string `yaml:"endpoint" toml:"endpoint" json:"endpoint"`
	Model    string `yaml:"model" toml:"model" json:"model"`
	Timeout  string `yaml:"timeout" toml:"timeout" json:"timeout"`
}

// LoggingConfig configures the default logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce" toml:"debounce" json:"debounce"`
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Roots: []string{},
		},
		Scanner: ScannerConfig{
			AllowedDotDir:     ".assistant",
			AllowedHiddenFile: ".assistant.md",
			Workers:           workers,
		},
		Policy: PolicyConfig{
			Enabled: true,
			Agent:   "indexer",
			SensitivePatterns: []string{
				"**/.ssh/**", "**/.gnupg/**", "**/.aws/**",
				"*.pem", "*.key", "*.p12", "*.kdbx",
				"**/id_rsa*", "**/*secret*", "**/*password*",
			},
			DeniedTypes:   []string{".exe", ".dll", ".so", ".dylib", ".bin", ".msi", ".bat", ".cmd", ".sh", ".ps1"},
			MaxFileSizeMB: 50,
		},
		Incremental: IncrementalConfig{
			MtimeToleranceSeconds: 1.0,
		},
		Cache: CacheConfig{
			Backend: "json",
		},
		Chunking: ChunkingConfig{
			MaxTokens:     512,
			OverlapTokens: 64,
			PreviewChars:  400,
		},
		Embeddings: EmbeddingsConfig{
			Provider:          "hash",
			Model:             "nomic-embed-text",
			Dimensions:        0,
			BatchSize:         32,
			Concurrency:       2,
			BatchTimeout:      "60s",
			Runtime:           "native",
			Device:            "cpu",
			MinFP16Capability: 7.0,
			QueryCacheSize:    256,
		},
		Index: IndexConfig{
			M:                    24,
			EfSearch:             128,
			ExactSearchThreshold: 4096,
		},
		Search: SearchConfig{
			TopK:            10,
			LexicalWeight:   0.3,
			MinSimilarity:   -1,
			UseRerank:       false,
			RerankDepth:     30,
			RerankMinScore:  0,
			ExactTermBoost:  0.15,
			TemplatePenalty: 0.2,
			LexicalFallback: true,
			Reranker: RerankerConfig{
				Provider: "none",
				Timeout:  "10s",
			},
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
	}
}

// projectConfigNames lists project config files in precedence order.
var projectConfigNames = []string{".docindex.yaml", ".docindex.yml", ".docindex.toml"}

// GetUserConfigPath returns the path to the user configuration file:
// $XDG_CONFIG_HOME/docindex/config.yaml or ~/.config/docindex/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "docindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "docindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "docindex", "config.yaml")
}

// Load loads configuration for the project in dir.
// Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/docindex/config.yaml)
//  3. Project config (.docindex.yaml, .docindex.yml or .docindex.toml)
//  4. dir/.env (never overrides variables already set)
//  5. DOCINDEX_* environment variables
func Load(dir string) (*Config, error) {
	return load(dir, "")
}

// LoadFile is Load with an explicit project config file in place of the
// discovered one.
func LoadFile(dir, path string) (*Config, error) {
	return load(dir, path)
}

func load(dir, explicit string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.decodeFile(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	projectPath := explicit
	if projectPath == "" {
		projectPath = findProjectConfig(dir)
	} else if !fileExists(projectPath) {
		return nil, fmt.Errorf("config file not found: %s", projectPath)
	}
	if projectPath != "" {
		if err := cfg.decodeFile(projectPath); err != nil {
			return nil, err
		}
	}

	if envPath := filepath.Join(dir, ".env"); fileExists(envPath) {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
		}
	}
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// findProjectConfig returns the first project config file in dir.
func findProjectConfig(dir string) string {
	for _, name := range projectConfigNames {
		p := filepath.Join(dir, name)
		if fileExists(p) {
			return p
		}
	}
	return ""
}

// decodeFile decodes a YAML or TOML file over the current values, so keys
// absent from the file keep what earlier layers set.
func (c *Config) decodeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return nil
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies DOCINDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCINDEX_ROOTS"); v != "" {
		c.Paths.Roots = splitList(v)
	}
	if v := os.Getenv("DOCINDEX_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("DOCINDEX_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("DOCINDEX_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("DOCINDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCINDEX_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("DOCINDEX_DEVICE"); v != "" {
		c.Embeddings.Device = v
	}
	if v := os.Getenv("DOCINDEX_FORCE_FP32"); v != "" {
		c.Embeddings.ForceFP32 = parseBool(v)
	}
	if v := os.Getenv("DOCINDEX_LEXICAL_WEIGHT"); v != "" {
		if w, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("DOCINDEX_RERANK_ENDPOINT"); v != "" {
		c.Search.Reranker.Provider = "http"
		c.Search.Reranker.Endpoint = v
	}
	if v := os.Getenv("DOCINDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Cache.Backend) {
	case "json", "bolt", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("cache.backend must be 'json', 'bolt' or 'sqlite', got %q", c.Cache.Backend))
	}

	switch strings.ToLower(c.Embeddings.Provider) {
	case "hash", "ollama":
	default:
		errs = append(errs, fmt.Errorf("embeddings.provider must be 'hash' or 'ollama', got %q", c.Embeddings.Provider))
	}
	if c.Embeddings.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.batch_size must be positive, got %d", c.Embeddings.BatchSize))
	}
	if c.Embeddings.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("embeddings.concurrency must be positive, got %d", c.Embeddings.Concurrency))
	}
	if _, err := time.ParseDuration(c.Embeddings.BatchTimeout); err != nil {
		errs = append(errs, fmt.Errorf("embeddings.batch_timeout: %w", err))
	}

	if c.Incremental.MtimeToleranceSeconds < 0 {
		errs = append(errs, fmt.Errorf("incremental.mtime_tolerance_seconds must be non-negative, got %f", c.Incremental.MtimeToleranceSeconds))
	}
	if c.Chunking.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("chunking.max_tokens must be positive, got %d", c.Chunking.MaxTokens))
	}
	if c.Chunking.OverlapTokens < 0 || c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		errs = append(errs, fmt.Errorf("chunking.overlap_tokens must be in [0, max_tokens), got %d", c.Chunking.OverlapTokens))
	}

	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		errs = append(errs, fmt.Errorf("search.lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, fmt.Errorf("search.top_k must be positive, got %d", c.Search.TopK))
	}
	switch strings.ToLower(c.Search.Reranker.Provider) {
	case "none", "":
	case "http":
		if c.Search.Reranker.Endpoint == "" {
			errs = append(errs, errors.New("search.reranker.endpoint is required for the http reranker"))
		}
	default:
		errs = append(errs, fmt.Errorf("search.reranker.provider must be 'none' or 'http', got %q", c.Search.Reranker.Provider))
	}

	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		errs = append(errs, fmt.Errorf("watch.debounce: %w", err))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// ResolveDataDir returns the directory for derived artifacts.
func (c *Config) ResolveDataDir() string {
	if c.Paths.DataDir != "" {
		return c.Paths.DataDir
	}
	if len(c.Paths.Roots) > 0 {
		return filepath.Join(c.Paths.Roots[0], ".docindex")
	}
	return ".docindex"
}

// BatchTimeout returns the parsed per-batch embedding timeout.
func (c *Config) BatchTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Embeddings.BatchTimeout)
	return d
}

// WatchDebounce returns the parsed watch debounce window.
func (c *Config) WatchDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Watch.Debounce)
	return d
}

// RerankTimeout returns the parsed reranker request timeout, default 10s.
func (c *Config) RerankTimeout() time.Duration {
	d, err := time.ParseDuration(c.Search.Reranker.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// MtimeTolerance returns the incremental filter tolerance band.
func (c *Config) MtimeTolerance() time.Duration {
	return time.Duration(c.Incremental.MtimeToleranceSeconds * float64(time.Second))
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, string(os.PathListSeparator)) {
		for _, p := range strings.Split(part, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
