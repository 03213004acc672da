package embed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// ProviderType represents an embedding provider
type ProviderType string

const (
	// ProviderHash uses hash-based embeddings (offline, deterministic)
	ProviderHash ProviderType = "hash"

	// ProviderOllama uses the Ollama API
	ProviderOllama ProviderType = "ollama"
)

// ParseProvider converts a config string to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "hash", "static":
		return ProviderHash, nil
	case "ollama":
		return ProviderOllama, nil
	}
	return "", docerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", s), nil).
		WithSuggestion("Use one of: " + strings.Join(ValidProviders(), ", "))
}

// ValidProviders returns the accepted provider names.
func ValidProviders() []string {
	return []string{string(ProviderHash), string(ProviderOllama)}
}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	return string(p)
}

// NewModel constructs the model handle named by cfg. It is called once
// per process; the handle is shared by indexing and retrieval.
func NewModel(ctx context.Context, cfg config.EmbeddingsConfig) (Model, error) {
	provider, err := ParseProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderOllama:
		return NewOllamaModel(ctx, OllamaConfig{
			Host:       cfg.OllamaHost,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	default:
		return NewHashModel(cfg.Dimensions), nil
	}
}

// NewEmbedderFromConfig builds an Embedder over model with batching and
// precision taken from cfg.
func NewEmbedderFromConfig(model Model, cfg config.EmbeddingsConfig) *Embedder {
	timeout, err := time.ParseDuration(cfg.BatchTimeout)
	if err != nil || timeout <= 0 {
		timeout = DefaultBatchTimeout
	}
	dtype := SelectDType(PrecisionInputs{
		ForceFP32: cfg.ForceFP32,
		Runtime:   cfg.Runtime,
		Device:    cfg.Device,
	}, CapabilitySource(cfg.ComputeCapability, cfg.Device, NewNvidiaSMI()), cfg.MinFP16Capability)

	return NewEmbedder(model, Options{
		BatchSize:    cfg.BatchSize,
		Concurrency:  cfg.Concurrency,
		BatchTimeout: timeout,
		DType:        dtype,
	})
}

// Info summarizes a model for status output.
type Info struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
	DType      string `json:"dtype"`
}

// GetInfo describes e.
func GetInfo(provider string, e *Embedder) Info {
	return Info{
		Provider:   provider,
		Model:      e.Model().Name(),
		Dimensions: e.Dimensions(),
		DType:      string(e.DType()),
	}
}
