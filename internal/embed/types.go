package embed

import (
	"context"
	"math"
	"time"
)

// Common embedding constants
const (
	// MinBatchSize is the minimum allowed batch size
	MinBatchSize = 1

	// MaxBatchSize is the maximum allowed batch size (prevents memory exhaustion)
	MaxBatchSize = 256

	// DefaultBatchSize is the default number of texts per encode call
	DefaultBatchSize = 32

	// DefaultConcurrency is the default number of batches in flight
	DefaultConcurrency = 2

	// DefaultBatchTimeout bounds a single batch encode call
	DefaultBatchTimeout = 60 * time.Second

	// DefaultHealthTimeout bounds the startup health check of a remote backend
	DefaultHealthTimeout = 30 * time.Second
)

// HashDimensions is the default vector width of the offline hash model.
const HashDimensions = 256

// Model is an explicit embedding model handle. It is constructed once by
// NewModel and passed into the Embedder and the retriever.
type Model interface {
	// Encode returns one vector per input text, in input order.
	Encode(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector width.
	Dimensions() int

	// Name returns the model identifier recorded in index metadata.
	Name() string

	// Close releases resources.
	Close() error
}

// Resetter is implemented by models that hold warm state (connections,
// caches) which can be dropped without closing the handle.
type Resetter interface {
	Reset()
}

// normalizeVector normalizes a vector to unit length.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
