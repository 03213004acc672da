package embed

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// vectorMagnitude computes the magnitude of a vector
func vectorMagnitude(v []float32) float64 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	return math.Sqrt(sum)
}

// cosineSimilarity computes cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dotProduct, magA, magB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(magA) * math.Sqrt(magB))
}

// fakeModel encodes text i as a vector whose first element is the text
// length. It can delay, fail on a marker text, and tracks concurrency.
type fakeModel struct {
	dims     int
	delay    func(texts []string) time.Duration
	failOn   string
	wrongDim bool

	calls    atomic.Int64
	inFlight atomic.Int64
	maxSeen  atomic.Int64

	mu    sync.Mutex
	reset int
}

func (f *fakeModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(texts)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && t == f.failOn {
			return nil, fmt.Errorf("cannot encode %q", t)
		}
		dims := f.dims
		if f.wrongDim {
			dims++
		}
		v := make([]float32, dims)
		v[0] = float32(len(t))
		v[1] = 1
		out[i] = v
	}
	return out, nil
}

func (f *fakeModel) Dimensions() int { return f.dims }
func (f *fakeModel) Name() string    { return "fake" }
func (f *fakeModel) Close() error    { return nil }
func (f *fakeModel) Reset() {
	f.mu.Lock()
	f.reset++
	f.mu.Unlock()
}
