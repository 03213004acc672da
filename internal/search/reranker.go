package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/NOVA-ALLRounder/main-sub002/internal/config"
	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// RerankResult represents a single reranked result
type RerankResult struct {
	// Index is the original position in the input documents slice
	Index int
	// Score is the relevance score
	Score float64
}

// Reranker re-scores query-document pairs with a cross-encoder.
// Cross-encoders jointly encode the pair, which is slower than a
// bi-encoder but more precise.
type Reranker interface {
	// Rerank scores documents against query. Results may come back in any
	// order; Index refers to the input slice. topK 0 means all.
	Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error)

	// Available checks if the reranker service is reachable
	Available(ctx context.Context) bool

	// Close releases resources
	Close() error
}

// Reranker defaults
const (
	DefaultRerankerEndpoint = "http://localhost:8080"
	DefaultRerankerTimeout  = 10 * time.Second
)

// HTTPRerankerConfig configures the HTTP cross-encoder client.
type HTTPRerankerConfig struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// HTTPReranker calls a /rerank JSON endpoint. Repeated failures open a
// circuit breaker so searches fall back to blended scores quickly.
type HTTPReranker struct {
	client  *http.Client
	config  HTTPRerankerConfig
	breaker *docerrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates a client. It does not contact the server.
func NewHTTPReranker(cfg HTTPRerankerConfig) *HTTPReranker {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultRerankerEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}
	return &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
		breaker: docerrors.NewCircuitBreaker("reranker",
			docerrors.WithMaxFailures(3),
			docerrors.WithResetTimeout(30*time.Second)),
	}
}

// NewReranker builds the reranker named by cfg. Provider "none" returns nil.
func NewReranker(cfg config.RerankerConfig, timeout time.Duration) (Reranker, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "none":
		return nil, nil
	case "http":
		return NewHTTPReranker(HTTPRerankerConfig{
			Endpoint: cfg.Endpoint,
			Model:    cfg.Model,
			Timeout:  timeout,
		}), nil
	}
	return nil, docerrors.ConfigError(fmt.Sprintf("unknown reranker provider %q", cfg.Provider), nil).
		WithSuggestion("Use 'none' or 'http'")
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	Model     string   `json:"model,omitempty"`
	TopK      int      `json:"top_k,omitempty"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	} `json:"results"`
}

// Rerank implements Reranker.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("reranker is closed")
	}
	if len(documents) == 0 {
		return []RerankResult{}, nil
	}

	var results []RerankResult
	err := r.breaker.Execute(func() error {
		var err error
		results, err = r.do(ctx, query, documents, topK)
		return err
	})
	if err != nil {
		return nil, docerrors.New(docerrors.ErrCodeRerankUnavailable, "rerank failed", err)
	}
	return results, nil
}

func (r *HTTPReranker) do(ctx context.Context, query string, documents []string, topK int) ([]RerankResult, error) {
	start := time.Now()
	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents, Model: r.config.Model, TopK: topK})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rerank request: %w", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank failed (status %d): %s", resp.StatusCode, string(respBody))
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode rerank response: %w", err)
	}

	results := make([]RerankResult, 0, len(decoded.Results))
	for _, res := range decoded.Results {
		if res.Index < 0 || res.Index >= len(documents) {
			return nil, fmt.Errorf("rerank result index %d out of range", res.Index)
		}
		results = append(results, RerankResult{Index: res.Index, Score: res.Score})
	}

	slog.Debug("rerank_complete",
		slog.String("query", truncateQuery(query, 50)),
		slog.Int("doc_count", len(documents)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// Available checks the server's /health endpoint.
func (r *HTTPReranker) Available(ctx context.Context) bool {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed || !r.breaker.Allow() {
		return false
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Close releases idle connections.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if transport, ok := r.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
	return nil
}

// truncateQuery truncates a query string for logging
func truncateQuery(q string, maxLen int) string {
	r := []rune(q)
	if len(r) <= maxLen {
		return q
	}
	return string(r[:maxLen]) + "..."
}
