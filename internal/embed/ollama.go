package embed

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

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// Ollama defaults
const (
	DefaultOllamaHost  = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	OllamaPoolSize     = 4
)

// OllamaConfig configures the Ollama embedding backend.
type OllamaConfig struct {
	Host       string
	Model      string
	Dimensions int
	PoolSize   int

	// Retry is the backoff for the startup health check. Zero uses
	// docerrors.DefaultRetryConfig.
	Retry docerrors.RetryConfig

	// SkipHealthCheck skips model discovery; Dimensions must then be set.
	SkipHealthCheck bool
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

type ollamaModelInfo struct {
	Name string `json:"name"`
}

type ollamaTagsResponse struct {
	Models []ollamaModelInfo `json:"models"`
}

// OllamaModel generates embeddings through Ollama's HTTP API.
type OllamaModel struct {
	client    *http.Client
	transport *http.Transport
	config    OllamaConfig
	modelName string
	dims      int
	breaker   *docerrors.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

var _ Model = (*OllamaModel)(nil)

// NewOllamaModel connects to Ollama, resolves the model name and detects
// the vector width. Any failure is reported as a ModelLoadError.
func NewOllamaModel(ctx context.Context, cfg OllamaConfig) (*OllamaModel, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = docerrors.DefaultRetryConfig()
	}

	// No client-wide timeout: each batch carries its own deadline.
	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	m := &OllamaModel{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		modelName: cfg.Model,
		dims:      cfg.Dimensions,
		breaker: docerrors.NewCircuitBreaker("ollama",
			docerrors.WithMaxFailures(5),
			docerrors.WithResetTimeout(30*time.Second)),
	}

	if cfg.SkipHealthCheck {
		if m.dims <= 0 {
			return nil, docerrors.ModelLoadError(cfg.Model, fmt.Errorf("dimensions required when health check is skipped"))
		}
		return m, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, DefaultHealthTimeout)
	defer cancel()

	name, err := docerrors.RetryWithResult(checkCtx, cfg.Retry, func() (string, error) {
		return m.findModel(checkCtx)
	})
	if err != nil {
		transport.CloseIdleConnections()
		return nil, docerrors.ModelLoadError(cfg.Model, err).
			WithDetail("host", cfg.Host).
			WithSuggestion("Start Ollama and run 'ollama pull " + cfg.Model + "', or set embeddings.provider to 'hash'")
	}
	m.modelName = name

	if m.dims == 0 {
		vecs, err := m.doEmbed(checkCtx, []string{"dimension detection"})
		if err != nil || len(vecs) == 0 || len(vecs[0]) == 0 {
			transport.CloseIdleConnections()
			if err == nil {
				err = fmt.Errorf("empty embedding returned")
			}
			return nil, docerrors.ModelLoadError(cfg.Model, fmt.Errorf("detect dimensions: %w", err))
		}
		m.dims = len(vecs[0])
	}

	slog.Info("ollama_model_ready",
		slog.String("host", cfg.Host),
		slog.String("model", m.modelName),
		slog.Int("dimensions", m.dims))
	return m, nil
}

// findModel matches the configured model against /api/tags, with and
// without the ":tag" suffix.
func (m *OllamaModel) findModel(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.Host+"/api/tags", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	available := make(map[string]string, len(tags.Models)*2)
	for _, info := range tags.Models {
		name := strings.ToLower(info.Name)
		available[name] = info.Name
		base := strings.Split(name, ":")[0]
		if _, exists := available[base]; !exists {
			available[base] = info.Name
		}
	}

	want := strings.ToLower(m.config.Model)
	if actual, ok := available[want]; ok {
		return actual, nil
	}
	if actual, ok := available[strings.Split(want, ":")[0]]; ok {
		return actual, nil
	}
	return "", fmt.Errorf("model %s not available", m.config.Model)
}

// Encode implements Model. Blank texts get zero vectors without a request.
func (m *OllamaModel) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("ollama model is closed")
	}

	results := make([][]float32, len(texts))
	var idx []int
	var batch []string
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			results[i] = make([]float32, m.dims)
			continue
		}
		idx = append(idx, i)
		batch = append(batch, t)
	}
	if len(batch) == 0 {
		return results, nil
	}

	var vecs [][]float32
	err := m.breaker.Execute(func() error {
		var err error
		vecs, err = m.doEmbed(ctx, batch)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(batch) {
		return nil, fmt.Errorf("ollama returned %d embeddings for %d inputs", len(vecs), len(batch))
	}
	for j, i := range idx {
		results[i] = vecs[j]
	}
	return results, nil
}

func (m *OllamaModel) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: m.modelName, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Embeddings, nil
}

// Dimensions implements Model.
func (m *OllamaModel) Dimensions() int { return m.dims }

// Name implements Model.
func (m *OllamaModel) Name() string { return m.modelName }

// Reset drops idle connections so the next batch dials fresh.
func (m *OllamaModel) Reset() {
	m.transport.CloseIdleConnections()
}

// Close implements Model.
func (m *OllamaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.transport.CloseIdleConnections()
	return nil
}
