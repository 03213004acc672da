package embed

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// HashModel generates embeddings from hashed word and character-trigram
// features. It needs no network or model files and is fully
// deterministic, which makes it the offline default and the test model.
type HashModel struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// Feature weights
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

// hashStopWords are dropped from word features; they carry no topic signal.
var hashStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "to": true, "in": true, "on": true, "for": true,
	"is": true, "are": true, "was": true, "be": true, "with": true,
	"this": true, "that": true, "it": true, "as": true, "by": true,
}

// NewHashModel creates a hash model. dims <= 0 selects HashDimensions.
func NewHashModel(dims int) *HashModel {
	if dims <= 0 {
		dims = HashDimensions
	}
	return &HashModel{dims: dims}
}

// Encode implements Model.
func (m *HashModel) Encode(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, fmt.Errorf("hash model is closed")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = m.vector(text)
	}
	return out, nil
}

func (m *HashModel) vector(text string) []float32 {
	vector := make([]float32, m.dims)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return vector
	}

	for _, token := range hashTokens(trimmed) {
		vector[hashToIndex(token, m.dims)] += tokenWeight
	}
	for _, ngram := range extractNgrams(normalizeForNgrams(trimmed), ngramSize) {
		vector[hashToIndex(ngram, m.dims)] += ngramWeight
	}
	return normalizeVector(vector)
}

// hashTokens splits on anything that is not a letter or digit, in any script.
func hashTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if !hashStopWords[f] {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// normalizeForNgrams keeps lowercased letters and digits only.
func normalizeForNgrams(text string) []rune {
	var result []rune
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			result = append(result, r)
		}
	}
	return result
}

// extractNgrams extracts n-rune sliding windows.
func extractNgrams(runes []rune, n int) []string {
	if len(runes) < n {
		if len(runes) == 0 {
			return []string{}
		}
		return []string{string(runes)}
	}

	ngrams := make([]string, 0, len(runes)-n+1)
	for i := 0; i <= len(runes)-n; i++ {
		ngrams = append(ngrams, string(runes[i:i+n]))
	}
	return ngrams
}

// hashToIndex uses FNV-64 to map a string to an index.
func hashToIndex(s string, size int) int {
	h := fnv.New64()
	_, _ = h.Write([]byte(s))
	return int(h.Sum64() % uint64(size))
}

// Dimensions implements Model.
func (m *HashModel) Dimensions() int {
	return m.dims
}

// Name implements Model.
func (m *HashModel) Name() string {
	return fmt.Sprintf("hash-%d", m.dims)
}

// Close implements Model.
func (m *HashModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
