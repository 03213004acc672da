// Package chunk splits normalized document text into bounded, overlapping
// chunks. Markdown headings start new sections so a chunk never spans two
// of them, and each chunk carries its heading path.
package chunk

// Chunk size defaults.
const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 64
	CharsPerToken        = 4 // rough approximation: 4 runes = 1 token
)

// Chunk is a retrievable unit of one document.
type Chunk struct {
	ID         int    `json:"chunk_id"` // ordinal within the document
	Path       string `json:"path"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
	Heading    string `json:"heading,omitempty"` // "Title > Section"
}

// Options configures a Chunker.
type Options struct {
	MaxTokens     int
	OverlapTokens int
}
