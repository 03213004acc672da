// Package extract turns document files into plain text and computes the
// content hash used by the chunk cache.
//
// Only text-like formats are handled here. Binary office formats are
// reported as unsupported so the pipeline can skip them per file; richer
// extractors plug in through Register.
package extract

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	htmlchar "github.com/blevesearch/bleve/v2/analysis/char/html"
	regexpchar "github.com/blevesearch/bleve/v2/analysis/char/regexp"
	"golang.org/x/text/unicode/norm"

	docerrors "github.com/NOVA-ALLRounder/main-sub002/internal/errors"
)

// Func extracts text from raw file content.
type Func func(ctx context.Context, data []byte) (string, error)

// Extractor maps extensions to extraction functions.
type Extractor struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// New returns an Extractor with the built-in text formats registered.
func New() *Extractor {
	e := &Extractor{funcs: make(map[string]Func)}
	for _, ext := range []string{".txt", ".md", ".markdown", ".rst", ".csv", ".tsv", ".json", ".xml"} {
		e.Register(ext, plainText)
	}
	e.Register(".html", htmlText)
	e.Register(".htm", htmlText)
	return e
}

// Register installs fn for ext, replacing any previous function.
func (e *Extractor) Register(ext string, fn Func) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.funcs[strings.ToLower(ext)] = fn
}

// Supports reports whether ext has an extractor.
func (e *Extractor) Supports(ext string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.funcs[strings.ToLower(ext)]
	return ok
}

// Extract reads path and returns its text. Unsupported formats return an
// error matching docerrors.ErrUnsupported.
func (e *Extractor) Extract(ctx context.Context, path string) (string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e.mu.RLock()
	fn, ok := e.funcs[ext]
	e.mu.RUnlock()
	if !ok {
		return "", docerrors.New(docerrors.ErrCodeUnsupportedFormat, "no text extractor for format", nil).
			WithDetail("path", path).
			WithDetail("ext", ext)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", docerrors.ScanError(path, err)
	}
	text, err := fn(ctx, data)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", path, err)
	}
	return text, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func plainText(_ context.Context, data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return string(data), nil
}

var (
	scriptFilter = regexpchar.New(
		regexp.MustCompile(`(?is)<(script|style|noscript)\b[^>]*>.*?</(script|style|noscript)\s*>`), []byte(" "))
	commentFilter = regexpchar.New(regexp.MustCompile(`(?s)<!--.*?-->`), []byte(" "))
	blockFilter   = regexpchar.New(
		regexp.MustCompile(`(?i)</?(p|div|br|li|tr|h[1-6]|section|article|table|ul|ol)\b[^>]*>`), []byte("\n"))
)

func htmlText(ctx context.Context, data []byte) (string, error) {
	text, err := plainText(ctx, data)
	if err != nil {
		return "", err
	}
	tags, err := htmlchar.CharFilterConstructor(nil, nil)
	if err != nil {
		return "", err
	}
	filters := []analysis.CharFilter{scriptFilter, commentFilter, blockFilter, tags}
	out := []byte(text)
	for _, f := range filters {
		out = f.Filter(out)
	}
	return html.UnescapeString(string(out)), nil
}

var (
	trailingSpace = regexp.MustCompile(`[ \t\x{00A0}]+\n`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Normalize canonicalises extracted text: NFC, LF line endings, no trailing
// spaces, at most one blank line in a row, trimmed. Two extractions of the
// same content always normalize to the same string.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = trailingSpace.ReplaceAllString(text+"\n", "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// DocHash returns the hex SHA-256 of normalized text.
func DocHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
