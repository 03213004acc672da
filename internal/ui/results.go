package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
)

// previewWidth bounds the preview line in human output.
const previewWidth = 160

// ResultRenderer prints search hits.
type ResultRenderer struct {
	out     io.Writer
	styles  Styles
	explain bool
}

// NewResultRenderer creates a renderer. With explain set, every hit shows
// its score components.
func NewResultRenderer(out io.Writer, noColor, explain bool) *ResultRenderer {
	return &ResultRenderer{out: out, styles: GetStyles(noColor), explain: explain}
}

// Render writes hits in ranked order.
func (r *ResultRenderer) Render(query string, hits []search.Hit) {
	if len(hits) == 0 {
		_, _ = fmt.Fprintf(r.out, "No results for %q\n", query)
		return
	}
	for i, h := range hits {
		loc := fmt.Sprintf("%s#%d", h.Path, h.ChunkID)
		_, _ = fmt.Fprintf(r.out, "%2d. %s  %s\n", i+1, r.styles.Path.Render(loc),
			r.styles.Score.Render(fmt.Sprintf("%.4f", h.Score)))
		if h.Heading != "" {
			_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Label.Render(h.Heading))
		}
		if p := oneLine(h.Preview, previewWidth); p != "" {
			_, _ = fmt.Fprintf(r.out, "    %s\n", p)
		}
		if r.explain {
			r.renderExplain(h)
		}
	}
}

func (r *ResultRenderer) renderExplain(h search.Hit) {
	parts := []string{
		fmt.Sprintf("vector=%.4f", h.VectorSimilarity),
		fmt.Sprintf("lexical=%.4f", h.LexicalScore),
	}
	if h.RerankScore != nil {
		parts = append(parts, fmt.Sprintf("rerank=%.4f", *h.RerankScore))
	}
	if len(h.ExactTermsMatched) > 0 {
		parts = append(parts, "exact="+strings.Join(h.ExactTermsMatched, ","))
	}
	if len(h.PenaltyReasons) > 0 {
		parts = append(parts, r.styles.Warning.Render("penalty="+strings.Join(h.PenaltyReasons, ",")))
	}
	_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render(strings.Join(parts, " ")))
}

// RenderJSON writes hits as a JSON document.
func (r *ResultRenderer) RenderJSON(query string, hits []search.Hit) error {
	if hits == nil {
		hits = []search.Hit{}
	}
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Query string       `json:"query"`
		Hits  []search.Hit `json:"hits"`
	}{query, hits})
}

// oneLine collapses whitespace and truncates to width runes.
func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}
