package mcp

import (
	"fmt"
	"strings"

	"github.com/NOVA-ALLRounder/main-sub002/internal/search"
)

// FormatSearchResults renders hits as markdown for text-only clients.
func FormatSearchResults(query string, hits []search.Hit) string {
	if len(hits) == 0 {
		return fmt.Sprintf("No results found for \"%s\"", query)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"\n\n", query)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range hits {
		formatHit(&sb, i+1, h)
	}
	return sb.String()
}

func formatHit(sb *strings.Builder, num int, h search.Hit) {
	fmt.Fprintf(sb, "### %d. %s#%d (score: %.2f)\n", num, h.Path, h.ChunkID, h.Score)
	if h.Heading != "" {
		fmt.Fprintf(sb, "**Section:** %s\n", h.Heading)
	}
	if reason := matchReason(h); reason != "" {
		fmt.Fprintf(sb, "**Why:** %s\n", reason)
	}
	sb.WriteString("\n")

	if h.Ext == ".md" || h.Ext == ".markdown" {
		sb.WriteString(h.Preview)
		sb.WriteString("\n\n---\n\n")
		return
	}
	fmt.Fprintf(sb, "```\n%s\n```\n\n", h.Preview)
}

// matchReason explains the score adjustments applied to a hit.
func matchReason(h search.Hit) string {
	var parts []string
	if len(h.ExactTermsMatched) > 0 {
		terms := h.ExactTermsMatched
		if len(terms) > 5 {
			terms = terms[:5]
		}
		parts = append(parts, "matched: "+strings.Join(terms, ", "))
	}
	if h.RerankScore != nil {
		parts = append(parts, fmt.Sprintf("reranked %.2f", *h.RerankScore))
	}
	if len(h.PenaltyReasons) > 0 {
		parts = append(parts, "penalized: "+strings.Join(h.PenaltyReasons, ", "))
	}
	return strings.Join(parts, "; ")
}

// clampLimit keeps limit within [lo, hi], using def when unset.
func clampLimit(limit, def, lo, hi int) int {
	if limit <= 0 {
		return def
	}
	return min(max(limit, lo), hi)
}
