package validation

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// PrintResult writes a human-readable report. Verbose lists every query;
// otherwise only failures are listed.
func PrintResult(w io.Writer, r *ValidationResult, verbose bool) {
	_, _ = fmt.Fprintf(w, "Retrieval evaluation (top %d)\n\n", r.TopK)

	section := func(title string, results []TestResult, pass, total int) {
		if total == 0 {
			return
		}
		_, _ = fmt.Fprintf(w, "%s: %d/%d passed\n", title, pass, total)
		for _, tr := range results {
			if tr.Passed && !verbose {
				continue
			}
			_, _ = fmt.Fprintf(w, "  [%s] %s %q%s\n", mark(tr.Passed), tr.Spec.ID, tr.Spec.Query, detail(tr))
		}
	}
	section("Tier 1", r.Tier1, r.Tier1Pass, r.Tier1Total)
	section("Tier 2", r.Tier2, r.Tier2Pass, r.Tier2Total)
	section("Negative", r.Negative, r.NegPass, r.NegTotal)

	_, _ = fmt.Fprintf(w, "\nMRR: %.3f\n", r.MRR)
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *ValidationResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

func mark(passed bool) string {
	if passed {
		return "PASS"
	}
	return "FAIL"
}

func detail(tr TestResult) string {
	switch {
	case tr.Error != "":
		return "  error: " + tr.Error
	case len(tr.Leaked) > 0:
		return "  leaked: " + strings.Join(tr.Leaked, ", ")
	case tr.MatchedAt >= 0:
		return fmt.Sprintf("  rank %d", tr.MatchedAt+1)
	case len(tr.Spec.Expected) > 0:
		return fmt.Sprintf("  expected %s, got [%s]", strings.Join(tr.Spec.Expected, ", "), strings.Join(tr.TopResults, ", "))
	default:
		return ""
	}
}
