package search

import (
	"regexp"
	"strings"
)

// Penalty reasons
const (
	ReasonTableOfContents = "template:table_of_contents"
	ReasonCoverPage       = "template:cover_page"
)

type templateRule struct {
	reason  string
	phrases []string
	pattern *regexp.Regexp
}

// The Hangul markers are ordinary words too ("두 차례", "표지판"), so they
// only count as a heading of their own or when page leaders follow.
var templateRules = []templateRule{
	{
		reason:  ReasonTableOfContents,
		phrases: []string{"table of contents"},
		// Heading line "Contents", dot leaders such as "Intro ....... 3",
		// a "목차" or "차례" heading, or either marker followed by leaders
		// or a page number.
		pattern: regexp.MustCompile(`(?im)^\s*contents\s*$|\.{5,}\s*\d+\s*$` +
			`|^[\s#\[<(]*(목\s*차|차\s*례)[\s\]>):]*$` +
			`|(목차|차례)\s*(\.{3,}|·{3,}|…{2,})` +
			`|^\s*(목차|차례)\s+\d+\s*$`),
	},
	{
		reason:  ReasonCoverPage,
		phrases: []string{"cover page"},
		// "표지" opening a line as a word of its own.
		pattern: regexp.MustCompile(`(?m)^[\s#\[<(]*표\s*지[\]>):]*(\s|$)`),
	},
}

// TemplateReasons returns one reason per boilerplate template text looks like.
func TemplateReasons(text string) []string {
	reasons := []string{}
	if text == "" {
		return reasons
	}
	lower := strings.ToLower(text)
	for _, rule := range templateRules {
		if matchesRule(rule, lower) {
			reasons = append(reasons, rule.reason)
		}
	}
	return reasons
}

func matchesRule(rule templateRule, lower string) bool {
	for _, p := range rule.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return rule.pattern != nil && rule.pattern.MatchString(lower)
}
