package search

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/NOVA-ALLRounder/main-sub002/internal/store"
)

// quotedPattern matches "...", '...' and curly-quoted literals.
var quotedPattern = regexp.MustCompile(`"([^"]+)"|'([^']+)'|“([^”]+)”`)

// genericDocNouns name the kind of document rather than its subject.
var genericDocNouns = map[string]bool{
	"이력서": true, "문서": true, "파일": true, "보고서": true, "자료": true,
	"내용": true, "정보": true, "목록": true, "서류": true, "양식": true,
	"document": true, "documents": true, "file": true, "files": true,
	"report": true, "resume": true,
}

// requestSuffixes mark imperative request verbs ("찾아줘", "보여주세요").
var requestSuffixes = []string{"주세요", "줘요", "줘", "해줘", "할래", "싶어"}

// particleSuffixes are stripped from Hangul tokens when enough remains.
var particleSuffixes = []string{"에서", "에게", "으로", "의", "을", "를", "은", "는", "이", "가"}

// ExtractExactTerms returns literals from query that a matching chunk
// should contain verbatim: quoted phrases, capitalised or numeric Latin
// tokens, and Hangul content words. Order of first appearance is kept.
func ExtractExactTerms(query string) []string {
	var terms []string
	seen := make(map[string]bool)
	add := func(t string) {
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			return
		}
		seen[key] = true
		terms = append(terms, t)
	}

	for _, m := range quotedPattern.FindAllStringSubmatch(query, -1) {
		for _, g := range m[1:] {
			if s := strings.TrimSpace(g); s != "" {
				add(s)
			}
		}
	}
	rest := quotedPattern.ReplaceAllString(query, " ")

	fields := strings.FieldsFunc(rest, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '.'
	})
	for _, f := range fields {
		f = strings.Trim(f, "-_.")
		if f == "" {
			continue
		}
		switch {
		case isHangulWord(f):
			if t, ok := hangulTerm(f); ok {
				add(t)
			}
		case isLatinProperOrNumeric(f):
			add(f)
		}
	}
	return terms
}

// MatchExactTerms returns the terms contained in text, case-insensitively.
func MatchExactTerms(terms []string, text string) []string {
	matched := []string{}
	if len(terms) == 0 || text == "" {
		return matched
	}
	lower := strings.ToLower(text)
	for _, t := range terms {
		if strings.Contains(lower, strings.ToLower(t)) {
			matched = append(matched, t)
		}
	}
	return matched
}

func isHangulWord(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}

func hangulTerm(word string) (string, bool) {
	for _, suf := range requestSuffixes {
		if strings.HasSuffix(word, suf) {
			return "", false
		}
	}
	for _, suf := range particleSuffixes {
		if strings.HasSuffix(word, suf) && utf8.RuneCountInString(word)-utf8.RuneCountInString(suf) >= 2 {
			word = strings.TrimSuffix(word, suf)
			break
		}
	}
	if utf8.RuneCountInString(word) < 2 {
		return "", false
	}
	if genericDocNouns[word] || store.IsStopWord(word) {
		return "", false
	}
	return word, true
}

func isLatinProperOrNumeric(s string) bool {
	if utf8.RuneCountInString(s) < 2 {
		return false
	}
	if genericDocNouns[strings.ToLower(s)] {
		return false
	}
	first, _ := utf8.DecodeRuneInString(s)
	if unicode.IsUpper(first) {
		return true
	}
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
