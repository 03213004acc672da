package store

import (
	"sort"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/token/stop"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
)

// koreanStopWords are particles and fillers that survive unicode word
// segmentation as standalone tokens.
var koreanStopWords = []string{
	"은", "는", "이", "가", "을", "를", "의", "에", "에서", "와", "과",
	"및", "등", "그리고", "또는", "그", "저", "것", "수", "좀",
}

// analyzer is shared by indexing and querying so both sides agree on tokens.
var analyzer = newAnalyzer()

func newAnalyzer() *analysis.DefaultAnalyzer {
	stopWords := analysis.NewTokenMap()
	if err := stopWords.LoadBytes(en.EnglishStopWords); err != nil {
		panic(err)
	}
	for _, w := range koreanStopWords {
		stopWords.AddToken(w)
	}
	return &analysis.DefaultAnalyzer{
		Tokenizer: unicode.NewUnicodeTokenizer(),
		TokenFilters: []analysis.TokenFilter{
			lowercase.NewLowerCaseFilter(),
			stop.NewStopTokensFilter(stopWords),
		},
	}
}

// Tokenize returns lowercased, stopword-filtered word tokens in text
// order. Works for any script the unicode segmenter handles.
func Tokenize(text string) []string {
	if text == "" {
		return []string{}
	}
	stream := analyzer.Analyze([]byte(text))
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		tokens = append(tokens, string(tok.Term))
	}
	return tokens
}

// TokenSet returns the sorted distinct tokens of text.
func TokenSet(text string) []string {
	return Dedup(Tokenize(text))
}

// Dedup sorts tokens and removes duplicates.
func Dedup(tokens []string) []string {
	if len(tokens) == 0 {
		return []string{}
	}
	out := append([]string(nil), tokens...)
	sort.Strings(out)
	n := 1
	for i := 1; i < len(out); i++ {
		if out[i] != out[n-1] {
			out[n] = out[i]
			n++
		}
	}
	return out[:n]
}

// IsStopWord reports whether the lowercased token is filtered by Tokenize.
func IsStopWord(token string) bool {
	return len(Tokenize(token)) == 0
}
