package chunk

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

	fencePattern = regexp.MustCompile("^\\s*(```|~~~)")

	wordPattern = regexp.MustCompile(`\S+`)
)

// Chunker splits text into chunks. It is stateless and safe for concurrent use.
type Chunker struct {
	opts Options
}

// New creates a Chunker. Zero values take the defaults; an overlap that is
// not smaller than MaxTokens is clamped to MaxTokens/4.
func New(opts Options) *Chunker {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.OverlapTokens < 0 {
		opts.OverlapTokens = 0
	}
	if opts.OverlapTokens >= opts.MaxTokens {
		opts.OverlapTokens = opts.MaxTokens / 4
	}
	return &Chunker{opts: opts}
}

// EstimateTokens returns the token estimate of one whitespace-free word.
func EstimateTokens(word string) int {
	n := utf8.RuneCountInString(word)
	t := (n + CharsPerToken - 1) / CharsPerToken
	if t < 1 {
		return 1
	}
	return t
}

// CountTokens estimates the tokens in text.
func CountTokens(text string) int {
	total := 0
	for _, w := range strings.Fields(text) {
		total += EstimateTokens(w)
	}
	return total
}

// Chunk splits text into chunks with IDs 0..n-1. Every chunk holds at most
// MaxTokens tokens, except a single word that alone exceeds the limit.
func (c *Chunker) Chunk(path, text string) []Chunk {
	var chunks []Chunk
	for _, sec := range parseSections(text) {
		for _, body := range c.window(sec.text) {
			chunks = append(chunks, Chunk{
				ID:         len(chunks),
				Path:       path,
				Text:       body.text,
				TokenCount: body.tokens,
				Heading:    sec.heading,
			})
		}
	}
	return chunks
}

// section represents a run of text under one heading path.
type section struct {
	heading string
	text    string
}

// parseSections splits on markdown headings outside fenced code blocks.
func parseSections(content string) []section {
	lines := strings.Split(content, "\n")
	stack := make([]string, 6)

	var (
		sections []section
		current  strings.Builder
		heading  string
		inFence  bool
	)
	flush := func() {
		if strings.TrimSpace(current.String()) != "" {
			sections = append(sections, section{heading: heading, text: strings.TrimSpace(current.String())})
		}
		current.Reset()
	}

	for _, line := range lines {
		if fencePattern.MatchString(line) {
			inFence = !inFence
		}
		if !inFence {
			if m := headerPattern.FindStringSubmatch(line); m != nil {
				flush()
				level := len(m[1])
				stack[level-1] = strings.TrimSpace(m[2])
				for i := level; i < len(stack); i++ {
					stack[i] = ""
				}
				var parts []string
				for _, s := range stack[:level] {
					if s != "" {
						parts = append(parts, s)
					}
				}
				heading = strings.Join(parts, " > ")
			}
		}
		current.WriteString(line)
		current.WriteByte('\n')
	}
	flush()
	return sections
}

type body struct {
	text   string
	tokens int
}

// window slides a token-bounded window over the words of text. Chunk text is
// the original span from the first to the last word, so line breaks survive.
func (c *Chunker) window(text string) []body {
	spans := wordPattern.FindAllStringIndex(text, -1)
	if len(spans) == 0 {
		return nil
	}
	costs := make([]int, len(spans))
	for i, sp := range spans {
		costs[i] = EstimateTokens(text[sp[0]:sp[1]])
	}

	var out []body
	start := 0
	for start < len(spans) {
		end, sum := start, 0
		for end < len(spans) && (sum+costs[end] <= c.opts.MaxTokens || end == start) {
			sum += costs[end]
			end++
		}
		out = append(out, body{text: text[spans[start][0]:spans[end-1][1]], tokens: sum})
		if end == len(spans) {
			break
		}

		// Step back over at most OverlapTokens, always moving forward.
		next, back := end, 0
		for next > start+1 && back+costs[next-1] <= c.opts.OverlapTokens {
			back += costs[next-1]
			next--
		}
		start = next
	}
	return out
}
