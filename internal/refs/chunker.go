package refs

import (
	"regexp"
	"strings"
)

// Chunk is a slice of a larger text with its [start, end) character
// positions in the original.
type Chunk struct {
	Text     string
	Position [2]int
}

// SplitMode selects the chunking strategy.
type SplitMode string

const (
	SplitNewline     SplitMode = "newline"
	SplitPunctuation SplitMode = "punctuation"
	SplitCharacters  SplitMode = "characters"
	SplitRegex       SplitMode = "regex"
)

var sentenceEndPattern = regexp.MustCompile(`[.!?。！？]\s+|[.!?。！？]$`)

// ChunkerOptions configures ChunkText. The zero value means newline
// splitting with no minimum length.
type ChunkerOptions struct {
	Mode     SplitMode
	MinLen   int            // drop chunks shorter than this (after trimming)
	ChunkLen int            // fixed width for SplitCharacters
	Pattern  *regexp.Regexp // separator for SplitRegex
}

// ChunkText splits text into position-annotated chunks. Positions refer to
// the untrimmed slice boundaries so marker injection can address the
// original string; chunk text is trimmed for matching.
func ChunkText(text string, opts ChunkerOptions) []Chunk {
	var raw []Chunk

	switch opts.Mode {
	case SplitCharacters:
		width := opts.ChunkLen
		if width <= 0 {
			width = 500
		}
		for start := 0; start < len(text); start += width {
			end := start + width
			if end > len(text) {
				end = len(text)
			}
			raw = append(raw, Chunk{Text: text[start:end], Position: [2]int{start, end}})
		}

	case SplitPunctuation:
		raw = splitByPattern(text, sentenceEndPattern)

	case SplitRegex:
		pattern := opts.Pattern
		if pattern == nil {
			pattern = sentenceEndPattern
		}
		raw = splitByPattern(text, pattern)

	default: // SplitNewline
		start := 0
		for {
			idx := strings.IndexByte(text[start:], '\n')
			if idx < 0 {
				raw = append(raw, Chunk{Text: text[start:], Position: [2]int{start, len(text)}})
				break
			}
			end := start + idx
			raw = append(raw, Chunk{Text: text[start:end], Position: [2]int{start, end}})
			start = end + 1
		}
	}

	chunks := make([]Chunk, 0, len(raw))
	for _, c := range raw {
		trimmed := strings.TrimSpace(c.Text)
		if trimmed == "" {
			continue
		}
		if opts.MinLen > 0 && len(trimmed) < opts.MinLen {
			continue
		}
		chunks = append(chunks, Chunk{Text: trimmed, Position: c.Position})
	}
	return chunks
}

// splitByPattern cuts text at the end of every separator match, keeping the
// separator with the preceding chunk.
func splitByPattern(text string, pattern *regexp.Regexp) []Chunk {
	var chunks []Chunk
	start := 0
	for _, loc := range pattern.FindAllStringIndex(text, -1) {
		end := loc[1]
		chunks = append(chunks, Chunk{Text: text[start:end], Position: [2]int{start, end}})
		start = end
	}
	if start < len(text) {
		chunks = append(chunks, Chunk{Text: text[start:], Position: [2]int{start, len(text)}})
	}
	return chunks
}
