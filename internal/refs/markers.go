package refs

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	markerPattern   = regexp.MustCompile(`\[\^\d+\]`)
	listItemPattern = regexp.MustCompile(`^\s*(?:[-*+]\s|\d+[.)]\s)`)
)

const sentenceEnders = "！。？!.?"

// marker is a pending footnote insertion: the reference index (1-based) and
// the end position of its answer chunk in the original answer.
type marker struct {
	index    int
	position int
}

// injectMarkers inserts [^k] footnote markers into answer. Markers are
// processed in ascending position with a running offset so later insertions
// account for earlier ones. Two placement adjustments keep rendered markdown
// intact: when a list item immediately follows the insertion point, the
// marker moves before the chunk's trailing sentence punctuation; when the
// chunk ends in newlines or a table-row pipe, the marker moves before those
// characters.
func injectMarkers(answer string, markers []marker) string {
	sorted := make([]marker, len(markers))
	copy(sorted, markers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].position < sorted[j].position
	})

	var sb strings.Builder
	prev := 0
	for _, m := range sorted {
		pos := m.position
		if pos > len(answer) {
			pos = len(answer)
		}
		if pos < prev {
			pos = prev
		}

		insertAt := adjustInsertion(answer, pos)
		if insertAt < prev {
			insertAt = prev
		}

		sb.WriteString(answer[prev:insertAt])
		sb.WriteString(fmt.Sprintf("[^%d]", m.index))
		prev = insertAt
	}
	sb.WriteString(answer[prev:])
	return sb.String()
}

// adjustInsertion walks the insertion point backwards per the placement
// rules and returns the final index.
func adjustInsertion(answer string, pos int) int {
	// Trailing newlines and table-end pipes always stay after the marker.
	for pos > 0 && (answer[pos-1] == '\n' || answer[pos-1] == '|') {
		pos--
	}

	if listItemFollows(answer, pos) {
		for pos > 0 && strings.ContainsRune(sentenceEnders, rune(answer[pos-1])) {
			pos--
		}
	}

	return pos
}

// listItemFollows reports whether the text after pos starts a markdown list
// item on the next line.
func listItemFollows(answer string, pos int) bool {
	rest := answer[pos:]
	idx := strings.IndexByte(rest, '\n')
	if idx < 0 {
		return false
	}
	return listItemPattern.MatchString(rest[idx+1:])
}

// StripMarkers removes every [^k] footnote marker, recovering the original
// answer text.
func StripMarkers(answer string) string {
	return markerPattern.ReplaceAllString(answer, "")
}
