package refs

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"deepresearch.app/agent/internal/embed"
	"deepresearch.app/agent/internal/model"
)

// BuildOptions tune the matcher. Zero values take the defaults below.
type BuildOptions struct {
	MinChunkLen int
	MaxRef      int
	MinScore    float64
}

const (
	defaultMinChunkLen = 80
	defaultMaxRef      = 10
	defaultMinScore    = 0.7
)

// Builder cross-references an answer against visited web content: both are
// chunked, embedded in one batch, matched by cosine similarity (Jaccard when
// embeddings are unavailable), and the winning quotes become footnotes.
type Builder struct {
	embeddings embed.Provider
}

func NewBuilder(embeddings embed.Provider) *Builder {
	return &Builder{embeddings: embeddings}
}

type webChunk struct {
	text  string
	url   string
	title string
}

type match struct {
	webIdx int
	ansIdx int
	score  float64
}

// Build returns the answer with footnote markers injected plus the selected
// references. It never fails the enclosing request: any internal trouble
// degrades to fewer (possibly zero) references.
func (b *Builder) Build(ctx context.Context, answer string, webContents []model.WebContent, opts BuildOptions) (string, []model.Reference) {
	if opts.MinChunkLen <= 0 {
		opts.MinChunkLen = defaultMinChunkLen
	}
	if opts.MaxRef <= 0 {
		opts.MaxRef = defaultMaxRef
	}
	if opts.MinScore <= 0 {
		opts.MinScore = defaultMinScore
	}

	answerChunks := ChunkText(answer, ChunkerOptions{Mode: SplitNewline, MinLen: opts.MinChunkLen})
	if len(answerChunks) == 0 {
		return answer, nil
	}

	// The full chunk set keeps stable indices back into webContents; only
	// chunks long enough to be meaningful participate in matching.
	var allChunks []webChunk
	var eligible []int
	for _, wc := range webContents {
		for _, text := range wc.Chunks {
			trimmed := strings.TrimSpace(text)
			if trimmed == "" {
				continue
			}
			allChunks = append(allChunks, webChunk{text: trimmed, url: wc.URL, title: wc.Title})
			if len(trimmed) >= opts.MinChunkLen {
				eligible = append(eligible, len(allChunks)-1)
			}
		}
	}
	if len(eligible) == 0 {
		return answer, nil
	}

	start := time.Now()
	scores := b.scorePairs(ctx, answerChunks, allChunks, eligible)

	var matches []match
	for _, wi := range eligible {
		for ai := range answerChunks {
			matches = append(matches, match{webIdx: wi, ansIdx: ai, score: scores[wi][ai]})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		if matches[i].webIdx != matches[j].webIdx {
			return matches[i].webIdx < matches[j].webIdx
		}
		return matches[i].ansIdx < matches[j].ansIdx
	})

	usedWeb := make(map[int]bool)
	usedAns := make(map[int]bool)
	var selected []match
	for _, m := range matches {
		if len(selected) >= opts.MaxRef || m.score < opts.MinScore {
			break
		}
		if usedWeb[m.webIdx] || usedAns[m.ansIdx] {
			continue
		}
		usedWeb[m.webIdx] = true
		usedAns[m.ansIdx] = true
		selected = append(selected, m)
	}

	if len(selected) == 0 {
		slog.DebugContext(ctx, "no reference matches above threshold",
			"answer_chunks", len(answerChunks),
			"web_chunks", len(eligible),
			"min_score", opts.MinScore)
		return answer, nil
	}

	// Footnotes read 1..k in document order.
	sort.Slice(selected, func(i, j int) bool {
		return answerChunks[selected[i].ansIdx].Position[0] < answerChunks[selected[j].ansIdx].Position[0]
	})

	references := make([]model.Reference, len(selected))
	markers := make([]marker, len(selected))
	for i, m := range selected {
		chunk := answerChunks[m.ansIdx]
		pos := chunk.Position
		references[i] = model.Reference{
			ExactQuote:          allChunks[m.webIdx].text,
			URL:                 allChunks[m.webIdx].url,
			Title:               allChunks[m.webIdx].title,
			RelevanceScore:      m.score,
			AnswerChunk:         chunk.Text,
			AnswerChunkPosition: &pos,
		}
		markers[i] = marker{index: i + 1, position: pos[1]}
	}

	slog.InfoContext(ctx, "references built",
		"selected", len(selected),
		"answer_chunks", len(answerChunks),
		"web_chunks", len(eligible),
		"duration_ms", time.Since(start).Milliseconds())

	return injectMarkers(answer, markers), references
}

// scorePairs returns scores[webIdx][ansIdx]. Embedding failure falls back to
// Jaccard similarity over token sets, silently.
func (b *Builder) scorePairs(ctx context.Context, answerChunks []Chunk, allChunks []webChunk, eligible []int) map[int][]float64 {
	scores := make(map[int][]float64, len(eligible))

	texts := make([]string, 0, len(answerChunks)+len(eligible))
	for _, c := range answerChunks {
		texts = append(texts, c.Text)
	}
	for _, wi := range eligible {
		texts = append(texts, allChunks[wi].text)
	}

	vectors, _, err := b.embeddings.Embed(ctx, texts, "text-matching")
	if err == nil {
		answerVectors := vectors[:len(answerChunks)]
		for i, wi := range eligible {
			webVector := vectors[len(answerChunks)+i]
			row := make([]float64, len(answerChunks))
			for ai := range answerChunks {
				row[ai] = embed.Cosine(webVector, answerVectors[ai])
			}
			scores[wi] = row
		}
		return scores
	}

	slog.WarnContext(ctx, "reference embedding failed, using jaccard fallback", "error", err)

	answerTokens := make([]map[string]bool, len(answerChunks))
	for i, c := range answerChunks {
		answerTokens[i] = tokenize(c.Text)
	}
	for _, wi := range eligible {
		webTokens := tokenize(allChunks[wi].text)
		row := make([]float64, len(answerChunks))
		for ai := range answerChunks {
			row[ai] = jaccard(webTokens, answerTokens[ai])
		}
		scores[wi] = row
	}
	return scores
}

func tokenize(text string) map[string]bool {
	tokens := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		tokens[tok] = true
	}
	return tokens
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
