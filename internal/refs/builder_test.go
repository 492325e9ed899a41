package refs_test

import (
	"context"
	"errors"
	"strings"

	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/refs"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// fakeEmbedder assigns canned vectors by exact text match; unknown texts get
// orthogonal basis vectors.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float64, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := f.vectors[text]; ok {
			out[i] = v
		} else {
			v := make([]float64, len(texts)+8)
			v[i] = 1
			out[i] = v
		}
	}
	return out, 0, nil
}

var _ = Describe("Builder", func() {
	var ctx context.Context

	answerLine1 := "Go modules were introduced in Go 1.11 and became the default in Go 1.16 for all users."
	answerLine2 := "The go.mod file declares the module path and lists every dependency requirement precisely."
	answer := answerLine1 + "\n" + answerLine2

	quote1 := "Modules arrived with Go 1.11; as of Go 1.16 module-aware mode is enabled by default everywhere."
	quote2 := "A go.mod file defines the module's path and enumerates its dependency requirements in full."

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("selects unique matches above the threshold and injects markers", func() {
		embedder := &fakeEmbedder{vectors: map[string][]float64{
			answerLine1: {1, 0, 0, 0},
			answerLine2: {0, 1, 0, 0},
			quote1:      {0.95, 0.05, 0, 0},
			quote2:      {0.05, 0.95, 0, 0},
		}}
		builder := refs.NewBuilder(embedder)

		withMarkers, references := builder.Build(ctx, answer, []model.WebContent{
			{URL: "https://go.dev/blog/modules", Title: "Go Modules", Chunks: []string{quote1}},
			{URL: "https://go.dev/ref/mod", Title: "Modules Reference", Chunks: []string{quote2}},
		}, refs.BuildOptions{})

		Expect(references).To(HaveLen(2))
		Expect(references[0].URL).To(Equal("https://go.dev/blog/modules"))
		Expect(references[1].URL).To(Equal("https://go.dev/ref/mod"))

		for _, ref := range references {
			Expect(ref.RelevanceScore).To(BeNumerically(">=", 0.7))
			Expect(ref.AnswerChunkPosition).NotTo(BeNil())
		}

		Expect(withMarkers).To(ContainSubstring("[^1]"))
		Expect(withMarkers).To(ContainSubstring("[^2]"))
		Expect(refs.StripMarkers(withMarkers)).To(Equal(answer))
	})

	It("enforces uniqueness on both sides", func() {
		// Both web chunks match the same answer line; only the best survives.
		embedder := &fakeEmbedder{vectors: map[string][]float64{
			answerLine1: {1, 0},
			answerLine2: {0, 0.001},
			quote1:      {0.99, 0},
			quote2:      {0.9, 0.1},
		}}
		builder := refs.NewBuilder(embedder)

		_, references := builder.Build(ctx, answer, []model.WebContent{
			{URL: "https://a.example", Chunks: []string{quote1}},
			{URL: "https://b.example", Chunks: []string{quote2}},
		}, refs.BuildOptions{})

		Expect(references).To(HaveLen(1))
		Expect(references[0].URL).To(Equal("https://a.example"))
	})

	It("caps the number of references", func() {
		embedder := &fakeEmbedder{vectors: map[string][]float64{
			answerLine1: {1, 0},
			answerLine2: {0, 1},
			quote1:      {1, 0},
			quote2:      {0, 1},
		}}
		builder := refs.NewBuilder(embedder)

		_, references := builder.Build(ctx, answer, []model.WebContent{
			{URL: "https://a.example", Chunks: []string{quote1}},
			{URL: "https://b.example", Chunks: []string{quote2}},
		}, refs.BuildOptions{MaxRef: 1})

		Expect(references).To(HaveLen(1))
	})

	It("returns the untouched answer when nothing clears the threshold", func() {
		embedder := &fakeEmbedder{vectors: map[string][]float64{}}
		builder := refs.NewBuilder(embedder)

		withMarkers, references := builder.Build(ctx, answer, []model.WebContent{
			{URL: "https://a.example", Chunks: []string{strings.Repeat("unrelated content entirely ", 5)}},
		}, refs.BuildOptions{})

		Expect(references).To(BeEmpty())
		Expect(withMarkers).To(Equal(answer))
	})

	It("falls back to jaccard similarity when embedding fails", func() {
		embedder := &fakeEmbedder{err: errors.New("402 payment required")}
		builder := refs.NewBuilder(embedder)

		// Near-identical token sets so Jaccard clears the threshold.
		withMarkers, references := builder.Build(ctx, answer, []model.WebContent{
			{URL: "https://a.example", Title: "Mirror", Chunks: []string{answerLine1 + " indeed"}},
		}, refs.BuildOptions{})

		Expect(references).To(HaveLen(1))
		Expect(references[0].ExactQuote).To(ContainSubstring("Go modules were introduced"))
		Expect(refs.StripMarkers(withMarkers)).To(Equal(answer))
	})

	It("ignores short web chunks", func() {
		embedder := &fakeEmbedder{vectors: map[string][]float64{
			answerLine1: {1, 0},
			"tiny":      {1, 0},
		}}
		builder := refs.NewBuilder(embedder)

		_, references := builder.Build(ctx, answer, []model.WebContent{
			{URL: "https://a.example", Chunks: []string{"tiny"}},
		}, refs.BuildOptions{})

		Expect(references).To(BeEmpty())
	})
})
