package evaluator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/evaluator"
	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/reader"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockLLMClient answers by schema name with canned verdict JSON.
type mockLLMClient struct {
	verdicts map[string]string // schema name -> raw JSON
	err      error
	schemas  []string // call order
}

func (m *mockLLMClient) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.schemas = append(m.schemas, req.SchemaName)
	if m.err != nil {
		return nil, m.err
	}

	raw, ok := m.verdicts[req.SchemaName]
	if !ok {
		raw = `{"think": "fine", "pass": true}`
	}
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		return nil, err
	}
	return &llm.Response{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15, RawText: raw}, nil
}

func (m *mockLLMClient) Model() string { return "mock" }

// stubReader serves canned page content for attribution checks.
type stubReader struct {
	content map[string]string
	reads   []string
}

func (r *stubReader) Read(_ context.Context, target string) (*reader.Result, error) {
	r.reads = append(r.reads, target)
	content, ok := r.content[target]
	if !ok {
		return nil, fmt.Errorf("fetch %s: status 404", target)
	}
	return &reader.Result{URL: target, Content: content, Tokens: len(content) / 4}, nil
}

func newEvaluator(client llm.Client, rd reader.Reader) *evaluator.Evaluator {
	registry := llm.NewRegistryWithClient(client, config.LLMConfig{
		DefaultModel: "mock",
		Tools:        map[string]config.ToolConfig{},
	})
	return evaluator.New(llm.NewGenerator(registry, nil), rd)
}

var _ = Describe("Evaluator", func() {
	var (
		client *mockLLMClient
		rd     *stubReader
		eval   *evaluator.Evaluator
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &mockLLMClient{verdicts: map[string]string{}}
		rd = &stubReader{content: map[string]string{}}
		eval = newEvaluator(client, rd)
	})

	It("passes trivially with no criteria", func() {
		result := eval.Evaluate(ctx, "hi there", model.Step{Answer: "Hello!"}, nil, nil)

		Expect(result.Pass).To(BeTrue())
		Expect(client.schemas).To(BeEmpty())
	})

	It("short-circuits on the first failing criterion", func() {
		client.verdicts["definitive_evaluation"] = `{"think": "the answer hedges", "pass": false}`

		result := eval.Evaluate(ctx, "what is Go?", model.Step{Answer: "It might be a language?"},
			[]evaluator.Criterion{evaluator.CriterionDefinitive, evaluator.CriterionCompleteness}, nil)

		Expect(result.Pass).To(BeFalse())
		Expect(result.Criterion).To(Equal(evaluator.CriterionDefinitive))
		Expect(result.Think).To(ContainSubstring("hedges"))
		Expect(client.schemas).To(Equal([]string{"definitive_evaluation"}))
	})

	It("runs every requested criterion in order when all pass", func() {
		result := eval.Evaluate(ctx, "compare A and B", model.Step{Answer: "A does X; B does Y."},
			[]evaluator.Criterion{evaluator.CriterionCompleteness, evaluator.CriterionDefinitive, evaluator.CriterionFreshness}, nil)

		Expect(result.Pass).To(BeTrue())
		Expect(client.schemas).To(Equal([]string{
			"definitive_evaluation",
			"freshness_evaluation",
			"completeness_evaluation",
		}))
	})

	Describe("attribution", func() {
		step := model.Step{
			Answer: "Go 1.22 improved for loops.",
			References: []model.Reference{
				{URL: "https://go.dev/blog/loopvar", ExactQuote: "loop variables are now per-iteration"},
			},
		}

		It("is auto-added ahead of other criteria when references are present", func() {
			rd.content["https://go.dev/blog/loopvar"] = "In Go 1.22 loop variables are now per-iteration."

			result := eval.Evaluate(ctx, "what changed in Go 1.22?", step,
				[]evaluator.Criterion{evaluator.CriterionDefinitive}, nil)

			Expect(result.Pass).To(BeTrue())
			Expect(client.schemas[0]).To(Equal("attribution_evaluation"))
			Expect(rd.reads).To(Equal([]string{"https://go.dev/blog/loopvar"}))
		})

		It("passes without fetching when every reference was already visited", func() {
			visited := map[string]bool{"https://go.dev/blog/loopvar": true}

			result := eval.Evaluate(ctx, "what changed in Go 1.22?", step,
				[]evaluator.Criterion{evaluator.CriterionDefinitive}, visited)

			Expect(result.Pass).To(BeTrue())
			Expect(rd.reads).To(BeEmpty())
			// Only definitive hit the LLM; attribution passed on the ledger.
			Expect(client.schemas).To(Equal([]string{"definitive_evaluation"}))
		})

		It("fails when no cited source can be fetched", func() {
			result := eval.Evaluate(ctx, "what changed in Go 1.22?", step,
				[]evaluator.Criterion{evaluator.CriterionDefinitive}, nil)

			Expect(result.Pass).To(BeFalse())
			Expect(result.Criterion).To(Equal(evaluator.CriterionAttribution))
		})

		It("ignores non-web references", func() {
			local := model.Step{
				Answer:     "answer",
				References: []model.Reference{{URL: "file:///etc/hosts"}},
			}

			result := eval.Evaluate(ctx, "q", local,
				[]evaluator.Criterion{evaluator.CriterionDefinitive}, nil)

			Expect(result.Pass).To(BeTrue())
			Expect(client.schemas).To(Equal([]string{"definitive_evaluation"}))
		})
	})

	It("treats an LLM error as a failed evaluation with the error as reasoning", func() {
		client.err = errors.New("provider exploded")

		result := eval.Evaluate(ctx, "q", model.Step{Answer: "a"},
			[]evaluator.Criterion{evaluator.CriterionDefinitive}, nil)

		Expect(result.Pass).To(BeFalse())
		Expect(result.Think).To(ContainSubstring("provider exploded"))
	})
})

var _ = Describe("QuestionProfile", func() {
	It("maps toggles to criteria with definitive always first", func() {
		profile := evaluator.QuestionProfile{
			NeedsDefinitive: true,
			NeedsFreshness:  true,
			NeedsPlurality:  true,
		}

		Expect(profile.Criteria()).To(Equal([]evaluator.Criterion{
			evaluator.CriterionDefinitive,
			evaluator.CriterionFreshness,
			evaluator.CriterionPlurality,
		}))
	})

	It("returns no criteria for greetings", func() {
		profile := evaluator.QuestionProfile{NeedsDefinitive: false, NeedsPlurality: true}
		Expect(profile.Criteria()).To(BeEmpty())
	})
})
