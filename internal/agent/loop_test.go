package agent_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/agent"
	"deepresearch.app/agent/internal/dedup"
	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/reader"
	"deepresearch.app/agent/internal/refs"
	"deepresearch.app/agent/internal/trackers"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// scriptedLLM routes calls by schema name. Agent steps pop from a queue;
// criterion verdicts pop per-schema queues and default to passing.
type scriptedLLM struct {
	mu       sync.Mutex
	profile  string
	steps    []string
	beast    string
	verdicts map[string][]string
	perCall  llm.Usage
	schemas  []string
}

func (m *scriptedLLM) Chat(_ context.Context, req llm.Request, result any) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.schemas = append(m.schemas, req.SchemaName)

	var raw string
	switch req.SchemaName {
	case "question_profile":
		raw = m.profile
		if raw == "" {
			raw = `{"think":"plain question","needsDefinitive":true,"needsFreshness":false,"needsPlurality":false,"needsCompleteness":false,"languageStyle":"plain English"}`
		}
	case "agent_step":
		if len(m.steps) == 0 {
			return nil, errors.New("step script exhausted")
		}
		raw = m.steps[0]
		m.steps = m.steps[1:]
	case "agent_final_step":
		raw = m.beast
		if raw == "" {
			return nil, errors.New("beast mode not scripted")
		}
	default:
		if queue := m.verdicts[req.SchemaName]; len(queue) > 0 {
			raw = queue[0]
			m.verdicts[req.SchemaName] = queue[1:]
		} else {
			raw = `{"think":"ok","pass":true}`
		}
	}

	usage := m.perCall
	if usage.TotalTokens == 0 {
		usage = llm.Usage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}
	}
	resp := &llm.Response{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		RawText:          raw,
	}
	if err := json.Unmarshal([]byte(raw), result); err != nil {
		return resp, fmt.Errorf("%w: %v", llm.ErrMalformedObject, err)
	}
	return resp, nil
}

func (m *scriptedLLM) Model() string { return "scripted" }

// fakeSearcher returns the same canned hits for every query.
type fakeSearcher struct {
	results []model.SearchResult
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string) ([]model.SearchResult, error) {
	f.queries = append(f.queries, query)
	return f.results, nil
}

func (f *fakeSearcher) Name() string { return "fake" }

// fakeReader serves canned page content.
type fakeReader struct {
	content map[string]string
	reads   []string
}

func (f *fakeReader) Read(_ context.Context, target string) (*reader.Result, error) {
	f.reads = append(f.reads, target)
	content, ok := f.content[target]
	if !ok {
		return nil, fmt.Errorf("fetch %s: status 404", target)
	}
	return &reader.Result{URL: target, Title: "Page", Content: content, Tokens: len(content) / 4}, nil
}

// basisEmbedder gives every text an orthogonal vector, so nothing ever
// counts as a duplicate and reference matching never fires.
type basisEmbedder struct{}

func (basisEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float64, int, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, len(texts))
		v[i] = 1
		out[i] = v
	}
	return out, 0, nil
}

func buildAgent(client llm.Client, searcher *fakeSearcher, rd *fakeReader) *agent.Agent {
	cfg := config.LLMConfig{DefaultModel: "scripted", Tools: map[string]config.ToolConfig{}}
	embedder := basisEmbedder{}
	return agent.New(agent.Config{
		Registry:   llm.NewRegistryWithClient(client, cfg),
		Searcher:   searcher,
		Reader:     rd,
		RefBuilder: refs.NewBuilder(embedder),
		Deduper:    dedup.New(embedder),
		LLM:        cfg,
	})
}

func answerStep(answer string, references ...model.Reference) string {
	step := model.Step{Action: "answer", Think: "answering", Answer: answer, References: references}
	raw, _ := json.Marshal(step)
	return string(raw)
}

var _ = Describe("GetResponse", func() {
	var (
		client   *scriptedLLM
		searcher *fakeSearcher
		rd       *fakeReader
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		client = &scriptedLLM{verdicts: map[string][]string{}}
		searcher = &fakeSearcher{}
		rd = &fakeReader{content: map[string]string{}}
	})

	It("answers trivial arithmetic in a single step", func() {
		client.steps = []string{answerStep("7 * 9 = 63.")}
		ag := buildAgent(client, searcher, rd)

		outcome, err := ag.GetResponse(ctx, agent.Params{
			Question:    "what's 7 * 9?",
			TokenBudget: 100_000,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.FinalStep.Answer).To(ContainSubstring("63"))
		Expect(outcome.FinalStep.References).To(BeEmpty())
		Expect(outcome.Trackers.Actions.State().BadAttempts).To(BeZero())
		Expect(outcome.Trackers.Actions.Counts()["answer"]).To(Equal(1))
	})

	It("returns immediately for a greeting with no criteria", func() {
		client.profile = `{"think":"greeting","needsDefinitive":false,"needsFreshness":false,"needsPlurality":false,"needsCompleteness":false,"languageStyle":"casual"}`
		client.steps = []string{answerStep("Hi! How can I help you today?")}
		ag := buildAgent(client, searcher, rd)

		outcome, err := ag.GetResponse(ctx, agent.Params{
			Question:    "hi there",
			TokenBudget: 100_000,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.FinalStep.Answer).To(ContainSubstring("Hi"))
		// No evaluator calls: just classifier and one agent step.
		Expect(client.schemas).To(Equal([]string{"question_profile", "agent_step"}))
	})

	It("searches, visits, and answers with references", func() {
		searcher.results = []model.SearchResult{
			{Title: "TypeScript Docs", URL: "https://ts.example/docs", Description: "docs"},
		}
		rd.content["https://ts.example/docs"] = "TypeScript is a strongly typed programming language that builds on JavaScript."

		client.verdicts["query_rewrite"] = []string{
			`{"think":"variants","queries":["typescript language"]}`,
		}
		client.steps = []string{
			`{"action":"search","think":"need sources","searchQuery":"what is typescript"}`,
			`{"action":"visit","think":"read the docs","URLTargets":["https://ts.example/docs"]}`,
			answerStep("TypeScript is a typed superset of JavaScript.", model.Reference{
				URL:        "https://ts.example/docs",
				ExactQuote: "strongly typed programming language that builds on JavaScript",
			}),
		}
		ag := buildAgent(client, searcher, rd)

		outcome, err := ag.GetResponse(ctx, agent.Params{
			Question:    "What is TypeScript?",
			TokenBudget: 500_000,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.FinalStep.References).To(HaveLen(1))
		Expect(outcome.FinalStep.References[0].URL).To(Equal("https://ts.example/docs"))
		Expect(searcher.queries).To(Equal([]string{"typescript language"}))
		// Visited during the loop, so attribution passed on the ledger
		// without re-reading the page.
		Expect(rd.reads).To(Equal([]string{"https://ts.example/docs"}))

		counts := outcome.Trackers.Actions.Counts()
		Expect(counts["search"]).To(Equal(1))
		Expect(counts["visit"]).To(Equal(1))
		Expect(counts["answer"]).To(Equal(1))
	})

	It("pushes a rejected answer into bad context and recovers", func() {
		client.profile = `{"think":"wants current info","needsDefinitive":true,"needsFreshness":true,"needsPlurality":false,"needsCompleteness":false,"languageStyle":"plain"}`
		client.verdicts["freshness_evaluation"] = []string{
			`{"think":"cites a 2020 release as current","pass":false}`,
		}
		client.verdicts["attempt_analysis"] = []string{
			`{"recap":"answered from stale memory","blame":"never searched for the current version","improvement":"search before answering"}`,
		}
		client.steps = []string{
			answerStep("The latest Node.js version is 14.0, released in 2020."),
			`{"action":"visit","think":"regroup","URLTargets":[]}`,
			answerStep("The latest Node.js version is 22.x."),
		}
		ag := buildAgent(client, searcher, rd)

		outcome, err := ag.GetResponse(ctx, agent.Params{
			Question:       "what's the latest Node.js version?",
			TokenBudget:    500_000,
			MaxBadAttempts: 2,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.FinalStep.Answer).To(ContainSubstring("22"))
		Expect(outcome.Trackers.Actions.State().BadAttempts).To(Equal(1))
		Expect(client.schemas).To(ContainElement("attempt_analysis"))
	})

	It("raises when the budget would be exceeded", func() {
		client.perCall = llm.Usage{PromptTokens: 60, CompletionTokens: 30, TotalTokens: 90}
		client.steps = []string{answerStep("never reached")}
		ag := buildAgent(client, searcher, rd)

		_, err := ag.GetResponse(ctx, agent.Params{
			Question:    "What is TypeScript?",
			TokenBudget: 100,
		})

		Expect(err).To(HaveOccurred())
		Expect(errors.Is(err, trackers.ErrBudgetExceeded)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("token budget would be exceeded"))
	})

	It("keeps the original question queued after reflecting", func() {
		question := "why did the roman empire fall?"
		client.steps = []string{
			`{"action":"reflect","think":"split it up","questionsToAnswer":["what were the economic causes?"]}`,
			answerStep("Economic instability weakened the empire."),
			answerStep("The empire fell through combined economic and military decline."),
		}
		ag := buildAgent(client, searcher, rd)

		tk := agent.NewTrackers(500_000)
		var sawOriginalQueued bool
		tk.Actions.Subscribe(func(state trackers.ActionState) {
			for _, gap := range state.Gaps {
				if gap == question {
					sawOriginalQueued = true
				}
			}
		})

		outcome, err := ag.GetResponse(ctx, agent.Params{
			Question:    question,
			TokenBudget: 500_000,
			Trackers:    &tk,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(sawOriginalQueued).To(BeTrue(), "original question should be re-enqueued behind new gaps")
		Expect(outcome.FinalStep.Answer).To(ContainSubstring("fell"))
	})

	It("forces beast mode after the bad-attempt limit", func() {
		client.verdicts["definitive_evaluation"] = []string{
			`{"think":"hedges","pass":false}`,
			`{"think":"still hedging","pass":false}`,
		}
		client.steps = []string{
			answerStep("It might be X, hard to say."),
			`{"action":"visit","think":"regroup","URLTargets":[]}`,
			answerStep("Possibly X?"),
		}
		client.beast = answerStep("It is X.")
		ag := buildAgent(client, searcher, rd)

		outcome, err := ag.GetResponse(ctx, agent.Params{
			Question:       "is it X?",
			TokenBudget:    500_000,
			MaxBadAttempts: 1,
		})

		Expect(err).NotTo(HaveOccurred())
		Expect(outcome.FinalStep.Answer).To(Equal("It is X."))
		Expect(client.schemas).To(ContainElement("agent_final_step"))
	})

	It("rejects an empty question", func() {
		ag := buildAgent(client, searcher, rd)
		_, err := ag.GetResponse(ctx, agent.Params{TokenBudget: 1000})
		Expect(err).To(HaveOccurred())
	})
})
