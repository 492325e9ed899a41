package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/common/logger"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/reader"
)

// Result is the pipeline verdict: which criterion decided it and why.
type Result struct {
	Pass      bool
	Criterion Criterion
	Think     string
}

// criterionVerdict is the structured output shared by every criterion call.
type criterionVerdict struct {
	Think string `json:"think" jsonschema:"required" jsonschema_description:"Step-by-step reasoning for the verdict"`
	Pass  bool   `json:"pass" jsonschema:"required" jsonschema_description:"Whether the answer satisfies this criterion"`
}

var criterionSchema = llm.GenerateSchema[criterionVerdict]()

// Evaluator runs the criterion pipeline over a candidate answer. Criteria
// execute in fixed order and the pipeline short-circuits on the first
// failure, so a rejected answer carries exactly one verdict.
type Evaluator struct {
	gen    *llm.Generator
	reader reader.Reader
}

func New(gen *llm.Generator, rd reader.Reader) *Evaluator {
	return &Evaluator{gen: gen, reader: rd}
}

// Evaluate judges the answer in step against the session's criteria.
// visitedURLs lets attribution skip re-fetching sources the agent already
// read. An LLM failure counts as a failed evaluation with the error text as
// reasoning; it never aborts the session.
func (e *Evaluator) Evaluate(ctx context.Context, question string, step model.Step, criteria []Criterion, visitedURLs map[string]bool) Result {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "agent.evaluator"})

	ordered := orderCriteria(criteria, step.References)
	if len(ordered) == 0 {
		return Result{Pass: true, Think: "No evaluation criteria apply to this question."}
	}

	start := time.Now()
	for _, criterion := range ordered {
		verdict, err := e.evaluateCriterion(ctx, criterion, question, step, visitedURLs)
		if err != nil {
			slog.WarnContext(ctx, "criterion evaluation errored, treating as failure",
				"criterion", criterion,
				"error", err)
			return Result{Pass: false, Criterion: criterion, Think: err.Error()}
		}
		if !verdict.Pass {
			slog.InfoContext(ctx, "answer rejected",
				"criterion", criterion,
				"duration_ms", time.Since(start).Milliseconds(),
				"reason", logger.Truncate(verdict.Think, 200))
			return Result{Pass: false, Criterion: criterion, Think: verdict.Think}
		}
	}

	slog.InfoContext(ctx, "answer accepted",
		"criteria", len(ordered),
		"duration_ms", time.Since(start).Milliseconds())
	return Result{Pass: true}
}

func (e *Evaluator) evaluateCriterion(ctx context.Context, criterion Criterion, question string, step model.Step, visitedURLs map[string]bool) (*criterionVerdict, error) {
	if criterion == CriterionAttribution {
		return e.evaluateAttribution(ctx, question, step, visitedURLs)
	}

	prompt, ok := criterionPrompts[criterion]
	if !ok {
		return nil, fmt.Errorf("unknown criterion %q", criterion)
	}

	var verdict criterionVerdict
	_, err := e.gen.GenerateObject(ctx, llm.GenerateParams{
		Tool:         config.ToolEvaluator,
		SystemPrompt: prompt,
		Prompt:       buildVerdictPrompt(question, step.Answer),
		SchemaName:   fmt.Sprintf("%s_evaluation", criterion),
		Schema:       criterionSchema,
		NumRetries:   1,
	}, &verdict)
	if err != nil {
		return nil, fmt.Errorf("%s evaluation: %w", criterion, err)
	}
	return &verdict, nil
}

// evaluateAttribution fetches the content of any reference URL the agent has
// not already visited, then asks the attribution judge whether the sources
// actually support the answer. With nothing new to read and every reference
// already visited, the answer passes on the strength of the visit ledger.
func (e *Evaluator) evaluateAttribution(ctx context.Context, question string, step model.Step, visitedURLs map[string]bool) (*criterionVerdict, error) {
	var unvisited []string
	for _, ref := range step.References {
		if ref.URL == "" || visitedURLs[ref.URL] {
			continue
		}
		if strings.HasPrefix(ref.URL, "http://") || strings.HasPrefix(ref.URL, "https://") {
			unvisited = append(unvisited, ref.URL)
		}
	}

	if len(unvisited) == 0 {
		return &criterionVerdict{
			Pass:  true,
			Think: "All cited sources were read during the research loop; their content already grounds the answer.",
		}, nil
	}

	var sources strings.Builder
	fetched := 0
	for _, target := range unvisited {
		result, err := e.reader.Read(ctx, target)
		if err != nil {
			slog.WarnContext(ctx, "attribution source fetch failed",
				"url", target,
				"error", err)
			continue
		}
		fetched++
		sources.WriteString(fmt.Sprintf("<source url=%q>\n%s\n</source>\n\n", target, result.Content))
	}

	if fetched == 0 {
		return &criterionVerdict{
			Pass:  false,
			Think: "None of the cited sources could be fetched, so the answer's attribution cannot be verified.",
		}, nil
	}

	var verdict criterionVerdict
	_, err := e.gen.GenerateObject(ctx, llm.GenerateParams{
		Tool:         config.ToolEvaluator,
		SystemPrompt: attributionPrompt,
		Prompt: fmt.Sprintf("Question: %s\n\nAnswer:\n%s\n\nSource content:\n%s",
			question, step.Answer, sources.String()),
		SchemaName: "attribution_evaluation",
		Schema:     criterionSchema,
		NumRetries: 1,
	}, &verdict)
	if err != nil {
		return nil, fmt.Errorf("attribution evaluation: %w", err)
	}
	return &verdict, nil
}

func buildVerdictPrompt(question, answer string) string {
	var sb strings.Builder
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nAnswer:\n")
	sb.WriteString(answer)
	sb.WriteString(fmt.Sprintf("\n\nToday is %s.", time.Now().UTC().Format("2006-01-02")))
	return sb.String()
}

var criterionPrompts = map[Criterion]string{
	CriterionDefinitive: `You judge whether an answer is definitive. A definitive answer commits to a position and provides the requested information directly.

Fail the answer when it:
- refuses, deflects, or says it cannot answer
- hedges without committing ("it might be", "it's hard to say")
- only describes how one could find the answer instead of answering
- asks the user a question back

Expressions of calibrated uncertainty about genuinely unknowable things are acceptable. Judge only definitiveness, not correctness.`,

	CriterionFreshness: `You judge whether an answer is fresh enough for a time-sensitive question. Use today's date given in the prompt.

Fail the answer when it relies on clearly outdated information for a question about current state (latest versions, current office-holders, recent events, prices, schedules). An answer that names an old version or a superseded fact as current fails. Historical questions are exempt; judge only whether the recency the question demands is met.`,

	CriterionPlurality: `You judge whether an answer provides the multiplicity the question asks for.

If the question requests multiple items (a list, several examples, "top N", "what are the ways..."), the answer must deliver a plural set of distinct items, roughly matching any requested count. Fail answers that give a single item or collapse the request into one generic statement.`,

	CriterionCompleteness: `You judge whether an answer covers every aspect the question explicitly names.

Identify the named aspects (entities, time ranges, comparison sides, sub-questions). Fail the answer if any named aspect is missing or dismissed without treatment. Do not demand aspects the question never mentioned.`,
}

var attributionPrompt = `You verify that an answer is supported by its cited sources.

Check every factual claim that a citation is attached to: the supplied source content must actually contain or directly entail it. Fail the answer when a cited claim is absent from the sources, contradicted by them, or when quotes are altered. Sources not needed for uncited background knowledge.`
