package evaluator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
)

// QuestionProfile is the one-shot classification of the user's question,
// computed at session start. It seeds the evaluator criteria and the
// response language style.
type QuestionProfile struct {
	Think             string `json:"think" jsonschema:"required" jsonschema_description:"Reasoning about what the question demands"`
	NeedsDefinitive   bool   `json:"needsDefinitive" jsonschema:"required" jsonschema_description:"False only for greetings and trivial chit-chat"`
	NeedsFreshness    bool   `json:"needsFreshness" jsonschema:"required" jsonschema_description:"True when the answer depends on current or recent information"`
	NeedsPlurality    bool   `json:"needsPlurality" jsonschema:"required" jsonschema_description:"True when multiple items or examples are requested"`
	NeedsCompleteness bool   `json:"needsCompleteness" jsonschema:"required" jsonschema_description:"True when the question names multiple aspects that must all be covered"`
	LanguageStyle     string `json:"languageStyle" jsonschema:"required" jsonschema_description:"Language and register to answer in, e.g. 'concise technical English'"`
}

var questionProfileSchema = llm.GenerateSchema[QuestionProfile]()

const classifierPrompt = `You classify a research question to pick evaluation criteria for its answer.

Rules:
- needsDefinitive is true for every real question. Set it false only for greetings, thanks, and trivial chit-chat that needs no research.
- needsFreshness: true when correctness depends on the present state of the world (latest releases, current prices, recent events, "as of today").
- needsPlurality: true when the question asks for several items (lists, examples, "top N", multiple options).
- needsCompleteness: true when the question explicitly names multiple aspects, entities, or sub-questions that must each be addressed. When completeness applies, it trumps plurality: set needsPlurality false.
- languageStyle: describe the language and register the answer should be written in, matching the question's own language.`

// Classifier runs the question-classifier LLM call.
type Classifier struct {
	gen *llm.Generator
}

func NewClassifier(gen *llm.Generator) *Classifier {
	return &Classifier{gen: gen}
}

// Classify profiles the question. On failure it degrades to a
// definitive-only profile so the session can still run.
func (c *Classifier) Classify(ctx context.Context, question string) QuestionProfile {
	var profile QuestionProfile
	start := time.Now()

	_, err := c.gen.GenerateObject(ctx, llm.GenerateParams{
		Tool:         config.ToolEvaluator,
		SystemPrompt: classifierPrompt,
		Prompt:       fmt.Sprintf("Question: %s", question),
		SchemaName:   "question_profile",
		Schema:       questionProfileSchema,
		NumRetries:   1,
	}, &profile)
	if err != nil {
		slog.WarnContext(ctx, "question classification failed, defaulting to definitive-only",
			"error", err)
		return QuestionProfile{NeedsDefinitive: true, LanguageStyle: "match the question's language"}
	}

	// Completeness trumps plurality even if the model ticked both.
	if profile.NeedsCompleteness {
		profile.NeedsPlurality = false
	}

	slog.InfoContext(ctx, "question classified",
		"needs_freshness", profile.NeedsFreshness,
		"needs_plurality", profile.NeedsPlurality,
		"needs_completeness", profile.NeedsCompleteness,
		"duration_ms", time.Since(start).Milliseconds())

	return profile
}

// Criteria converts the profile into the evaluator criteria set.
func (p QuestionProfile) Criteria() []Criterion {
	if !p.NeedsDefinitive {
		return nil
	}

	criteria := []Criterion{CriterionDefinitive}
	if p.NeedsFreshness {
		criteria = append(criteria, CriterionFreshness)
	}
	if p.NeedsPlurality {
		criteria = append(criteria, CriterionPlurality)
	}
	if p.NeedsCompleteness {
		criteria = append(criteria, CriterionCompleteness)
	}
	return criteria
}
