package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
)

type attemptAnalysis struct {
	Recap       string `json:"recap" jsonschema:"required" jsonschema_description:"Chronological summary of the actions taken this attempt"`
	Blame       string `json:"blame" jsonschema:"required" jsonschema_description:"The specific step or pattern that doomed the attempt"`
	Improvement string `json:"improvement" jsonschema:"required" jsonschema_description:"Concrete strategy change for the next attempt"`
}

var attemptAnalysisSchema = llm.GenerateSchema[attemptAnalysis]()

const errorAnalyzerPrompt = `You review a failed research attempt. Given the action diary and the evaluator's reject reason, explain what went wrong.

- recap: what was actually done, in order, compressed.
- blame: the decisive mistake (searching the wrong thing, never visiting sources, answering too early, circling).
- improvement: the single most useful change of strategy for the retry. Be concrete; name queries or sources to try.`

// analyzeAttempt runs the error analyzer over the current diary. Failures
// degrade to a generic post-mortem so a rejection never kills the session.
func (a *Agent) analyzeAttempt(ctx context.Context, s *session, gen *llm.Generator, rejectReason string) attemptAnalysis {
	var sb strings.Builder
	sb.WriteString("Reject reason: ")
	sb.WriteString(rejectReason)
	sb.WriteString("\n\nAction diary:\n")
	for _, entry := range s.diaryContext {
		sb.WriteString(entry)
		sb.WriteString("\n\n")
	}

	var analysis attemptAnalysis
	if _, err := gen.GenerateObject(ctx, llm.GenerateParams{
		Tool:         config.ToolErrorAnalyzer,
		SystemPrompt: errorAnalyzerPrompt,
		Prompt:       sb.String(),
		SchemaName:   "attempt_analysis",
		Schema:       attemptAnalysisSchema,
		NumRetries:   1,
	}, &analysis); err != nil {
		slog.WarnContext(ctx, "attempt analysis failed", "error", err)
		return attemptAnalysis{
			Recap:       fmt.Sprintf("The attempt ran %d steps before the answer was rejected.", s.step),
			Blame:       rejectReason,
			Improvement: "Gather more specific evidence before answering again.",
		}
	}
	return analysis
}
