package agent

import (
	"context"
	"fmt"
	"log/slog"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/common/logger"
	"deepresearch.app/agent/internal/evaluator"
	"deepresearch.app/agent/internal/model"
)

// executeAnswer judges a candidate answer. Answers to the original question
// gate loop termination; accepted sub-question answers become knowledge.
func (a *Agent) executeAnswer(ctx context.Context, s *session, gen *llm.Generator, eval *evaluator.Evaluator, step model.Step, currentQuestion string) error {
	result := eval.Evaluate(ctx, currentQuestion, step, s.criteria, s.visitedURLs)

	if currentQuestion != s.question {
		if result.Pass {
			s.addKnowledge(model.KnowledgeItem{
				Question:   currentQuestion,
				Answer:     step.Answer,
				Type:       model.KnowledgeQA,
				References: step.References,
			})
			s.addDiary(fmt.Sprintf(
				"At step %d, you took the **answer** action for the sub-question: %q.\nThe answer was accepted and added to your knowledge.",
				s.step, currentQuestion))
		} else {
			s.addDiary(fmt.Sprintf(
				"At step %d, you answered the sub-question %q but the answer was not good enough: %s",
				s.step, currentQuestion, result.Think))
		}
		return nil
	}

	// Original question from here on.
	if s.badAttempts >= s.maxBadAttempts {
		// Terminal: the loop exits and beast mode takes over.
		s.terminal = true
		slog.WarnContext(ctx, "bad-attempt limit reached, deferring to beast mode",
			"bad_attempts", s.badAttempts)
		return nil
	}

	if result.Pass {
		if len(step.References) > 0 || len(s.allURLs) == 0 {
			s.finalStep = step
			s.isFinal = true
			return nil
		}
		// Passing but unreferenced while URLs remain unexplored: demand
		// sources and keep looping. This does not count as a bad attempt.
		s.addDiary(fmt.Sprintf(
			"At step %d, you answered the original question, but the answer cited no sources while unvisited URLs remain.\nVisit the most promising URLs and answer again with references.",
			s.step))
		return nil
	}

	// Rejected: post-mortem the diary, then restart the inner loop.
	analysis := a.analyzeAttempt(ctx, s, gen, result.Think)
	s.badContext = append(s.badContext, model.BadAttempt{
		Question:    currentQuestion,
		Answer:      step.Answer,
		Evaluation:  result.Think,
		Recap:       analysis.Recap,
		Blame:       analysis.Blame,
		Improvement: analysis.Improvement,
	})
	s.badAttempts++
	s.allowAnswer = false
	s.diaryContext = nil
	s.step = 0

	slog.InfoContext(ctx, "answer rejected, restarting inner loop",
		"criterion", result.Criterion,
		"bad_attempts", s.badAttempts,
		"reason", logger.Truncate(result.Think, 200))
	return nil
}
