package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/common/logger"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/evaluator"
	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/refs"
	"deepresearch.app/agent/internal/trackers"
)

// charsPerToken is the rough prompt-size heuristic used for the pre-call
// budget margin.
const charsPerToken = 4

// GetResponse runs the research loop for one question and returns the final
// answer step. The loop ends when an answer to the original question passes
// every criterion, or the budget / bad-attempt limits force a terminal
// beast-mode pass.
func (a *Agent) GetResponse(ctx context.Context, params Params) (*Outcome, error) {
	if params.Question == "" {
		return nil, fmt.Errorf("question is required")
	}
	if params.MaxBadAttempts <= 0 {
		params.MaxBadAttempts = 2
	}

	tk := Trackers{}
	if params.Trackers != nil {
		tk = *params.Trackers
	}
	if tk.Tokens == nil {
		tk.Tokens = trackers.NewTokenTracker(params.TokenBudget)
	}
	if tk.Actions == nil {
		tk.Actions = trackers.NewActionTracker()
	}

	gen := llm.NewGenerator(a.registry, tk.Tokens)
	eval := evaluator.New(gen, a.reader)
	classifier := evaluator.NewClassifier(gen)

	s := newSession(params.Question, params.MaxBadAttempts, tk)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "agent.loop"})
	slog.InfoContext(ctx, "research session starting",
		"question", logger.Truncate(params.Question, 200),
		"budget", params.TokenBudget,
		"max_bad_attempts", params.MaxBadAttempts)

	// Criteria are chosen once per session by the question classifier.
	profile := classifier.Classify(ctx, params.Question)
	s.criteria = profile.Criteria()
	s.languageStyle = profile.LanguageStyle

	for s.withinBudget() && s.badAttempts <= s.maxBadAttempts && !s.terminal {
		if err := a.runStep(ctx, s, gen, eval); err != nil {
			return nil, err
		}
		if s.isFinal {
			answer, references := a.refBuilder.Build(ctx, s.finalStep.Answer, s.webContents, refs.BuildOptions{})
			s.finalStep.Answer = answer
			if len(references) > 0 {
				s.finalStep.References = references
			}
			slog.InfoContext(ctx, "research session completed",
				"total_steps", s.totalStep,
				"bad_attempts", s.badAttempts,
				"references", len(s.finalStep.References),
				"total_tokens", s.tokens.TotalUsage().TotalTokens)
			return &Outcome{
				FinalStep:  s.finalStep,
				References: s.finalStep.References,
				Trackers:   tk,
			}, nil
		}
	}

	// Out of budget or out of patience: one unconditional final pass.
	return a.beastMode(ctx, s, gen, tk)
}

// withinBudget is the loop-continuation guard, fed by the token tracker's
// cumulative total.
func (s *session) withinBudget() bool {
	budget := s.tokens.Budget()
	return budget <= 0 || s.tokens.TotalUsage().TotalTokens < budget
}

// runStep executes one loop iteration: cool-down, gating, prompt, LLM step
// choice, executor dispatch.
func (a *Agent) runStep(ctx context.Context, s *session, gen *llm.Generator, eval *evaluator.Evaluator) error {
	if a.stepSleep > 0 {
		time.Sleep(a.stepSleep)
	}

	s.step++
	s.totalStep++

	// Structural gating on top of any flags a prior no-op step cleared.
	// With more than one outstanding gap, reflection only adds noise.
	if len(s.gaps) > 1 {
		s.allowReflect = false
	}
	if len(s.allURLs) == 0 {
		s.allowRead = false
	}
	if len(s.allURLs) >= maxURLsBeforeSearchStops {
		s.allowSearch = false
	}

	currentQuestion := s.currentQuestion()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Step:      logger.Ptr(s.step),
		TotalStep: logger.Ptr(s.totalStep),
	})

	allowed := s.allowedActions()
	if len(allowed) == 0 {
		return fmt.Errorf("no actions available at step %d", s.totalStep)
	}

	prompt := s.buildPrompt(currentQuestion, false)

	toolCfg := a.llmConfig.Tool(config.ToolAgent)
	estimated := (len(agentSystemPrompt)+len(prompt))/charsPerToken + toolCfg.MaxTokens
	if err := s.tokens.CheckBudget(estimated); err != nil {
		return err
	}

	var step model.Step
	if _, err := gen.GenerateObject(ctx, llm.GenerateParams{
		Tool:         config.ToolAgent,
		SystemPrompt: agentSystemPrompt,
		Prompt:       prompt,
		SchemaName:   "agent_step",
		Schema:       restrictedStepSchema(allowed),
		NumRetries:   1,
	}, &step); err != nil {
		return fmt.Errorf("agent step %d: %w", s.totalStep, err)
	}

	slog.InfoContext(ctx, "step action chosen",
		"action", step.Action,
		"question", logger.Truncate(currentQuestion, 120),
		"gaps", len(s.gaps),
		"bad_attempts", s.badAttempts)

	s.allContext = append(s.allContext, step)
	s.trackState(step)

	// All flags re-enable at the end of every step; the executor that just
	// no-opped turns its own flag back off for the next one.
	s.allowReflect = true
	s.allowRead = true
	s.allowSearch = true
	s.allowAnswer = true

	switch model.Action(step.Action) {
	case model.ActionAnswer:
		return a.executeAnswer(ctx, s, gen, eval, step, currentQuestion)
	case model.ActionReflect:
		return a.executeReflect(ctx, s, step)
	case model.ActionSearch:
		return a.executeSearch(ctx, s, gen, step)
	case model.ActionVisit:
		return a.executeVisit(ctx, s, step)
	default:
		s.addDiary(fmt.Sprintf("At step %d, you chose an unknown action %q; nothing happened.", s.step, step.Action))
		return nil
	}
}

const maxURLsBeforeSearchStops = 20
