package agent

import (
	"context"
	"fmt"
	"log/slog"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/refs"
)

// beastMode is the terminal one-shot answer pass: answer is the only action,
// every ledger stays in scope, and whatever comes back is returned without
// evaluation. The budget check runs once more before the call and is
// honored; a generation failure here is re-raised.
func (a *Agent) beastMode(ctx context.Context, s *session, gen *llm.Generator, tk Trackers) (*Outcome, error) {
	slog.WarnContext(ctx, "entering beast mode",
		"total_steps", s.totalStep,
		"bad_attempts", s.badAttempts,
		"total_tokens", s.tokens.TotalUsage().TotalTokens)

	s.allowSearch = false
	s.allowRead = false
	s.allowReflect = false
	s.allowAnswer = true

	s.step++
	s.totalStep++

	prompt := s.buildPrompt(s.question, true)

	toolCfg := a.llmConfig.Tool(config.ToolAgentBeast)
	estimated := (len(agentSystemPrompt)+len(prompt))/charsPerToken + toolCfg.MaxTokens
	if err := s.tokens.CheckBudget(estimated); err != nil {
		return nil, err
	}

	var step model.Step
	if _, err := gen.GenerateObject(ctx, llm.GenerateParams{
		Tool:         config.ToolAgentBeast,
		SystemPrompt: agentSystemPrompt,
		Prompt:       prompt,
		SchemaName:   "agent_final_step",
		Schema:       restrictedStepSchema([]model.Action{model.ActionAnswer}),
		NumRetries:   1,
	}, &step); err != nil {
		return nil, fmt.Errorf("beast mode: %w", err)
	}

	step.Action = string(model.ActionAnswer)
	s.allContext = append(s.allContext, step)
	s.trackState(step)

	answer, references := a.refBuilder.Build(ctx, step.Answer, s.webContents, refs.BuildOptions{})
	step.Answer = answer
	if len(references) > 0 {
		step.References = references
	}

	slog.InfoContext(ctx, "beast mode answered",
		"references", len(step.References),
		"total_tokens", s.tokens.TotalUsage().TotalTokens)

	return &Outcome{
		FinalStep:  step,
		References: step.References,
		Trackers:   tk,
	}, nil
}
