package trackers

import (
	"errors"
	"fmt"
	"sync"

	"deepresearch.app/agent/common/llm"
)

// ErrBudgetExceeded aborts the session when the next LLM call would push
// cumulative usage past the budget.
var ErrBudgetExceeded = errors.New("token budget would be exceeded")

// TokenTracker is the session's append-only usage ledger. Its total is the
// single source of truth for budget checks.
type TokenTracker struct {
	mu     sync.Mutex
	budget int
	total  llm.Usage
	byTool map[string]llm.Usage
}

// NewTokenTracker creates a tracker owning the given budget. A zero budget
// means unlimited.
func NewTokenTracker(budget int) *TokenTracker {
	return &TokenTracker{
		budget: budget,
		byTool: make(map[string]llm.Usage),
	}
}

// Record adds one call's usage under the tool tag. Implements
// llm.UsageRecorder.
func (t *TokenTracker) Record(tool string, usage llm.Usage) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := t.byTool[tool]
	entry.PromptTokens += usage.PromptTokens
	entry.CompletionTokens += usage.CompletionTokens
	entry.TotalTokens += usage.TotalTokens
	t.byTool[tool] = entry

	t.total.PromptTokens += usage.PromptTokens
	t.total.CompletionTokens += usage.CompletionTokens
	t.total.TotalTokens += usage.TotalTokens
}

// TotalUsage returns the cumulative usage across all tools.
func (t *TokenTracker) TotalUsage() llm.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Breakdown returns a copy of per-tool usage.
func (t *TokenTracker) Breakdown() map[string]llm.Usage {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]llm.Usage, len(t.byTool))
	for tool, usage := range t.byTool {
		out[tool] = usage
	}
	return out
}

// Budget returns the configured budget (0 = unlimited).
func (t *TokenTracker) Budget() int {
	return t.budget
}

// CheckBudget fails if spending estimated more tokens would exceed the
// budget. Called before every LLM call.
func (t *TokenTracker) CheckBudget(estimated int) error {
	if t.budget <= 0 {
		return nil
	}

	t.mu.Lock()
	total := t.total.TotalTokens
	t.mu.Unlock()

	if total+estimated > t.budget {
		return fmt.Errorf("%w: used %d + estimated %d > budget %d",
			ErrBudgetExceeded, total, estimated, t.budget)
	}
	return nil
}
