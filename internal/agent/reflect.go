package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"deepresearch.app/agent/internal/model"
)

const maxGapQuestions = 2

// executeReflect folds newly identified sub-questions into the gap queue.
// New gaps go to the front so they are processed next; the original question
// is re-enqueued at the tail so it is never lost.
func (a *Agent) executeReflect(ctx context.Context, s *session, step model.Step) error {
	questions := step.QuestionsToAnswer
	if len(questions) > maxGapQuestions {
		questions = questions[:maxGapQuestions]
	}

	unique := a.deduper.Dedup(ctx, questions, s.allQuestions)
	if len(unique) == 0 {
		s.allowReflect = false
		s.addDiary(fmt.Sprintf(
			"At step %d, you took the **reflect** action, but every sub-question you identified duplicates one already asked.\nYou have exhausted this line of reflection; try a different action.",
			s.step))
		return nil
	}

	s.gaps = append(append(unique, s.gaps...), s.question)
	s.allQuestions = append(s.allQuestions, unique...)

	slog.InfoContext(ctx, "gaps identified",
		"new_gaps", len(unique),
		"queue_length", len(s.gaps))

	s.addDiary(fmt.Sprintf(
		"At step %d, you took the **reflect** action and identified these knowledge gaps:\n%s\nYou will answer them before returning to the original question.",
		s.step, "- "+strings.Join(unique, "\n- ")))
	return nil
}
