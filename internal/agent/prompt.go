package agent

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/internal/model"
)

const agentSystemPrompt = `You are an advanced AI research agent. You answer questions by iterating: searching the web, reading pages, reflecting on what is still unknown, and finally answering. Using your training knowledge directly is allowed when it is sufficient and current.

Each step you must pick exactly one of the actions offered in the Actions section and fill in only that action's fields. Be decisive: gather what is missing, then answer. Repeating a search or visit that the diary shows already happened wastes budget.`

var stepSchema = llm.GenerateSchema[model.Step]()

// restrictedStepSchema narrows the action enum of the step schema to the
// currently allowed actions, so the strict response format cannot pick a
// disabled one.
func restrictedStepSchema(allowed []model.Action) any {
	data, err := json.Marshal(stepSchema)
	if err != nil {
		return stepSchema
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return stepSchema
	}

	props, ok := tree["properties"].(map[string]any)
	if !ok {
		return stepSchema
	}
	action, ok := props["action"].(map[string]any)
	if !ok {
		return stepSchema
	}

	enum := make([]any, len(allowed))
	for i, a := range allowed {
		enum[i] = string(a)
	}
	action["enum"] = enum
	return tree
}

// buildPrompt renders the session state into the user prompt for the next
// step. Section order is fixed so prompts stay cache-friendly: date +
// question, diary narration, knowledge, failed attempts, then the Actions
// contract for the currently allowed actions.
func (s *session) buildPrompt(currentQuestion string, beastMode bool) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Current date: %s\n\n", time.Now().UTC().Format("Mon, 02 Jan 2006")))
	sb.WriteString(fmt.Sprintf("Current question: %s\n\n", currentQuestion))

	if len(s.diaryContext) > 0 {
		sb.WriteString("## Context\n\nYou have conducted the following actions:\n\n")
		for _, entry := range s.diaryContext {
			sb.WriteString(entry)
			sb.WriteString("\n\n")
		}
	}

	if len(s.allKnowledge) > 0 {
		sb.WriteString("## Knowledge\n\nYou have gathered the following knowledge:\n\n")
		for i, k := range s.allKnowledge {
			sb.WriteString(fmt.Sprintf("### Knowledge %d: %s\n\n%s\n\n", i+1, k.Question, k.Answer))
		}
	}

	if len(s.badContext) > 0 {
		sb.WriteString("## Failed attempts\n\nYour previous answers to the original question were rejected:\n\n")
		for i, bad := range s.badContext {
			sb.WriteString(fmt.Sprintf("### Attempt %d\n\n", i+1))
			sb.WriteString(fmt.Sprintf("- Question: %s\n", bad.Question))
			sb.WriteString(fmt.Sprintf("- Answer: %s\n", bad.Answer))
			sb.WriteString(fmt.Sprintf("- Reject reason: %s\n", bad.Evaluation))
			sb.WriteString(fmt.Sprintf("- Actions recap: %s\n", bad.Recap))
			sb.WriteString(fmt.Sprintf("- Actions blame: %s\n", bad.Blame))
			sb.WriteString(fmt.Sprintf("- Improvement: %s\n\n", bad.Improvement))
		}
	}

	if beastMode {
		sb.WriteString(beastModeSection)
	}

	sb.WriteString("## Actions\n\nBased on the current context, choose one of the following actions:\n\n")
	s.writeActionSections(&sb)

	if s.languageStyle != "" {
		sb.WriteString(fmt.Sprintf("Respond in this style: %s\n", s.languageStyle))
	}

	return sb.String()
}

const beastModeSection = `## Final deadline

This is your ABSOLUTE FINAL chance. You must answer the question now with everything gathered above. Commit to your best-supported conclusion; an educated synthesis of partial knowledge beats a refusal. Failure is not an option.

`

func (s *session) writeActionSections(sb *strings.Builder) {
	if s.allowSearch {
		sb.WriteString("### search\n")
		sb.WriteString("Query external sources for information you lack. Provide searchQuery: a natural-language description of what to find. Prefer this when key facts are missing.\n\n")
	}
	if s.allowRead {
		sb.WriteString("### visit\n")
		sb.WriteString("Read full page content. Provide URLTargets: URLs chosen from the list below. Prefer this when a search snippet looks promising but is too thin.\n\n")
		sb.WriteString("URLs available:\n")
		urls := make([]string, 0, len(s.allURLs))
		for url := range s.allURLs {
			urls = append(urls, url)
		}
		sort.Strings(urls)
		for _, url := range urls {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", url, s.allURLs[url]))
		}
		sb.WriteString("\n")
	}
	if s.allowReflect {
		sb.WriteString("### reflect\n")
		sb.WriteString("Identify knowledge gaps. Provide questionsToAnswer: at most two essential sub-questions whose answers would unlock the original question. Only ask what the diary and knowledge above cannot answer.\n\n")
	}
	if s.allowAnswer {
		sb.WriteString("### answer\n")
		sb.WriteString("Answer the current question definitively. Provide answer, plus references: exact quotes with their source URLs for every claim grounded in visited pages. Only answer when you are confident the evidence is sufficient.\n\n")
	}
}

// allowedActions lists the enabled actions in a stable order.
func (s *session) allowedActions() []model.Action {
	var allowed []model.Action
	if s.allowSearch {
		allowed = append(allowed, model.ActionSearch)
	}
	if s.allowRead {
		allowed = append(allowed, model.ActionVisit)
	}
	if s.allowReflect {
		allowed = append(allowed, model.ActionReflect)
	}
	if s.allowAnswer {
		allowed = append(allowed, model.ActionAnswer)
	}
	return allowed
}
