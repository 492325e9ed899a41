package model

// Action names an agent capability. One is chosen by the LLM each step.
type Action string

const (
	ActionSearch  Action = "search"
	ActionVisit   Action = "visit"
	ActionReflect Action = "reflect"
	ActionAnswer  Action = "answer"
)

// Step is the structured output of one agent-loop LLM call. Exactly one
// action is chosen; the fields belonging to the other actions stay empty.
type Step struct {
	Action string `json:"action" jsonschema:"required,enum=search,enum=visit,enum=reflect,enum=answer" jsonschema_description:"The single action to take this step"`
	Think  string `json:"think" jsonschema:"required" jsonschema_description:"Concise reasoning behind the chosen action"`

	// search
	SearchQuery string `json:"searchQuery,omitempty" jsonschema_description:"Natural-language query describing what to search for"`

	// reflect
	QuestionsToAnswer []string `json:"questionsToAnswer,omitempty" jsonschema_description:"Up to two sub-questions that close knowledge gaps"`

	// visit
	URLTargets []string `json:"URLTargets,omitempty" jsonschema_description:"URLs from the shortlist to read in full"`

	// answer
	Answer     string      `json:"answer,omitempty" jsonschema_description:"Complete, definitive answer to the current question"`
	References []Reference `json:"references,omitempty" jsonschema_description:"Supporting quotes with their source URLs"`
}
