package agent

import (
	"strings"
	"time"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/dedup"
	"deepresearch.app/agent/internal/evaluator"
	"deepresearch.app/agent/internal/model"
	"deepresearch.app/agent/internal/reader"
	"deepresearch.app/agent/internal/refs"
	"deepresearch.app/agent/internal/search"
	"deepresearch.app/agent/internal/trackers"
)

// Trackers bundles the two session ledgers. Callers may pass an existing
// pair into GetResponse to aggregate usage across invocations.
type Trackers struct {
	Tokens  *trackers.TokenTracker
	Actions *trackers.ActionTracker
}

// NewTrackers builds a fresh ledger pair for a budget. Callers use this when
// they need to subscribe progress listeners before the session starts.
func NewTrackers(budget int) Trackers {
	return Trackers{
		Tokens:  trackers.NewTokenTracker(budget),
		Actions: trackers.NewActionTracker(),
	}
}

// Params configures one research invocation.
type Params struct {
	Question       string
	TokenBudget    int
	MaxBadAttempts int
	Trackers       *Trackers // optional; fresh trackers are created when nil
}

// Outcome is the result of a research session: the final answer step and the
// ledgers accumulated along the way.
type Outcome struct {
	FinalStep  model.Step
	References []model.Reference
	Trackers   Trackers
}

// session is the per-invocation mutable state. It is owned by a single
// goroutine; only the trackers are safe to observe concurrently.
type session struct {
	question       string
	maxBadAttempts int

	gaps         []string
	allQuestions []string
	allKeywords  []string
	visitedURLs  map[string]bool
	allURLs      map[string]string // url -> title of search hits not yet visited
	webContents  []model.WebContent
	allKnowledge []model.KnowledgeItem
	badContext   []model.BadAttempt
	diaryContext []string
	allContext   []model.Step

	step        int // resets to 0 on every bad-attempt restart
	totalStep   int
	badAttempts int

	// allowed-action flags, recomputed each step; a no-op executor disables
	// its own action for the immediately following step
	allowReflect bool
	allowRead    bool
	allowSearch  bool
	allowAnswer  bool

	criteria      []evaluator.Criterion
	languageStyle string

	tokens  *trackers.TokenTracker
	actions *trackers.ActionTracker

	finalStep model.Step
	isFinal   bool
	terminal  bool // bad-attempt limit hit; beast mode takes over
}

func newSession(question string, maxBadAttempts int, tk Trackers) *session {
	return &session{
		question:       question,
		maxBadAttempts: maxBadAttempts,
		gaps:           []string{question},
		allQuestions:   []string{question},
		visitedURLs:    make(map[string]bool),
		allURLs:        make(map[string]string),
		allowReflect:   true,
		allowRead:      true,
		allowSearch:    true,
		allowAnswer:    true,
		tokens:         tk.Tokens,
		actions:        tk.Actions,
	}
}

// currentQuestion pops the head of the gap queue, or returns the original
// question when the queue is empty.
func (s *session) currentQuestion() string {
	if len(s.gaps) == 0 {
		return s.question
	}
	head := s.gaps[0]
	s.gaps = s.gaps[1:]
	return head
}

// addDiary appends one narration entry fed back into every later prompt.
func (s *session) addDiary(entry string) {
	s.diaryContext = append(s.diaryContext, strings.TrimSpace(entry))
}

// addKnowledge appends a ledger entry. Only evaluator-accepted answers (qa)
// and verbatim page content (url) go through here.
func (s *session) addKnowledge(item model.KnowledgeItem) {
	item.Updated = time.Now().UTC()
	s.allKnowledge = append(s.allKnowledge, item)
}

// trackState publishes the step snapshot to the action tracker.
func (s *session) trackState(step model.Step) {
	gaps := make([]string, len(s.gaps))
	copy(gaps, s.gaps)
	s.actions.Track(trackers.ActionState{
		TotalStep:   s.totalStep,
		ThisStep:    step,
		Gaps:        gaps,
		BadAttempts: s.badAttempts,
	})
}

// Agent wires the collaborators and runs research sessions. It holds no
// per-session state and is safe for concurrent GetResponse calls.
type Agent struct {
	registry   *llm.Registry
	searcher   search.Provider
	reader     reader.Reader
	refBuilder *refs.Builder
	deduper    *dedup.Deduper
	stepSleep  time.Duration
	llmConfig  config.LLMConfig
}

// Config wires an Agent.
type Config struct {
	Registry   *llm.Registry
	Searcher   search.Provider
	Reader     reader.Reader
	RefBuilder *refs.Builder
	Deduper    *dedup.Deduper
	StepSleep  time.Duration
	LLM        config.LLMConfig
}

func New(cfg Config) *Agent {
	return &Agent{
		registry:   cfg.Registry,
		searcher:   cfg.Searcher,
		reader:     cfg.Reader,
		refBuilder: cfg.RefBuilder,
		deduper:    cfg.Deduper,
		stepSleep:  cfg.StepSleep,
		llmConfig:  cfg.LLM,
	}
}
