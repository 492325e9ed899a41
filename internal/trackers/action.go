package trackers

import (
	"sync"

	"deepresearch.app/agent/internal/model"
)

// ActionState is the externally observable snapshot of the loop, refreshed
// once per step when the step's action is chosen (including the beast-mode
// step).
type ActionState struct {
	TotalStep   int        `json:"totalStep"`
	ThisStep    model.Step `json:"thisStep"`
	Gaps        []string   `json:"gaps"`
	BadAttempts int        `json:"badAttempts"`
}

// Listener receives every state mutation, synchronously and in order.
type Listener func(ActionState)

// ActionTracker holds the latest step state and fans mutations out to
// subscribed listeners (progress streams, CLIs).
type ActionTracker struct {
	mu        sync.Mutex
	state     ActionState
	counts    map[string]int
	listeners []Listener
}

func NewActionTracker() *ActionTracker {
	return &ActionTracker{counts: make(map[string]int)}
}

// Subscribe registers a listener for subsequent mutations. Listeners run on
// the mutating goroutine; they must not block.
func (t *ActionTracker) Subscribe(l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listeners = append(t.listeners, l)
}

// Track replaces the state snapshot and notifies listeners.
func (t *ActionTracker) Track(state ActionState) {
	t.mu.Lock()
	t.state = state
	if state.ThisStep.Action != "" {
		t.counts[state.ThisStep.Action]++
	}
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

// TrackThink updates only the reasoning text of the current step, keeping
// progress consumers in sync with long-running evaluations.
func (t *ActionTracker) TrackThink(think string) {
	t.mu.Lock()
	t.state.ThisStep.Think = think
	state := t.state
	listeners := make([]Listener, len(t.listeners))
	copy(listeners, t.listeners)
	t.mu.Unlock()

	for _, l := range listeners {
		l(state)
	}
}

// State returns the latest snapshot.
func (t *ActionTracker) State() ActionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Counts returns a copy of per-action counters.
func (t *ActionTracker) Counts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.counts))
	for action, n := range t.counts {
		out[action] = n
	}
	return out
}
