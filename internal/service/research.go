package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deepresearch.app/agent/common/id"
	"deepresearch.app/agent/common/logger"
	"deepresearch.app/agent/internal/agent"
	"deepresearch.app/agent/internal/events"
	"deepresearch.app/agent/internal/model"
)

// TaskStatus tracks a research task through its lifetime.
type TaskStatus string

const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is the in-memory record of one research invocation. Results are not
// persisted; the registry lives and dies with the process.
type Task struct {
	ID          string            `json:"id"`
	Question    string            `json:"question"`
	Status      TaskStatus        `json:"status"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Answer      string            `json:"answer,omitempty"`
	References  []model.Reference `json:"references,omitempty"`
	TotalTokens int               `json:"totalTokens,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// ResearchService runs agent sessions in the background and tracks them in
// an in-memory registry.
type ResearchService struct {
	agent     *agent.Agent
	publisher *events.Publisher // nil when Redis is not configured

	mu    sync.RWMutex
	tasks map[string]*Task
}

func NewResearchService(ag *agent.Agent, publisher *events.Publisher) *ResearchService {
	return &ResearchService{
		agent:     ag,
		publisher: publisher,
		tasks:     make(map[string]*Task),
	}
}

// StartParams configures a background research task.
type StartParams struct {
	Question       string
	TokenBudget    int
	MaxBadAttempts int
}

// Start launches the research loop in a goroutine and returns the task ID
// immediately. Progress is observable on the task's event stream.
func (s *ResearchService) Start(ctx context.Context, params StartParams) *Task {
	task := &Task{
		ID:        id.NewString(),
		Question:  params.Question,
		Status:    TaskRunning,
		StartedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	// The session outlives the HTTP request that started it.
	runCtx := logger.WithLogFields(context.Background(), logger.LogFields{
		TaskID:    logger.Ptr(task.ID),
		Component: "agent.service",
	})

	// Hand back a snapshot: the registry entry is mutated by the run goroutine.
	snapshot := *task
	go s.run(runCtx, task.ID, params)
	return &snapshot
}

func (s *ResearchService) run(ctx context.Context, taskID string, params StartParams) {
	agentParams := agent.Params{
		Question:       params.Question,
		TokenBudget:    params.TokenBudget,
		MaxBadAttempts: params.MaxBadAttempts,
	}

	if s.publisher != nil {
		tk := agent.NewTrackers(params.TokenBudget)
		tk.Actions.Subscribe(s.publisher.Listener(taskID))
		agentParams.Trackers = &tk
	}

	outcome, err := s.agent.GetResponse(ctx, agentParams)

	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.tasks[taskID]
	if task == nil {
		return
	}
	task.CompletedAt = &now

	if err != nil {
		slog.ErrorContext(ctx, "research task failed", "error", err)
		task.Status = TaskFailed
		task.Error = err.Error()
		return
	}

	task.Status = TaskCompleted
	task.Answer = outcome.FinalStep.Answer
	task.References = outcome.FinalStep.References
	task.TotalTokens = outcome.Trackers.Tokens.TotalUsage().TotalTokens
}

// Get returns a copy of the task record.
func (s *ResearchService) Get(taskID string) (*Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, false
	}
	copied := *task
	return &copied, true
}
