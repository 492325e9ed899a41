package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"deepresearch.app/agent/common/logger"
	"deepresearch.app/agent/internal/trackers"
	"github.com/redis/go-redis/v9"
)

// maxStreamLen caps each task stream; progress consumers only ever need the
// recent tail.
const maxStreamLen = 1000

// Publisher fans action-tracker mutations out to a Redis Stream per task so
// SSE front ends can replay and follow progress. Publish failures are logged
// and dropped; progress streaming must never stall the agent loop.
type Publisher struct {
	client       *redis.Client
	streamPrefix string
}

func NewPublisher(client *redis.Client, streamPrefix string) *Publisher {
	return &Publisher{client: client, streamPrefix: streamPrefix}
}

// Stream returns the stream key for a task.
func (p *Publisher) Stream(taskID string) string {
	return p.streamPrefix + taskID
}

// Listener returns an action-tracker listener bound to one task's stream.
func (p *Publisher) Listener(taskID string) trackers.Listener {
	ctx := logger.WithLogFields(context.Background(), logger.LogFields{
		TaskID:    logger.Ptr(taskID),
		Component: "agent.events",
	})
	stream := p.Stream(taskID)

	return func(state trackers.ActionState) {
		payload, err := json.Marshal(state)
		if err != nil {
			slog.WarnContext(ctx, "failed to marshal action state", "error", err)
			return
		}

		if err := p.client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: maxStreamLen,
			Approx: true,
			Values: map[string]any{
				"action": state.ThisStep.Action,
				"step":   state.TotalStep,
				"state":  string(payload),
			},
		}).Err(); err != nil {
			slog.WarnContext(ctx, "failed to publish action event",
				"stream", stream,
				"error", err)
		}
	}
}
