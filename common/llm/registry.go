package llm

import (
	"context"
	"fmt"

	"deepresearch.app/agent/core/config"
)

// Registry routes chat calls to per-tool model settings. One underlying
// client serves every tool tag; model, temperature and max-tokens are
// resolved per call from configuration.
type Registry struct {
	client Client
	cfg    config.LLMConfig
}

func NewRegistry(cfg config.LLMConfig) (*Registry, error) {
	client, err := New(Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.DefaultModel,
	})
	if err != nil {
		return nil, fmt.Errorf("llm registry: %w", err)
	}
	return &Registry{client: client, cfg: cfg}, nil
}

// NewRegistryWithClient builds a registry around an existing client.
// Used by tests to substitute a mock.
func NewRegistryWithClient(client Client, cfg config.LLMConfig) *Registry {
	return &Registry{client: client, cfg: cfg}
}

// Chat resolves the tool tag's settings and forwards to the client.
func (r *Registry) Chat(ctx context.Context, tool string, req Request, result any) (*Response, error) {
	tc := r.cfg.Tool(tool)
	if req.Model == "" {
		req.Model = tc.Model
	}
	if req.Temperature == nil {
		req.Temperature = tc.Temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = tc.MaxTokens
	}
	return r.client.Chat(ctx, req, result)
}

// Model reports the default model name.
func (r *Registry) Model() string {
	return r.client.Model()
}
