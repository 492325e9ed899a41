package search

import (
	"context"
	"fmt"

	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/model"
)

// Provider executes one web search. Implementations must be idempotent and
// safe to call concurrently; errors are catchable per call.
type Provider interface {
	Search(ctx context.Context, query string) ([]model.SearchResult, error)
	Name() string
}

// NewProvider builds the configured provider.
func NewProvider(cfg config.SearchConfig) (Provider, error) {
	switch cfg.Provider {
	case "brave":
		if cfg.BraveAPIKey == "" {
			return nil, fmt.Errorf("brave search requires BRAVE_API_KEY")
		}
		return NewBrave(cfg.BraveAPIKey, cfg.Timeout), nil
	case "duckduckgo", "":
		return NewDuckDuckGo(cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown search provider %q", cfg.Provider)
	}
}
