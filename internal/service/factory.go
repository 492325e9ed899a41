package service

import (
	"fmt"

	"deepresearch.app/agent/common/llm"
	"deepresearch.app/agent/core/config"
	"deepresearch.app/agent/internal/agent"
	"deepresearch.app/agent/internal/dedup"
	"deepresearch.app/agent/internal/embed"
	"deepresearch.app/agent/internal/reader"
	"deepresearch.app/agent/internal/refs"
	"deepresearch.app/agent/internal/search"
	"github.com/redis/go-redis/v9"
)

// BuildAgent wires an Agent from configuration. A non-nil Redis client adds
// the search result cache; everything else works without it.
func BuildAgent(cfg config.Config, redisClient *redis.Client) (*agent.Agent, error) {
	registry, err := llm.NewRegistry(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("building llm registry: %w", err)
	}

	searcher, err := search.NewProvider(cfg.Search)
	if err != nil {
		return nil, fmt.Errorf("building search provider: %w", err)
	}
	var provider search.Provider = searcher
	if redisClient != nil {
		provider = search.NewCachedProvider(searcher, redisClient, cfg.Redis.CacheTTL)
	}

	embeddings := embed.NewClient(cfg.Embeddings)

	return agent.New(agent.Config{
		Registry:   registry,
		Searcher:   provider,
		Reader:     reader.New(cfg.Reader),
		RefBuilder: refs.NewBuilder(embeddings),
		Deduper:    dedup.New(embeddings),
		StepSleep:  cfg.StepSleep,
		LLM:        cfg.LLM,
	}), nil
}
