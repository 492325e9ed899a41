package search

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"deepresearch.app/agent/internal/model"
	"github.com/redis/go-redis/v9"
)

// CachedProvider decorates a Provider with a Redis result cache so repeated
// rewritten queries across steps do not re-hit the upstream. Cache failures
// are treated as misses.
type CachedProvider struct {
	inner  Provider
	client *redis.Client
	ttl    time.Duration
}

func NewCachedProvider(inner Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{inner: inner, client: client, ttl: ttl}
}

func (c *CachedProvider) Name() string {
	return c.inner.Name()
}

func (c *CachedProvider) Search(ctx context.Context, query string) ([]model.SearchResult, error) {
	key := fmt.Sprintf("search:%s:%s", c.inner.Name(), query)

	if cached, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var results []model.SearchResult
		if err := json.Unmarshal(cached, &results); err == nil {
			slog.DebugContext(ctx, "search cache hit", "query", query)
			return results, nil
		}
	}

	results, err := c.inner.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(results); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			slog.DebugContext(ctx, "search cache write failed", "error", err)
		}
	}

	return results, nil
}
