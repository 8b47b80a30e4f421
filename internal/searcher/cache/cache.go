// Package cache stores query results in Redis, keyed by index generation so a
// swapped-in snapshot never serves results computed against an older one.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/docsearch/pkg/metrics"
)

const keyPrefix = "search:"

// Store is the key/value backend. *redis.Client satisfies it.
type Store interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type QueryCache struct {
	store   Store
	ttl     time.Duration
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a QueryCache. m may be nil.
func New(store Store, ttl time.Duration, m *metrics.Metrics) *QueryCache {
	return &QueryCache{
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "query-cache"),
	}
}

func (c *QueryCache) Get(ctx context.Context, generation uint64, query string, limit int) (*executor.SearchResult, bool) {
	key := buildKey(generation, query, limit)
	data, found, err := c.store.Lookup(ctx, key)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
	}
	if err != nil || !found {
		c.miss()
		return nil, false
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.CacheHit()
	c.logger.Debug("cache hit", "query", query, "key", key)
	return &result, true
}

// Set stores result under its own generation.
func (c *QueryCache) Set(ctx context.Context, query string, limit int, result *executor.SearchResult) {
	key := buildKey(result.Generation, query, limit)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached result for the generation or computes it
// once for all concurrent callers asking the same question. The returned
// result always carries the caller's own query string. The bool reports a
// cache hit.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	generation uint64,
	query string,
	limit int,
	compute func() (*executor.SearchResult, error),
) (*executor.SearchResult, bool, error) {
	if result, ok := c.Get(ctx, generation, query, limit); ok {
		result.Query = query
		return result, true, nil
	}
	key := buildKey(generation, query, limit)
	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, query, limit, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	// Callers sharing the computation may have spelled the query differently.
	result := *val.(*executor.SearchResult)
	result.Query = query
	return &result, false, nil
}

// InvalidateGeneration drops every result computed against generation.
func (c *QueryCache) InvalidateGeneration(ctx context.Context, generation uint64) error {
	deleted, err := c.store.FlushByPattern(ctx, generationPrefix(generation)+"*")
	if err != nil {
		return fmt.Errorf("invalidating generation %d: %w", generation, err)
	}
	c.logger.Info("cache generation invalidated", "generation", generation, "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Invalidate(ctx context.Context) error {
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidate", "keys_deleted", deleted)
	return nil
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *QueryCache) miss() {
	c.misses.Add(1)
	c.metrics.CacheMiss()
}

func generationPrefix(generation uint64) string {
	return fmt.Sprintf("%sg%d:", keyPrefix, generation)
}

// buildKey hashes the normalized query. Token order is kept because it
// decides ties in the ranking.
func buildKey(generation uint64, query string, limit int) string {
	raw := fmt.Sprintf("%s|limit=%d", normalizeQuery(query), limit)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%x", generationPrefix(generation), hash[:16])
}

func normalizeQuery(query string) string {
	terms := tokenizer.Terms(query)
	seen := make(map[string]struct{}, len(terms))
	uniq := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		uniq = append(uniq, t)
	}
	return strings.Join(uniq, ",")
}
