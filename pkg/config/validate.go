package config

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Validate reports every invalid setting at once. Each reported error wraps
// apperrors.ErrInvalidInput.
func (c *Config) Validate() error {
	var result *multierror.Error
	invalid := func(format string, args ...any) {
		result = multierror.Append(result,
			fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, fmt.Sprintf(format, args...)))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		invalid("server.port %d out of range", c.Server.Port)
	}
	if c.Server.RebuildPerMinute < 0 {
		invalid("server.rebuildPerMinute must not be negative")
	}
	if c.Index.BatchSize <= 0 {
		invalid("index.batchSize must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.ContextWindow < 0 {
		invalid("index.contextWindow must not be negative, got %d", c.Index.ContextWindow)
	}
	if c.Index.SkipListMaxLevel < 1 || c.Index.SkipListMaxLevel > 64 {
		invalid("index.skipListMaxLevel must be in [1, 64], got %d", c.Index.SkipListMaxLevel)
	}
	if p := c.Index.SkipListPromotionProbability; p <= 0 || p >= 1 {
		invalid("index.skipListPromotionProbability must be in (0, 1), got %v", p)
	}
	switch c.Index.Backend {
	case "skiplist", "trie":
	default:
		invalid("index.backend must be skiplist or trie, got %q", c.Index.Backend)
	}
	if c.Index.Workers < 0 {
		invalid("index.workers must not be negative")
	}
	if c.Search.MaxResults <= 0 {
		invalid("search.maxResults must be positive, got %d", c.Search.MaxResults)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		invalid("kafka.brokers is empty")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		invalid("redis.addr is empty")
	}
	if c.Postgres.Enabled && c.Postgres.Table == "" {
		invalid("postgres.table is empty")
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		invalid("metrics.port collides with server.port %d", c.Server.Port)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		invalid("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return result.ErrorOrNil()
}
