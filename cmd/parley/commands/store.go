package commands

import (
	"context"
	"fmt"

	"github.com/dyluth/parley/internal/config"
	"github.com/dyluth/parley/internal/printer"
	"github.com/dyluth/parley/pkg/conversation"
	"github.com/redis/go-redis/v9"
)

// openRedisStore connects to the shared conversation store. In-memory stores
// live only as long as one run, so inspection commands need Redis.
func openRedisStore(ctx context.Context, cfg *config.Config) (*conversation.RedisStore, error) {
	if cfg.Store.Backend != config.StoreRedis {
		return nil, printer.Error(
			"no shared conversation store",
			"store.backend is 'memory'; conversations are discarded when a run ends.",
			[]string{
				"Use Redis:\n  store.backend: redis (or set REDIS_URL)",
				"Read audit snapshots instead:\n  parley audit",
			},
		)
	}

	redisOpts, err := redis.ParseURL(cfg.Store.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	store, err := conversation.NewRedisStore(redisOpts, cfg.Namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation store: %w", err)
	}

	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, printer.ErrorWithContext(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis at %s", cfg.Store.RedisURL),
			map[string]string{"error": err.Error()},
			[]string{"Check that Redis is running and store.redis_url is correct"},
		)
	}
	return store, nil
}
