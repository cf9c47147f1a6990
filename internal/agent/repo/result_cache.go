package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sdg-insight/server/internal/agent/model"
	errx "github.com/sdg-insight/server/internal/core/error"
	logx "github.com/sdg-insight/server/pkg/logger"
)

// RedisResultCache keeps analysis results in Redis as JSON with a TTL.
type RedisResultCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func NewRedisResultCache(rdb redis.Cmdable, cfg model.CacheConfig) *RedisResultCache {
	return &RedisResultCache{rdb: rdb, ttl: cfg.TTL, prefix: cfg.Prefix}
}

func (c *RedisResultCache) resultKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return fmt.Sprintf("%s:%s", c.prefix, key)
}

// Get returns the cached result. A missing key is a miss, not an error.
func (c *RedisResultCache) Get(ctx context.Context, key string) (model.Result, bool, error) {
	k := c.resultKey(key)

	b, err := c.rdb.Get(ctx, k).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Result{}, false, nil
		}
		logx.Error().Err(err).Str("key", k).Msg("failed to read result from redis")
		return model.Result{}, false, errx.WrapRedis(err)
	}

	var res model.Result
	if err := json.Unmarshal(b, &res); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to unmarshal cached result")
		return model.Result{}, false, fmt.Errorf("unmarshal cached result: %w", err)
	}
	return res, true, nil
}

func (c *RedisResultCache) Set(ctx context.Context, key string, r model.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	k := c.resultKey(key)
	if err := c.rdb.Set(ctx, k, b, c.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", k).Msg("failed to write result to redis")
		return errx.WrapRedis(err)
	}
	return nil
}
