package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/somexchange/backend/internal/models"
)

// StatsCache stores ComputeStats results under a ledger generation. The
// generation is owned by the store and advances in the same transaction as
// every mutation, so older results are never read again.
type StatsCache interface {
	Get(ctx context.Context, gen int64, scope string) (*models.StatsResult, error)
	Set(ctx context.Context, gen int64, scope string, result *models.StatsResult) error
}

type RedisStatsCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisStatsCache(client *redis.Client, ttl time.Duration) *RedisStatsCache {
	return &RedisStatsCache{redis: client, ttl: ttl}
}

func statsKey(gen int64, scope string) string {
	return fmt.Sprintf("stats:%d:%s", gen, scope)
}

// Get returns nil, nil on a miss.
func (c *RedisStatsCache) Get(ctx context.Context, gen int64, scope string) (*models.StatsResult, error) {
	data, err := c.redis.Get(ctx, statsKey(gen, scope)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result models.StatsResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode cached stats: %w", err)
	}
	return &result, nil
}

func (c *RedisStatsCache) Set(ctx context.Context, gen int64, scope string, result *models.StatsResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, statsKey(gen, scope), data, c.ttl).Err()
}

