package kpicache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/kpi"
)

// Redis is a Cache shared between service instances. Entries expire
// server-side after the TTL.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis creates a Redis-backed cache; ttl <= 0 uses DefaultTTL
func NewRedis(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, ttl: ttl, logger: logger}
}

func redisKey(key string) string {
	return fmt.Sprintf("kpi_cache:%s", key)
}

// Get treats any Redis failure as a miss
func (r *Redis) Get(ctx context.Context, key string) (kpi.EntityKPI, bool) {
	data, err := r.client.Get(ctx, redisKey(key)).Result()
	if err == redis.Nil {
		return kpi.EntityKPI{}, false
	}
	if err != nil {
		r.logger.Warn("Failed to get KPIs from Redis", zap.String("key", key), zap.Error(err))
		return kpi.EntityKPI{}, false
	}

	var value kpi.EntityKPI
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		r.logger.Warn("Failed to unmarshal cached KPIs", zap.String("key", key), zap.Error(err))
		return kpi.EntityKPI{}, false
	}
	return value, true
}

func (r *Redis) Put(ctx context.Context, key string, value kpi.EntityKPI) {
	data, err := json.Marshal(value)
	if err != nil {
		r.logger.Warn("Failed to marshal KPIs", zap.String("key", key), zap.Error(err))
		return
	}
	if err := r.client.Set(ctx, redisKey(key), data, r.ttl).Err(); err != nil {
		r.logger.Warn("Failed to set KPIs in Redis", zap.String("key", key), zap.Error(err))
	}
}

// CleanExpired removes cache keys that lost their expiry. Keys with a TTL
// are left to Redis.
func (r *Redis) CleanExpired(ctx context.Context) int {
	removed := 0
	iter := r.client.Scan(ctx, 0, redisKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := r.client.TTL(ctx, key).Result()
		if err != nil || ttl != -1 {
			continue
		}
		if err := r.client.Del(ctx, key).Err(); err == nil {
			removed++
		}
	}
	if err := iter.Err(); err != nil {
		r.logger.Warn("Failed to scan KPI cache keys", zap.Error(err))
	}
	return removed
}
