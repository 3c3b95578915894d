package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dafibh/rentals/rentals-backend/internal/domain"
	"github.com/dafibh/rentals/rentals-backend/internal/util"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// dayGrace keeps a day's entries alive until that date has ended in every timezone
const dayGrace = 14 * time.Hour

// HashStore is the subset of the redis client the progress cache uses
type HashStore interface {
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	ExpireAt(ctx context.Context, key string, tm time.Time) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisProgressCache implements domain.ProgressCache with one redis hash per
// contract, one field per calendar day.
type RedisProgressCache struct {
	store HashStore
}

// NewRedisProgressCache creates a progress cache on top of a redis client
func NewRedisProgressCache(store HashStore) *RedisProgressCache {
	return &RedisProgressCache{store: store}
}

// NewRedisClient connects to the redis server at url (redis://host:port/db)
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func progressKey(contractID int32) string {
	return fmt.Sprintf("progress:%d", contractID)
}

func dayField(day time.Time) string {
	return util.TruncateToDay(day).Format("2006-01-02")
}

// Get returns the memoized progress of a contract for the given day.
// Redis failures are logged and reported as a miss.
func (c *RedisProgressCache) Get(ctx context.Context, contractID int32, day time.Time) (*domain.Progress, bool) {
	raw, err := c.store.HGet(ctx, progressKey(contractID), dayField(day)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Int32("contract_id", contractID).Msg("Progress cache read failed")
		}
		return nil, false
	}

	var progress domain.Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		log.Warn().Err(err).Int32("contract_id", contractID).Msg("Discarding malformed progress cache entry")
		return nil, false
	}
	return &progress, true
}

// Set memoizes the progress of a contract for the given day
func (c *RedisProgressCache) Set(ctx context.Context, contractID int32, day time.Time, progress *domain.Progress) error {
	raw, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}

	key := progressKey(contractID)
	if err := c.store.HSet(ctx, key, dayField(day), raw).Err(); err != nil {
		return fmt.Errorf("failed to cache progress: %w", err)
	}

	expiry := util.EndOfDay(util.TruncateToDay(day)).Add(dayGrace)
	if err := c.store.ExpireAt(ctx, key, expiry).Err(); err != nil {
		return fmt.Errorf("failed to set progress expiry: %w", err)
	}
	return nil
}

// Invalidate drops every memoized day of a contract
func (c *RedisProgressCache) Invalidate(ctx context.Context, contractID int32) error {
	if err := c.store.Del(ctx, progressKey(contractID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate progress: %w", err)
	}
	return nil
}
