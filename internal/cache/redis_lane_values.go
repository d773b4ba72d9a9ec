// Package cache memoizes lane totals in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"agencyhub/api/internal/money"
)

const defaultTTL = 5 * time.Minute

// setIfGeneration writes KEYS[2] only while KEYS[1] still holds ARGV[1].
var setIfGeneration = redis.NewScript(`
if (redis.call('GET', KEYS[1]) or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
return 1
`)

type laneValueEntry struct {
	Cents      int64     `json:"cents"`
	ComputedAt time.Time `json:"computed_at"`
}

// RedisLaneValues stores lane totals under lane-value:<laneID> and the lane's
// invalidation counter under lane-value-gen:<laneID>. Counters never expire.
type RedisLaneValues struct {
	client    *redis.Client
	prefix    string
	genPrefix string
	ttl       time.Duration
}

// NewRedisLaneValues connects to redisURL and verifies the connection.
func NewRedisLaneValues(redisURL string, ttl time.Duration) (*RedisLaneValues, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisLaneValuesWithClient(client, ttl), nil
}

func NewRedisLaneValuesWithClient(client *redis.Client, ttl time.Duration) *RedisLaneValues {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLaneValues{client: client, prefix: "lane-value:", genPrefix: "lane-value-gen:", ttl: ttl}
}

func (c *RedisLaneValues) key(laneID string) string {
	return c.prefix + laneID
}

func (c *RedisLaneValues) genKey(laneID string) string {
	return c.genPrefix + laneID
}

// Get reports ok=false on a miss.
func (c *RedisLaneValues) Get(ctx context.Context, laneID string) (money.Amount, bool, error) {
	raw, err := c.client.Get(ctx, c.key(laneID)).Result()
	if errors.Is(err, redis.Nil) {
		return money.Zero, false, nil
	}
	if err != nil {
		return money.Zero, false, fmt.Errorf("get lane value: %w", err)
	}

	var entry laneValueEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return money.Zero, false, fmt.Errorf("unmarshal lane value: %w", err)
	}
	return money.Amount(entry.Cents), true, nil
}

// Generation returns how many times the lane has been invalidated.
func (c *RedisLaneValues) Generation(ctx context.Context, laneID string) (int64, error) {
	generation, err := c.client.Get(ctx, c.genKey(laneID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get lane value generation: %w", err)
	}
	return generation, nil
}

// Set is a no-op when the lane was invalidated after generation was read.
func (c *RedisLaneValues) Set(ctx context.Context, laneID string, generation int64, value money.Amount) error {
	payload, err := json.Marshal(laneValueEntry{Cents: int64(value), ComputedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal lane value: %w", err)
	}
	keys := []string{c.genKey(laneID), c.key(laneID)}
	if err := setIfGeneration.Run(ctx, c.client, keys, generation, payload, c.ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("set lane value: %w", err)
	}
	return nil
}

func (c *RedisLaneValues) Invalidate(ctx context.Context, laneIDs ...string) error {
	if len(laneIDs) == 0 {
		return nil
	}
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, id := range laneIDs {
			pipe.Incr(ctx, c.genKey(id))
			pipe.Del(ctx, c.key(id))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate lane values: %w", err)
	}
	return nil
}

func (c *RedisLaneValues) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisLaneValues) Close() error {
	return c.client.Close()
}
