package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/swipecook/internal/config"
)

// ErrMiss is returned by GetJSON when the key does not exist.
var ErrMiss = errors.New("cache miss")

type RedisCache struct {
	Client *redis.Client
	now    func() time.Time
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return NewFromClient(redis.NewClient(opts))
}

// NewFromClient wraps an existing client (tests hand in a miniredis-backed one).
func NewFromClient(c *redis.Client) *RedisCache {
	return &RedisCache{Client: c, now: time.Now}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// SetJSON stores v marshalled as JSON.
func (c *RedisCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.Client.Set(ctx, key, b, ttl).Err()
}

// GetJSON loads key into v. Missing keys return ErrMiss.
func (c *RedisCache) GetJSON(ctx context.Context, key string, v any) error {
	b, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// KeyForItem generates the Redis key for a cached catalog item.
func (c *RedisCache) KeyForItem(itemID string) string {
	return fmt.Sprintf("item:%s", itemID)
}

// KeyForPresence generates the Redis key holding a user's live connections.
// It is a sorted set: member = connection id, score = unix ms at which the
// connection counts as gone unless refreshed.
func (c *RedisCache) KeyForPresence(userID string) string {
	return fmt.Sprintf("online:%s", userID)
}

// AddPresence records a live connection and returns how many live
// connections the user now has across all instances. Entries whose deadline
// passed (an instance died without cleaning up) are pruned first.
func (c *RedisCache) AddPresence(ctx context.Context, userID, connID string, ttl time.Duration) (int64, error) {
	now := c.now()
	key := c.KeyForPresence(userID)
	pipe := c.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", expiredBefore(now))
	pipe.ZAdd(ctx, key, redis.Z{Score: deadline(now, ttl), Member: connID})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// RemovePresence drops a connection and returns how many live ones remain.
func (c *RedisCache) RemovePresence(ctx context.Context, userID, connID string) (int64, error) {
	key := c.KeyForPresence(userID)
	pipe := c.Client.TxPipeline()
	pipe.ZRem(ctx, key, connID)
	pipe.ZRemRangeByScore(ctx, key, "-inf", expiredBefore(c.now()))
	card := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

// RefreshPresence pushes one connection's deadline out (heartbeat, pong).
// A connection already removed is not re-added.
func (c *RedisCache) RefreshPresence(ctx context.Context, userID, connID string, ttl time.Duration) error {
	key := c.KeyForPresence(userID)
	pipe := c.Client.TxPipeline()
	pipe.ZAddXX(ctx, key, redis.Z{Score: deadline(c.now(), ttl), Member: connID})
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// IsOnline reports whether any instance holds a live connection for the user.
func (c *RedisCache) IsOnline(ctx context.Context, userID string) (bool, error) {
	from := strconv.FormatInt(c.now().UnixMilli(), 10)
	n, err := c.Client.ZCount(ctx, c.KeyForPresence(userID), from, "+inf").Result()
	return n > 0, err
}

func deadline(now time.Time, ttl time.Duration) float64 {
	return float64(now.Add(ttl).UnixMilli())
}

// expiredBefore is the exclusive score bound for "deadline already passed".
func expiredBefore(now time.Time) string {
	return "(" + strconv.FormatInt(now.UnixMilli(), 10)
}
