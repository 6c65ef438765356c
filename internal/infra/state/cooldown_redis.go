package state

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisOpTimeout = 5 * time.Second

// RedisCooldownStore is a CooldownStore backed by Redis, for deployments that
// already run one. It keeps the same extend-only semantics as the file store;
// the value is the epoch-seconds expiry, with a matching key TTL so stale
// entries vanish on their own.
type RedisCooldownStore struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisCooldownStore connects to Redis and verifies the connection.
func NewRedisCooldownStore(url string) (*RedisCooldownStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCooldownStore{rdb: rdb, now: time.Now}, nil
}

// Close closes the Redis connection.
func (s *RedisCooldownStore) Close() error {
	return s.rdb.Close()
}

func cooldownKey(provider string) string {
	return fmt.Sprintf("genroute:cooldown:%s", provider)
}

// Get reports whether the provider is cooling down.
func (s *RedisCooldownStore) Get(provider string) (time.Time, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	val, err := s.rdb.Get(ctx, cooldownKey(provider)).Result()
	if err == redis.Nil {
		return time.Time{}, false
	}
	if err != nil {
		slog.Debug("Cooldown redis get failed", "provider", provider, "error", err)
		return time.Time{}, false
	}

	epoch, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		slog.Debug("Cooldown redis value unparsable", "provider", provider, "value", val)
		return time.Time{}, false
	}

	until := time.Unix(epoch, 0)
	if !until.After(s.now()) {
		s.rdb.Del(ctx, cooldownKey(provider))
		return time.Time{}, false
	}
	return until, true
}

// Set extends the provider's cooldown to now+d, never shortening an active
// entry. Errors are swallowed like the file store's.
func (s *RedisCooldownStore) Set(provider string, d time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	until := s.now().Add(d)

	if val, err := s.rdb.Get(ctx, cooldownKey(provider)).Result(); err == nil {
		if epoch, perr := strconv.ParseInt(val, 10, 64); perr == nil && time.Unix(epoch, 0).After(until) {
			return
		}
	}

	err := s.rdb.Set(ctx, cooldownKey(provider), strconv.FormatInt(until.Unix(), 10), d).Err()
	if err != nil {
		slog.Debug("Cooldown redis set failed", "provider", provider, "error", err)
	}
}
