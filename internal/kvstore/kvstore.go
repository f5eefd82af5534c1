// Package kvstore is the C2 Redis-backed key/value store facade: a thin,
// lazily-initialized wrapper around redis/go-redis/v9 exposing exactly the
// operations the core and its hooks need.
package kvstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/chainindex/txprocessor/internal/config"
)

// Store wraps a redis.UniversalClient. Use Open to construct one; the zero
// value is not usable.
type Store struct {
	client redis.UniversalClient
}

var (
	singleton     *Store
	singletonOnce sync.Once
	singletonErr  error
)

// Open builds a Store from cfg, verifying connectivity with a PING before
// returning, mirroring the original's RedisPool construction. ClusterMode
// selects go-redis's cluster client; otherwise a single-node client is
// used.
func Open(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	var client redis.UniversalClient
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	if cfg.ClusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    []string{addr},
			Password: cfg.Password,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			DB:       cfg.DB,
			Password: cfg.Password,
		})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "ping redis")
	}

	return &Store{client: client}, nil
}

// Singleton lazily constructs and caches the process-wide Store using a
// sync.Once, matching the original's classmethod double-checked-locking
// construction pattern (RedisPool.get_pool).
func Singleton(ctx context.Context, cfg config.RedisConfig) (*Store, error) {
	singletonOnce.Do(func() {
		singleton, singletonErr = Open(ctx, cfg)
	})
	return singleton, singletonErr
}

// NewForTest wraps an already-constructed redis.UniversalClient (typically
// pointed at a miniredis instance) without the PING/singleton machinery
// Open and Singleton apply, for use from other packages' tests.
func NewForTest(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping verifies the connection is alive, used by the HTTP liveness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Set stores value under key with an optional TTL (zero disables
// expiration).
func (s *Store) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// Get reads key, returning redis.Nil (via errors.Is) when absent.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	return s.client.Get(ctx, key).Result()
}

// HSet writes field within hash key.
func (s *Store) HSet(ctx context.Context, key, field string, value interface{}) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

// HGet reads field within hash key.
func (s *Store) HGet(ctx context.Context, key, field string) (string, error) {
	return s.client.HGet(ctx, key, field).Result()
}

// LPush pushes values onto the head of a list.
func (s *Store) LPush(ctx context.Context, key string, values ...interface{}) error {
	return s.client.LPush(ctx, key, values...).Err()
}

// BRPop blocks up to timeout (0 = indefinite) popping from the tail of the
// given keys, returning (key, value).
func (s *Store) BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]string, error) {
	return s.client.BRPop(ctx, timeout, keys...).Result()
}

// Len reports the number of members in a sorted set, used by tests
// asserting on event-filter output.
func (s *Store) Len(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

// Delete removes keys, ignoring ones that don't exist.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	return s.client.Del(ctx, keys...).Err()
}

// Expire sets a TTL on an existing key. A non-positive ttl is a no-op,
// matching the convention used by Set.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return s.client.Expire(ctx, key, ttl).Err()
}

// ZAddScore adds a single (score, member) pair to a sorted set.
func (s *Store) ZAddScore(ctx context.Context, key string, score float64, member string) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

// TrimOldest keeps at most the keep highest-scored members of the sorted
// set at key, evicting the rest, and returns the evicted members. keep <= 0
// disables trimming (returns nil, nil).
func (s *Store) TrimOldest(ctx context.Context, key string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	total, err := s.client.ZCard(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	overflow := total - int64(keep)
	if overflow <= 0 {
		return nil, nil
	}
	evicted, err := s.client.ZRange(ctx, key, 0, overflow-1).Result()
	if err != nil {
		return nil, err
	}
	if err := s.client.ZRemRangeByRank(ctx, key, 0, overflow-1).Err(); err != nil {
		return nil, err
	}
	return evicted, nil
}

// ZAddMembers maps each member to add to a sorted set to its score.
type ZAddMembers map[string]float64

// PipelineZAdd executes a single non-transactional pipeline adding every
// key's members to its sorted set, mirroring the event filter's per-receipt
// "one pipeline, many ZADDs" execution (spec.md §4.6 step 6). Using a
// pipeline rather than MULTI/EXEC intentionally allows partial application
// under contention, matching the original aioredis client's bare pipeline.
func (s *Store) PipelineZAdd(ctx context.Context, byKey map[string]ZAddMembers) error {
	if len(byKey) == 0 {
		return nil
	}
	pipe := s.client.Pipeline()
	for key, members := range byKey {
		zs := make([]redis.Z, 0, len(members))
		for member, score := range members {
			zs = append(zs, redis.Z{Score: score, Member: member})
		}
		pipe.ZAdd(ctx, key, zs...)
	}
	_, err := pipe.Exec(ctx)
	return err
}
