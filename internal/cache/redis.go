package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// namespace prefixes every key this service writes to Redis.
const namespace = "yidvid:cache:"

// generationKey counts invalidations across all instances. It sits outside
// the namespace so clearing the cache keeps it.
const generationKey = "yidvid:cache-generation"

var errGenerationMoved = errors.New("cache generation moved")

// RedisStore is the shared tier. With a nil client every operation is a
// no-op, so the service runs without Redis.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redisURL. If the URL is empty or the connection
// fails, it returns a store with a nil client.
func NewRedisStore(redisURL string) *RedisStore {
	logger := log.With().Str("component", "cache").Logger()
	if redisURL == "" {
		logger.Info().Msg("redis: no URL configured, shared cache disabled")
		return &RedisStore{}
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("redis: invalid URL, shared cache disabled")
		return &RedisStore{}
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis: connection failed, shared cache disabled")
		_ = rdb.Close()
		return &RedisStore{}
	}

	logger.Info().Msg("redis: connected, shared cache enabled")
	return &RedisStore{rdb: rdb}
}

// NewRedisStoreFromClient wraps an existing client. rdb may be nil.
func NewRedisStoreFromClient(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Client returns the underlying Redis client (for health checks). May be nil.
func (s *RedisStore) Client() *redis.Client {
	return s.rdb
}

func (s *RedisStore) Enabled() bool {
	return s.rdb != nil
}

// Get returns the cached bytes for key. A miss is (nil, false, nil).
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s.rdb == nil {
		return nil, false, nil
	}
	data, err := s.rdb.Get(ctx, namespace+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Set(ctx, namespace+key, data, ttl).Err()
}

// Generation returns the shared invalidation counter.
func (s *RedisStore) Generation(ctx context.Context) (uint64, error) {
	if s.rdb == nil {
		return 0, nil
	}
	n, err := s.rdb.Get(ctx, generationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Advance moves the shared invalidation counter forward.
func (s *RedisStore) Advance(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Incr(ctx, generationKey).Err()
}

// SetIfGeneration writes data only while the shared generation still equals
// gen, watching the counter so an Advance racing the write aborts it. It
// reports whether the value was written.
func (s *RedisStore) SetIfGeneration(ctx context.Context, key string, data []byte, ttl time.Duration, gen uint64) (bool, error) {
	if s.rdb == nil {
		return false, nil
	}
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, generationKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, namespace+key, data, ttl)
			return nil
		})
		return err
	}, generationKey)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		return false, nil
	}
	return false, err
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if s.rdb == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = namespace + k
	}
	return s.rdb.Del(ctx, full...).Err()
}

// DeleteMatching removes every key matching one of the glob patterns, given
// relative to the namespace. It returns the number of keys removed.
func (s *RedisStore) DeleteMatching(ctx context.Context, patterns ...string) (int64, error) {
	if s.rdb == nil {
		return 0, nil
	}
	var removed int64
	for _, p := range patterns {
		iter := s.rdb.Scan(ctx, 0, namespace+p, 200).Iterator()
		batch := make([]string, 0, 200)
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) == cap(batch) {
				n, err := s.rdb.Del(ctx, batch...).Result()
				if err != nil {
					return removed, err
				}
				removed += n
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return removed, err
		}
		if len(batch) > 0 {
			n, err := s.rdb.Del(ctx, batch...).Result()
			if err != nil {
				return removed, err
			}
			removed += n
		}
	}
	return removed, nil
}

// Close shuts down the Redis connection.
func (s *RedisStore) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
