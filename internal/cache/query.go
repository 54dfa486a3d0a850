// Package cache wraps server reads in keyed, cached fetches with a staleness
// window and retry policy, backed by Redis or, without it, an in-process LRU.
package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/metrics"
)

// QueryCache coordinates the tiers, request coalescing and invalidation.
// With Redis enabled, Redis is the only tier: every instance reads and
// invalidates the same entries, so an invalidation on one instance is seen by
// all. The LRU serves single-instance deployments without Redis.
type QueryCache struct {
	local  *LocalStore
	shared *RedisStore
	group  singleflight.Group

	// mu orders stores against invalidations. epoch advances on every
	// invalidation; a fetch that started under an older epoch does not store
	// its result.
	mu    sync.Mutex
	epoch atomic.Uint64

	retryBase    time.Duration
	fetchTimeout time.Duration
	logger       zerolog.Logger
}

type Option func(*QueryCache)

// WithRetryBase sets the first backoff interval between fetch retries.
func WithRetryBase(d time.Duration) Option {
	return func(q *QueryCache) { q.retryBase = d }
}

// WithFetchTimeout bounds a coalesced fetch. The fetch outlives the caller
// that started it, so it needs its own deadline.
func WithFetchTimeout(d time.Duration) Option {
	return func(q *QueryCache) { q.fetchTimeout = d }
}

// New returns a QueryCache. shared may be nil.
func New(local *LocalStore, shared *RedisStore, opts ...Option) *QueryCache {
	if shared == nil {
		shared = &RedisStore{}
	}
	q := &QueryCache{
		local:        local,
		shared:       shared,
		retryBase:    200 * time.Millisecond,
		fetchTimeout: 30 * time.Second,
		logger:       log.With().Str("component", "cache").Logger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Shared returns the Redis tier.
func (q *QueryCache) Shared() *RedisStore {
	return q.shared
}

// generation is the invalidation state a fetch started under.
type generation struct {
	local  uint64
	shared uint64
	// ok is false when the shared generation could not be read; such a
	// fetch is served but never stored.
	ok bool
}

func (g generation) String() string {
	return strconv.FormatUint(g.local, 10) + "." + strconv.FormatUint(g.shared, 10)
}

func (q *QueryCache) begin(ctx context.Context) generation {
	g := generation{local: q.epoch.Load(), ok: true}
	if q.shared.Enabled() {
		n, err := q.shared.Generation(ctx)
		if err != nil {
			q.logger.Warn().Err(err).Msg("redis generation read failed")
			g.ok = false
		}
		g.shared = n
	}
	return g
}

// Fetch returns the cached value for key, or runs fn and caches its result
// for policy.StaleTime. Failed fetches are retried up to policy.Retry times
// unless the error is not retryable; errors are never cached.
//
// Concurrent misses share one call of fn. That call does not inherit the
// cancellation of the caller that started it; each caller stops waiting when
// its own ctx is done.
func Fetch[T any](ctx context.Context, q *QueryCache, key Key, policy Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	k := key.String()

	if data, ok := q.lookup(ctx, k); ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			return out, nil
		}
		q.logger.Warn().Str("key", k).Msg("discarding undecodable cache entry")
		q.drop(ctx, k)
	}

	g := q.begin(ctx)
	ch := q.group.DoChan(k+"#"+g.String(), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.fetchTimeout)
		defer cancel()

		result, err := withRetry(fctx, q.retryBase, policy.Retry, fn)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		q.store(fctx, k, data, policy.StaleTime, g)
		return data, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		var out T
		if err := json.Unmarshal(res.Val.([]byte), &out); err != nil {
			return zero, err
		}
		return out, nil
	}
}

func (q *QueryCache) lookup(ctx context.Context, k string) ([]byte, bool) {
	if !q.shared.Enabled() {
		if data, ok := q.local.Get(k); ok {
			metrics.CacheLookups.WithLabelValues("local", "hit").Inc()
			return data, true
		}
		metrics.CacheLookups.WithLabelValues("local", "miss").Inc()
		return nil, false
	}

	data, ok, err := q.shared.Get(ctx, k)
	if err != nil {
		q.logger.Warn().Err(err).Str("key", k).Msg("redis get failed, bypassing shared cache")
		return nil, false
	}
	if !ok {
		metrics.CacheLookups.WithLabelValues("redis", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("redis", "hit").Inc()
	return data, true
}

func (q *QueryCache) drop(ctx context.Context, k string) {
	if !q.shared.Enabled() {
		q.local.Delete(k)
		return
	}
	if err := q.shared.Delete(ctx, k); err != nil {
		q.logger.Warn().Err(err).Str("key", k).Msg("redis delete failed")
	}
}

// store writes data unless an invalidation happened since g was taken.
func (q *QueryCache) store(ctx context.Context, k string, data []byte, ttl time.Duration, g generation) {
	q.mu.Lock()
	moved := q.epoch.Load() != g.local
	if !moved && !q.shared.Enabled() {
		q.local.Set(k, data, ttl)
	}
	q.mu.Unlock()

	if moved || !q.shared.Enabled() || !g.ok {
		return
	}
	stored, err := q.shared.SetIfGeneration(ctx, k, data, ttl, g.shared)
	if err != nil {
		q.logger.Warn().Err(err).Str("key", k).Msg("redis set failed")
		return
	}
	if !stored {
		q.logger.Debug().Str("key", k).Msg("skipping store after invalidation")
	}
}

// withRetry runs fn, retrying retryable failures up to retries times with
// exponential backoff.
func withRetry[T any](ctx context.Context, base time.Duration, retries int, fn func(context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = base
	eb.MaxInterval = 10 * base
	eb.MaxElapsedTime = 0

	var b backoff.BackOff = eb
	if retries < 0 {
		retries = 0
	}
	b = backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	var out T
	err := backoff.Retry(func() error {
		v, err := fn(ctx)
		if err != nil {
			if !apperr.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}, b)
	return out, err
}

// bump advances the local epoch and applies drop under the store lock, then
// advances the shared generation. The shared generation moves before the
// shared delete, so a concurrent store either fails its check or is deleted.
func (q *QueryCache) bump(ctx context.Context, drop func()) {
	q.mu.Lock()
	q.epoch.Add(1)
	drop()
	q.mu.Unlock()

	if err := q.shared.Advance(ctx); err != nil {
		q.logger.Warn().Err(err).Msg("redis generation advance failed")
	}
}

// Invalidate removes the given keys from both tiers.
func (q *QueryCache) Invalidate(ctx context.Context, keys ...Key) {
	if len(keys) == 0 {
		return
	}
	rendered := make([]string, len(keys))
	for i, k := range keys {
		rendered[i] = k.String()
	}
	q.bump(ctx, func() { q.local.Delete(rendered...) })
	if err := q.shared.Delete(ctx, rendered...); err != nil {
		q.logger.Warn().Err(err).Strs("keys", rendered).Msg("redis delete failed")
	}
	metrics.CacheInvalidations.WithLabelValues("key").Add(float64(len(keys)))
}

// InvalidatePrefix removes every key of the given entities, including
// user-scoped ones.
func (q *QueryCache) InvalidatePrefix(ctx context.Context, entities ...string) {
	if len(entities) == 0 {
		return
	}
	patterns := make([]string, 0, 2*len(entities))
	for _, entity := range entities {
		patterns = append(patterns, entity+":*", "user:*:"+entity+":*")
	}
	q.bump(ctx, func() {
		q.local.DeleteFunc(func(k string) bool {
			for _, entity := range entities {
				if matchesEntity(k, entity) {
					return true
				}
			}
			return false
		})
	})
	if _, err := q.shared.DeleteMatching(ctx, patterns...); err != nil {
		q.logger.Warn().Err(err).Strs("entities", entities).Msg("redis prefix delete failed")
	}
	metrics.CacheInvalidations.WithLabelValues("entity").Add(float64(len(entities)))
}

// ClearUser removes every key scoped to userID, as on sign-out.
func (q *QueryCache) ClearUser(ctx context.Context, userID string) {
	if userID == "" {
		return
	}
	prefix := UserPrefix(userID)
	q.bump(ctx, func() {
		q.local.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
	})
	if _, err := q.shared.DeleteMatching(ctx, prefix+"*"); err != nil {
		q.logger.Warn().Err(err).Msg("redis user clear failed")
	}
	metrics.CacheInvalidations.WithLabelValues("user").Inc()
}

// Clear empties both tiers.
func (q *QueryCache) Clear(ctx context.Context) {
	q.bump(ctx, q.local.Purge)
	if _, err := q.shared.DeleteMatching(ctx, "*"); err != nil {
		q.logger.Warn().Err(err).Msg("redis clear failed")
	}
	metrics.CacheInvalidations.WithLabelValues("all").Inc()
}
