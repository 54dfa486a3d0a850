package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
)

func newTestCache(shared *RedisStore) *QueryCache {
	return New(NewLocalStore(128), shared, WithRetryBase(time.Millisecond))
}

func counter(calls *atomic.Int32, value string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		calls.Add(1)
		return value, nil
	}
}

func TestFetch_CachesResult(t *testing.T) {
	q := newTestCache(nil)
	ctx := context.Background()
	key := NewKey(EntityVideos, "page", "1")

	var calls atomic.Int32
	for i := 0; i < 3; i++ {
		got, err := Fetch(ctx, q, key, VideoList, counter(&calls, "page-1"))
		require.NoError(t, err)
		assert.Equal(t, "page-1", got)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_ExpiresAfterStaleTime(t *testing.T) {
	q := newTestCache(nil)
	ctx := context.Background()
	key := NewKey(EntitySearch, "q", "torah")
	policy := Policy{StaleTime: 20 * time.Millisecond}

	var calls atomic.Int32
	_, err := Fetch(ctx, q, key, policy, counter(&calls, "x"))
	require.NoError(t, err)
	time.Sleep(40 * time.Millisecond)
	_, err = Fetch(ctx, q, key, policy, counter(&calls, "x"))
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidate_ForcesRefetch(t *testing.T) {
	q := newTestCache(nil)
	ctx := context.Background()
	key := NewKey(EntityVideo, "id", "abc")

	var calls atomic.Int32
	_, err := Fetch(ctx, q, key, VideoDetail, counter(&calls, "v"))
	require.NoError(t, err)

	q.Invalidate(ctx, key)

	_, err = Fetch(ctx, q, key, VideoDetail, counter(&calls, "v"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidatePrefix_RemovesEntityOnly(t *testing.T) {
	q := newTestCache(nil)
	ctx := context.Background()

	var videoCalls, channelCalls atomic.Int32
	videos := NewKey(EntityVideos, "page", "1")
	scoped := NewKey(EntityVideos, "page", "1").ForUser("u1")
	channels := NewKey(EntityChannels)

	for i := 0; i < 2; i++ {
		if i == 1 {
			q.InvalidatePrefix(ctx, EntityVideos)
		}
		_, _ = Fetch(ctx, q, videos, VideoList, counter(&videoCalls, "v"))
		_, _ = Fetch(ctx, q, scoped, VideoList, counter(&videoCalls, "v"))
		_, _ = Fetch(ctx, q, channels, ChannelList, counter(&channelCalls, "c"))
	}

	assert.Equal(t, int32(4), videoCalls.Load())
	assert.Equal(t, int32(1), channelCalls.Load())
}

func TestClearUser_OnlyThatUser(t *testing.T) {
	q := newTestCache(nil)
	ctx := context.Background()

	var u1, u2 atomic.Int32
	k1 := NewKey(EntitySubscriptions).ForUser("u1")
	k2 := NewKey(EntitySubscriptions).ForUser("u2")

	_, _ = Fetch(ctx, q, k1, UserScoped, counter(&u1, "a"))
	_, _ = Fetch(ctx, q, k2, UserScoped, counter(&u2, "b"))

	q.ClearUser(ctx, "u1")

	_, _ = Fetch(ctx, q, k1, UserScoped, counter(&u1, "a"))
	_, _ = Fetch(ctx, q, k2, UserScoped, counter(&u2, "b"))

	assert.Equal(t, int32(2), u1.Load())
	assert.Equal(t, int32(1), u2.Load())
}

func TestFetch_RetriesTransientErrors(t *testing.T) {
	q := newTestCache(nil)
	var calls atomic.Int32
	fn := func(context.Context) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("connection reset")
		}
		return 42, nil
	}

	got, err := Fetch(context.Background(), q, NewKey(EntityChannels), Policy{StaleTime: time.Minute, Retry: 2}, fn)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_GivesUpAfterRetries(t *testing.T) {
	q := newTestCache(nil)
	var calls atomic.Int32
	boom := errors.New("timeout")
	fn := func(context.Context) (int, error) {
		calls.Add(1)
		return 0, boom
	}

	_, err := Fetch(context.Background(), q, NewKey(EntityChannels), Policy{StaleTime: time.Minute, Retry: 1}, fn)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_NotFoundIsNotRetriedOrCached(t *testing.T) {
	q := newTestCache(nil)
	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "", apperr.NotFound("Video not found")
	}
	key := NewKey(EntityVideo, "id", "missing")

	for i := 0; i < 2; i++ {
		_, err := Fetch(context.Background(), q, key, Policy{StaleTime: time.Minute, Retry: 3}, fn)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetch_CoalescesConcurrentMisses(t *testing.T) {
	q := newTestCache(nil)
	release := make(chan struct{})
	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "shared", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := Fetch(context.Background(), q, NewKey(EntityChannels), ChannelList, fn)
			assert.NoError(t, err)
			assert.Equal(t, "shared", got)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
}

func TestFetch_InvalidationDuringLoadIsNotCached(t *testing.T) {
	q := newTestCache(nil)
	ctx := context.Background()
	key := NewKey(EntityVideo, "id", "abc")

	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			q.Invalidate(ctx, key)
			return "stale", nil
		}
		return "fresh", nil
	}

	got, err := Fetch(ctx, q, key, VideoDetail, fn)
	require.NoError(t, err)
	assert.Equal(t, "stale", got)

	got, err = Fetch(ctx, q, key, VideoDetail, fn)
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
}

func TestRedisTier(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	var calls atomic.Int32
	key := NewKey(EntityVideos, "page", "1")

	first := newTestCache(NewRedisStoreFromClient(rdb))
	_, err := Fetch(ctx, first, key, VideoList, counter(&calls, "page"))
	require.NoError(t, err)
	assert.True(t, mr.Exists(namespace+key.String()))

	// A second instance with an empty local tier reads from Redis.
	second := newTestCache(NewRedisStoreFromClient(rdb))
	got, err := Fetch(ctx, second, key, VideoList, counter(&calls, "page"))
	require.NoError(t, err)
	assert.Equal(t, "page", got)
	assert.Equal(t, int32(1), calls.Load())

	second.InvalidatePrefix(ctx, EntityVideos)
	assert.False(t, mr.Exists(namespace+key.String()))
}

func TestRedisTier_ClearUser(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	ctx := context.Background()

	q := newTestCache(NewRedisStoreFromClient(rdb))
	var calls atomic.Int32
	_, _ = Fetch(ctx, q, NewKey(EntityHidden).ForUser("u1"), UserScoped, counter(&calls, "a"))
	_, _ = Fetch(ctx, q, NewKey(EntityChannels), ChannelList, counter(&calls, "b"))
	require.Len(t, cachedKeys(mr), 2)

	q.ClearUser(ctx, "u1")
	assert.Equal(t, []string{namespace + "channels:"}, cachedKeys(mr))

	q.Clear(ctx)
	assert.Empty(t, cachedKeys(mr))
	assert.True(t, mr.Exists(generationKey), "clearing keeps the generation")
}

func cachedKeys(mr *miniredis.Miniredis) []string {
	var out []string
	for _, k := range mr.Keys() {
		if strings.HasPrefix(k, namespace) {
			out = append(out, k)
		}
	}
	return out
}

func newRedisPair(t *testing.T) (*miniredis.Miniredis, *QueryCache, *QueryCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, newTestCache(NewRedisStoreFromClient(rdb)), newTestCache(NewRedisStoreFromClient(rdb))
}

func TestRedisTier_InvalidationReachesOtherInstances(t *testing.T) {
	_, first, second := newRedisPair(t)
	ctx := context.Background()
	key := NewKey(EntityVideos, "page", "1")

	var calls atomic.Int32
	got, err := Fetch(ctx, first, key, VideoList, counter(&calls, "v1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	got, err = Fetch(ctx, second, key, VideoList, counter(&calls, "v1"))
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	require.Equal(t, int32(1), calls.Load())

	first.InvalidatePrefix(ctx, EntityVideos)

	got, err = Fetch(ctx, second, key, VideoList, counter(&calls, "v2"))
	require.NoError(t, err)
	assert.Equal(t, "v2", got, "the other instance must not serve the old page")
	assert.Equal(t, int32(2), calls.Load())

	got, err = Fetch(ctx, first, key, VideoList, counter(&calls, "v3"))
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
}

func TestRedisTier_OtherInstanceInvalidationDuringLoadIsNotCached(t *testing.T) {
	mr, first, second := newRedisPair(t)
	ctx := context.Background()
	key := NewKey(EntityVideo, "id", "abc")

	got, err := Fetch(ctx, second, key, VideoDetail, func(context.Context) (string, error) {
		first.Invalidate(ctx, key)
		return "stale", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "stale", got)
	assert.False(t, mr.Exists(namespace+key.String()))

	var calls atomic.Int32
	got, err = Fetch(ctx, first, key, VideoDetail, counter(&calls, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", got)
	assert.True(t, mr.Exists(namespace+key.String()))
}

func TestRedisStore_SetIfGeneration(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	s := NewRedisStoreFromClient(rdb)
	ctx := context.Background()

	gen, err := s.Generation(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)

	ok, err := s.SetIfGeneration(ctx, "k", []byte(`"a"`), time.Minute, gen)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Advance(ctx))
	ok, err = s.SetIfGeneration(ctx, "k2", []byte(`"b"`), time.Minute, gen)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(namespace+"k2"))

	gen, err = s.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)
}

func TestFetch_CallerCancelDoesNotFailOthers(t *testing.T) {
	q := newTestCache(nil)
	key := NewKey(EntityChannels)
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	var loadErr atomic.Value
	fn := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			loadErr.Store(err)
		}
		return "shared", nil
	}

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := Fetch(first, q, key, ChannelList, fn)
		firstErr <- err
	}()
	<-started

	type result struct {
		val string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := Fetch(context.Background(), q, key, ChannelList, fn)
		second <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "shared", res.val)
	assert.Nil(t, loadErr.Load(), "the shared load must not see the first caller's cancel")
	assert.Equal(t, int32(1), calls.Load())

	got, err := Fetch(context.Background(), q, key, ChannelList, counter(&calls, "other"))
	require.NoError(t, err)
	assert.Equal(t, "shared", got, "the load was cached")
}

func TestFetch_LoadHasItsOwnDeadline(t *testing.T) {
	q := New(NewLocalStore(8), nil, WithRetryBase(time.Millisecond), WithFetchTimeout(20*time.Millisecond))
	fn := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}

	_, err := Fetch(context.Background(), q, NewKey(EntityStats), Policy{StaleTime: time.Minute}, fn)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_ConcurrentInvalidationNeverLeavesStaleValue(t *testing.T) {
	q := newTestCache(nil)
	ctx := context.Background()
	key := NewKey(EntityVideo, "id", "abc")

	var version atomic.Int64
	load := func(context.Context) (int64, error) {
		v := version.Load()
		time.Sleep(time.Microsecond)
		return v, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			version.Add(1)
			q.Invalidate(ctx, key)
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_, err := Fetch(ctx, q, key, VideoDetail, load)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	got, err := Fetch(ctx, q, key, VideoDetail, load)
	require.NoError(t, err)
	assert.Equal(t, version.Load(), got)
}

func TestRedisStore_NilClientIsNoop(t *testing.T) {
	s := &RedisStore{}
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))
	assert.NoError(t, s.Delete(ctx, "k"))
	n, err := s.DeleteMatching(ctx, "*")
	assert.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, s.Close())
}
