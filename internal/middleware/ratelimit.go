package middleware

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Counter counts hits for a key inside fixed windows. Implementations must
// be safe for concurrent use.
type Counter interface {
	Hit(ctx context.Context, key string, window time.Duration) (Hits, error)
}

// Hits is the state of one key's current window after a hit.
type Hits struct {
	Count   int
	ResetAt time.Time
}

// MemoryCounter keeps windows in process memory, so every API instance
// enforces its own limit.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]*Hits
	now     func() time.Time
	sweep   sync.Once
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string]*Hits), now: time.Now}
}

func (m *MemoryCounter) Hit(_ context.Context, key string, window time.Duration) (Hits, error) {
	m.sweep.Do(func() { go m.evictLoop(5 * time.Minute) })

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	h, ok := m.windows[key]
	if !ok || !now.Before(h.ResetAt) {
		h = &Hits{ResetAt: now.Add(window)}
		m.windows[key] = h
	}
	h.Count++
	return *h, nil
}

func (m *MemoryCounter) evictLoop(every time.Duration) {
	for range time.Tick(every) {
		m.evict()
	}
}

func (m *MemoryCounter) evict() {
	now := m.now()
	m.mu.Lock()
	for key, h := range m.windows {
		if !now.Before(h.ResetAt) {
			delete(m.windows, key)
		}
	}
	m.mu.Unlock()
}

// RedisCounter shares windows between instances through INCR and PEXPIRE.
type RedisCounter struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb, prefix: "yidvid:ratelimit:"}
}

func (r *RedisCounter) Hit(ctx context.Context, key string, window time.Duration) (Hits, error) {
	k := r.prefix + key
	n, err := r.rdb.Incr(ctx, k).Result()
	if err != nil {
		return Hits{}, err
	}
	if n == 1 {
		if err := r.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return Hits{}, err
		}
		return Hits{Count: 1, ResetAt: time.Now().Add(window)}, nil
	}

	ttl, err := r.rdb.PTTL(ctx, k).Result()
	if err != nil {
		return Hits{}, err
	}
	if ttl < 0 {
		// The expiry was lost between INCR and PEXPIRE; restart the window.
		ttl = window
		if err := r.rdb.PExpire(ctx, k, window).Err(); err != nil {
			return Hits{}, err
		}
	}
	return Hits{Count: int(n), ResetAt: time.Now().Add(ttl)}, nil
}

// RateLimitConfig defines one named limit. Name scopes the keys so limits
// sharing a Counter never collide.
type RateLimitConfig struct {
	Name   string
	Max    int
	Window time.Duration
	KeyFn  func(c fiber.Ctx) string
}

// RateLimiter enforces one RateLimitConfig against a Counter.
type RateLimiter struct {
	cfg     RateLimitConfig
	counter Counter
}

// NewRateLimiter returns a limiter for cfg. A nil counter counts in memory.
func NewRateLimiter(cfg RateLimitConfig, counter Counter) *RateLimiter {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	if cfg.KeyFn == nil {
		cfg.KeyFn = KeyByIP
	}
	return &RateLimiter{cfg: cfg, counter: counter}
}

// Allow records a hit for key and reports whether it fits the limit.
// A counter failure lets the request through.
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, Hits) {
	h, err := rl.counter.Hit(ctx, rl.cfg.Name+":"+key, rl.cfg.Window)
	if err != nil {
		log.Warn().Err(err).Str("limit", rl.cfg.Name).Msg("rate limit counter unavailable")
		return true, Hits{Count: 0, ResetAt: time.Now().Add(rl.cfg.Window)}
	}
	return h.Count <= rl.cfg.Max, h
}

// Handler returns the fiber middleware enforcing the limit.
func (rl *RateLimiter) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		ok, h := rl.Allow(c.Context(), rl.cfg.KeyFn(c))

		c.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(max(rl.cfg.Max-h.Count, 0)))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(h.ResetAt.Unix(), 10))
		if ok {
			return c.Next()
		}

		wait := int(time.Until(h.ResetAt).Seconds()) + 1
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(wait))
		return ErrorResponse(c, fiber.StatusTooManyRequests, "RATE_LIMITED",
			"Too many requests. Try again in "+strconv.Itoa(wait)+" seconds.")
	}
}

// KeyByIP keys on the client address.
func KeyByIP(c fiber.Ctx) string {
	return "ip:" + c.IP()
}

// KeyByUserID keys on the session user. Anonymous requests fall back to IP.
func KeyByUserID(c fiber.Ctx) string {
	if uid := UserID(c); uid != "" {
		return "user:" + uid
	}
	return KeyByIP(c)
}

// Limits holds the per-route limiters of the public API.
type Limits struct {
	Read          *RateLimiter
	Search        *RateLimiter
	Comment       *RateLimiter
	Report        *RateLimiter
	SecurityEvent *RateLimiter
	Ingest        *RateLimiter
}

// NewLimits builds the API limits on one shared counter, which may be nil.
func NewLimits(counter Counter) *Limits {
	if counter == nil {
		counter = NewMemoryCounter()
	}
	perMinute := func(name string, n int, key func(fiber.Ctx) string) *RateLimiter {
		return NewRateLimiter(RateLimitConfig{Name: name, Max: n, Window: time.Minute, KeyFn: key}, counter)
	}
	return &Limits{
		Read:          perMinute("read", 120, KeyByIP),
		Search:        perMinute("search", 30, KeyByIP),
		Comment:       perMinute("comment", 10, KeyByUserID),
		Report:        perMinute("report", 5, KeyByIP),
		SecurityEvent: perMinute("security", 20, KeyByIP),
		Ingest:        perMinute("ingest", 6, KeyByUserID),
	}
}

// CounterFor picks the shared Redis counter when a client is available.
func CounterFor(rdb *redis.Client) Counter {
	if rdb == nil {
		return NewMemoryCounter()
	}
	return NewRedisCounter(rdb)
}
