// Package realtime turns Postgres content_changes notifications into cache
// invalidations so every API instance drops stale comment, report and
// notification lists shortly after a write.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/cache"
)

// Channel is the Postgres NOTIFY channel written by the notify_content_change trigger.
const Channel = "content_changes"

// Cache is the part of *cache.QueryCache the invalidator drives.
type Cache interface {
	Invalidate(ctx context.Context, keys ...cache.Key)
	InvalidatePrefix(ctx context.Context, entities ...string)
}

// Change is the JSON payload of one notification.
type Change struct {
	Table   string `json:"table"`
	VideoID string `json:"videoId,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// keysForChange maps a change to the exact keys and whole entities it makes stale.
func keysForChange(c Change) ([]cache.Key, []string) {
	switch c.Table {
	case "video_comments":
		if c.VideoID == "" {
			return nil, []string{cache.EntityComments}
		}
		return []cache.Key{cache.CommentsKey(c.VideoID)}, nil
	case "video_reports":
		return nil, []string{cache.EntityReports}
	case "notifications":
		if c.UserID == "" {
			return nil, nil
		}
		return []cache.Key{cache.NotificationsKey(c.UserID), cache.UnreadKey(c.UserID)}, nil
	case "testimonials":
		return nil, []string{cache.EntityTestimonials}
	}
	return nil, nil
}

// Invalidator listens on Channel and flushes the collected keys in batches.
type Invalidator struct {
	pool      *pgxpool.Pool
	cache     Cache
	window    time.Duration
	reconnect time.Duration
	logger    zerolog.Logger

	mu       sync.Mutex
	keys     map[string]cache.Key
	entities map[string]struct{}
}

func NewInvalidator(pool *pgxpool.Pool, c Cache) *Invalidator {
	return &Invalidator{
		pool:      pool,
		cache:     c,
		window:    2 * time.Second,
		reconnect: 5 * time.Second,
		logger:    log.With().Str("component", "invalidator").Logger(),
		keys:      make(map[string]cache.Key),
		entities:  make(map[string]struct{}),
	}
}

// Start blocks until ctx is cancelled, reconnecting after listen errors.
func (inv *Invalidator) Start(ctx context.Context) {
	inv.logger.Info().Dur("batch_window", inv.window).Msg("starting")

	flushCtx, flushCancel := context.WithCancel(ctx)
	defer flushCancel()
	done := make(chan struct{})
	go func() {
		inv.flushLoop(flushCtx)
		close(done)
	}()

	for {
		err := inv.listen(ctx)
		if ctx.Err() != nil {
			break
		}
		inv.logger.Warn().Err(err).Dur("retry_in", inv.reconnect).Msg("listen failed, reconnecting")
		select {
		case <-time.After(inv.reconnect):
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	flushCancel()
	<-done
	inv.logger.Info().Msg("stopped")
}

func (inv *Invalidator) listen(ctx context.Context) error {
	conn, err := inv.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+Channel); err != nil {
		return err
	}
	inv.logger.Info().Str("channel", Channel).Msg("listening")

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		inv.handle(n.Payload)
	}
}

// handle queues the keys for one notification payload.
func (inv *Invalidator) handle(payload string) {
	var c Change
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		inv.logger.Warn().Err(err).Str("payload", payload).Msg("ignoring malformed notification")
		return
	}
	keys, entities := keysForChange(c)

	inv.mu.Lock()
	for _, k := range keys {
		inv.keys[k.String()] = k
	}
	for _, e := range entities {
		inv.entities[e] = struct{}{}
	}
	inv.mu.Unlock()
}

func (inv *Invalidator) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(inv.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			inv.flush(ctx)
		case <-ctx.Done():
			inv.flush(context.Background())
			return
		}
	}
}

// flush swaps out the pending sets and invalidates them in one call each.
func (inv *Invalidator) flush(ctx context.Context) {
	inv.mu.Lock()
	if len(inv.keys) == 0 && len(inv.entities) == 0 {
		inv.mu.Unlock()
		return
	}
	keys, entities := inv.keys, inv.entities
	inv.keys = make(map[string]cache.Key)
	inv.entities = make(map[string]struct{})
	inv.mu.Unlock()

	if len(keys) > 0 {
		batch := make([]cache.Key, 0, len(keys))
		for _, k := range keys {
			batch = append(batch, k)
		}
		inv.cache.Invalidate(ctx, batch...)
	}
	if len(entities) > 0 {
		names := make([]string, 0, len(entities))
		for e := range entities {
			names = append(names, e)
		}
		inv.cache.InvalidatePrefix(ctx, names...)
	}
	inv.logger.Debug().Int("keys", len(keys)).Int("entities", len(entities)).Msg("batch flushed")
}
