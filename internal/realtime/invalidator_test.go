package realtime

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YidKik/yidvid-sub003/internal/cache"
)

type recordingCache struct {
	mu       sync.Mutex
	keys     []string
	entities []string
	calls    int
}

func (r *recordingCache) Invalidate(_ context.Context, keys ...cache.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	for _, k := range keys {
		r.keys = append(r.keys, k.String())
	}
}

func (r *recordingCache) InvalidatePrefix(_ context.Context, entities ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.entities = append(r.entities, entities...)
}

func TestKeysForChange(t *testing.T) {
	tests := []struct {
		name     string
		change   Change
		keys     []string
		entities []string
	}{
		{
			name:   "comment on a video",
			change: Change{Table: "video_comments", VideoID: "abc"},
			keys:   []string{"comments:video=abc"},
		},
		{
			name:     "comment without video id",
			change:   Change{Table: "video_comments"},
			entities: []string{cache.EntityComments},
		},
		{
			name:     "report",
			change:   Change{Table: "video_reports", VideoID: "abc"},
			entities: []string{cache.EntityReports},
		},
		{
			name:   "notification",
			change: Change{Table: "notifications", VideoID: "abc", UserID: "u1"},
			keys:   []string{"user:u1:notifications:", "user:u1:notifications:unread=true"},
		},
		{
			name:     "testimonial",
			change:   Change{Table: "testimonials"},
			entities: []string{cache.EntityTestimonials},
		},
		{
			name:   "unknown table",
			change: Change{Table: "videos"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, entities := keysForChange(tt.change)
			var rendered []string
			for _, k := range keys {
				rendered = append(rendered, k.String())
			}
			assert.Equal(t, tt.keys, rendered)
			assert.Equal(t, tt.entities, entities)
		})
	}
}

func TestInvalidator_BatchesDuplicates(t *testing.T) {
	rec := &recordingCache{}
	inv := NewInvalidator(nil, rec)

	inv.handle(`{"table":"video_comments","videoId":"abc"}`)
	inv.handle(`{"table":"video_comments","videoId":"abc"}`)
	inv.handle(`{"table":"video_comments","videoId":"def"}`)
	inv.handle(`{"table":"video_reports","videoId":"abc"}`)
	inv.handle(`{"table":"video_reports","videoId":"def"}`)
	inv.flush(context.Background())

	sort.Strings(rec.keys)
	assert.Equal(t, []string{"comments:video=abc", "comments:video=def"}, rec.keys)
	assert.Equal(t, []string{cache.EntityReports}, rec.entities)
	assert.Equal(t, 2, rec.calls)
}

func TestInvalidator_EmptyFlushIsNoop(t *testing.T) {
	rec := &recordingCache{}
	inv := NewInvalidator(nil, rec)

	inv.handle("not json")
	inv.flush(context.Background())
	assert.Zero(t, rec.calls)
}

func TestInvalidator_FlushDrainsPending(t *testing.T) {
	rec := &recordingCache{}
	inv := NewInvalidator(nil, rec)

	inv.handle(`{"table":"testimonials"}`)
	inv.flush(context.Background())
	inv.flush(context.Background())
	require.Equal(t, 1, rec.calls)
}

func TestInvalidatedKeyIsRefetched(t *testing.T) {
	qc := cache.New(cache.NewLocalStore(16), nil)
	inv := NewInvalidator(nil, qc)
	ctx := context.Background()

	calls := 0
	load := func(context.Context) (int, error) {
		calls++
		return calls, nil
	}
	key := cache.CommentsKey("abc")

	_, err := cache.Fetch(ctx, qc, key, cache.VideoDetail, load)
	require.NoError(t, err)
	_, err = cache.Fetch(ctx, qc, key, cache.VideoDetail, load)
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	inv.handle(`{"table":"video_comments","videoId":"abc"}`)
	inv.flush(ctx)

	got, err := cache.Fetch(ctx, qc, key, cache.VideoDetail, load)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}
