package ingest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/youtube"
)

type fakeSource struct {
	mu      sync.Mutex
	uploads map[string][]youtube.Upload
	errs    map[string]error
	limits  map[string]int
	stats   []youtube.VideoStats
	calls   atomic.Int32
	units   atomic.Int64

	detailsErr error
	detailIDs  [][]string
}

func (f *fakeSource) ListUploads(_ context.Context, channelID string, limit int) ([]youtube.Upload, error) {
	f.calls.Add(1)
	f.units.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.limits == nil {
		f.limits = map[string]int{}
	}
	f.limits[channelID] = limit
	if err := f.errs[channelID]; err != nil {
		return nil, err
	}
	ups := f.uploads[channelID]
	if len(ups) > limit {
		ups = ups[:limit]
	}
	return ups, nil
}

func (f *fakeSource) VideoDetails(_ context.Context, ids []string) ([]youtube.VideoStats, error) {
	f.units.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailIDs = append(f.detailIDs, append([]string(nil), ids...))
	return f.stats, f.detailsErr
}

func (f *fakeSource) Usage() youtube.Usage {
	return youtube.Usage{Units: f.units.Load()}
}

type fakeChannels struct {
	mu       sync.Mutex
	channels map[string]model.Channel
	touched  map[string]time.Time
	dueLimit int
}

func newFakeChannels(chs ...model.Channel) *fakeChannels {
	f := &fakeChannels{channels: map[string]model.Channel{}, touched: map[string]time.Time{}}
	for _, ch := range chs {
		f.channels[ch.ChannelID] = ch
	}
	return f
}

func (f *fakeChannels) FindByChannelIDs(_ context.Context, ids []string) ([]model.Channel, error) {
	var out []model.Channel
	for _, id := range ids {
		if ch, ok := f.channels[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) DueForFetch(_ context.Context, before time.Time, limit int) ([]model.Channel, error) {
	f.dueLimit = limit
	var out []model.Channel
	for _, ch := range f.channels {
		if ch.LastFetch == nil || ch.LastFetch.Before(before) {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) TouchLastFetch(_ context.Context, channelID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[channelID] = at
	return nil
}

type fakeVideos struct {
	mu         sync.Mutex
	views      map[string]int64
	existing   map[string]bool
	failInsert map[string]bool
	inserts    map[string]int
	missing    []string
	updated    map[string]string
}

func newFakeVideos(existing ...string) *fakeVideos {
	f := &fakeVideos{views: map[string]int64{}, existing: map[string]bool{}, failInsert: map[string]bool{}, inserts: map[string]int{}, updated: map[string]string{}}
	for _, id := range existing {
		f.existing[id] = true
	}
	return f
}

func (f *fakeVideos) ExistingIDs(_ context.Context, _ string, ids []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]struct{}{}
	for _, id := range ids {
		if f.existing[id] {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (f *fakeVideos) Insert(_ context.Context, v *model.Video) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts[v.VideoID]++
	f.views[v.VideoID] = v.Views
	if f.failInsert[v.VideoID] {
		return false, apperr.Conflict("insert failed")
	}
	if f.existing[v.VideoID] {
		return false, nil
	}
	f.existing[v.VideoID] = true
	return true, nil
}

func (f *fakeVideos) MissingThumbnails(_ context.Context, _ int) ([]string, error) {
	return f.missing, nil
}

func (f *fakeVideos) UpdateThumbnail(_ context.Context, videoID, thumbnail string, _ int64) error {
	f.updated[videoID] = thumbnail
	return nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls map[string][]string
}

func (f *fakeNotifier) CreateForSubscribers(_ context.Context, channelID string, videoIDs []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string][]string{}
	}
	f.calls[channelID] = append(f.calls[channelID], videoIDs...)
	return int64(len(videoIDs)), nil
}

type fakeLogs struct {
	mu        sync.Mutex
	logs      []model.FetchLog
	quota     *model.QuotaUsage
	used      int64
	exhausted *time.Time
}

func (f *fakeLogs) AppendFetchLog(_ context.Context, l *model.FetchLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeLogs) GetQuota(_ context.Context, _ string) (*model.QuotaUsage, error) {
	if f.quota == nil {
		return nil, apperr.NotFound("Quota not tracked")
	}
	return f.quota, nil
}

func (f *fakeLogs) RecordQuotaUsage(_ context.Context, _ string, daily, used int64, _ time.Time) (int64, error) {
	f.used += used
	return daily - f.used, nil
}

func (f *fakeLogs) MarkQuotaExhausted(_ context.Context, _ string, resetAt time.Time) error {
	f.exhausted = &resetAt
	return nil
}

type fakeInvalidator struct {
	entities []string
}

func (f *fakeInvalidator) InvalidatePrefix(_ context.Context, entities ...string) {
	f.entities = append(f.entities, entities...)
}

type fixture struct {
	source   *fakeSource
	channels *fakeChannels
	videos   *fakeVideos
	notifier *fakeNotifier
	logs     *fakeLogs
	cache    *fakeInvalidator
}

func (fx *fixture) pipeline(cfg Config) *Pipeline {
	return NewPipeline(fx.source, Stores{
		Channels: fx.channels,
		Videos:   fx.videos,
		Notifier: fx.notifier,
		Logs:     fx.logs,
	}, fx.cache, cfg)
}

func newFixture(chs ...model.Channel) *fixture {
	return &fixture{
		source:   &fakeSource{uploads: map[string][]youtube.Upload{}, errs: map[string]error{}},
		channels: newFakeChannels(chs...),
		videos:   newFakeVideos(),
		notifier: &fakeNotifier{},
		logs:     &fakeLogs{},
		cache:    &fakeInvalidator{},
	}
}

func uploads(ids ...string) []youtube.Upload {
	out := make([]youtube.Upload, len(ids))
	for i, id := range ids {
		out[i] = youtube.Upload{VideoID: id, Title: "Video " + id, PublishedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
	}
	return out
}
