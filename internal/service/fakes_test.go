package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/hibiken/asynq"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/youtube"
)

func newTestCache() *cache.QueryCache {
	return cache.New(cache.NewLocalStore(128), nil)
}

type fakeVideos struct {
	mu        sync.Mutex
	videos    []model.Video
	listCalls atomic.Int32
	getCalls  atomic.Int32
	lastList  repository.VideoFilter
	views     map[string]int
}

func (f *fakeVideos) List(_ context.Context, flt repository.VideoFilter) ([]model.Video, int64, error) {
	f.listCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastList = flt
	out := []model.Video{}
	for _, v := range f.videos {
		if v.DeletedAt != nil {
			continue
		}
		if flt.ChannelID != "" && v.ChannelID != flt.ChannelID {
			continue
		}
		excluded := false
		for _, ex := range flt.Exclude {
			if v.ChannelID == ex {
				excluded = true
			}
		}
		if !excluded {
			out = append(out, v)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeVideos) FindByVideoID(_ context.Context, videoID string) (*model.Video, error) {
	f.getCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.videos {
		if v.VideoID == videoID && v.DeletedAt == nil {
			return &v, nil
		}
	}
	return nil, apperr.NotFound("Video not found")
}

func (f *fakeVideos) Related(_ context.Context, channelID, exclude string, _ int) ([]model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Video{}
	for _, v := range f.videos {
		if v.ChannelID == channelID && v.VideoID != exclude && v.DeletedAt == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVideos) SoftDelete(_ context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.videos {
		if f.videos[i].VideoID == videoID && f.videos[i].DeletedAt == nil {
			now := f.videos[i].UploadedAt
			f.videos[i].DeletedAt = &now
			return nil
		}
	}
	return apperr.NotFound("Video not found")
}

func (f *fakeVideos) IncrementViews(_ context.Context, videoID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.views == nil {
		f.views = map[string]int{}
	}
	f.views[videoID]++
	return nil
}

func (f *fakeVideos) Search(_ context.Context, term string, _ int) ([]model.Video, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Video
	for _, v := range f.videos {
		if v.DeletedAt == nil && strings.Contains(strings.ToLower(v.Title), strings.ToLower(term)) {
			out = append(out, v)
		}
	}
	return out, nil
}

type fakeChannels struct {
	mu       sync.Mutex
	channels map[string]*model.Channel
	calls    atomic.Int32
}

func newFakeChannels(ids ...string) *fakeChannels {
	f := &fakeChannels{channels: map[string]*model.Channel{}}
	for _, id := range ids {
		f.channels[id] = &model.Channel{ID: "row-" + id, ChannelID: id, Title: "Channel " + id}
	}
	return f
}

func (f *fakeChannels) List(context.Context) ([]model.Channel, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Channel{}
	for _, ch := range f.channels {
		if ch.DeletedAt == nil {
			out = append(out, *ch)
		}
	}
	return out, nil
}

func (f *fakeChannels) FindByChannelID(_ context.Context, id string) (*model.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok || ch.DeletedAt != nil {
		return nil, apperr.NotFound("Channel not found")
	}
	c := *ch
	return &c, nil
}

func (f *fakeChannels) Exists(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	return ok && ch.DeletedAt == nil, nil
}

func (f *fakeChannels) Insert(_ context.Context, ch *model.Channel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch.ID = "row-" + ch.ChannelID
	c := *ch
	f.channels[ch.ChannelID] = &c
	return nil
}

func (f *fakeChannels) SoftDelete(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[id]
	if !ok || ch.DeletedAt != nil {
		return 0, apperr.NotFound("Channel not found")
	}
	now := ch.CreatedAt
	ch.DeletedAt = &now
	return 3, nil
}

func (f *fakeChannels) Search(context.Context, string, int) ([]model.Channel, error) {
	return nil, nil
}

type fakeLookup struct {
	info *youtube.ChannelInfo
	err  error
}

func (f *fakeLookup) ChannelInfo(_ context.Context, id string) (*youtube.ChannelInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.info != nil {
		return f.info, nil
	}
	return &youtube.ChannelInfo{ChannelID: id, Title: "Looked up " + id}, nil
}

type fakeRunner struct {
	requests []ingest.Request
	err      error
}

func (f *fakeRunner) Run(_ context.Context, req ingest.Request) (*ingest.Summary, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ingest.Summary{Processed: len(req.ChannelIDs), NewVideos: 2}, nil
}

func (f *fakeRunner) RefreshThumbnails(_ context.Context, limit int) (*ingest.ThumbnailResult, error) {
	return &ingest.ThumbnailResult{Checked: limit}, nil
}

type fakeUsers struct {
	mu            sync.Mutex
	admins        map[string]bool
	subs          map[string]map[string]bool
	hidden        map[string][]string
	profileCalls  atomic.Int32
	hiddenCalls   atomic.Int32
	subsListCalls atomic.Int32
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{admins: map[string]bool{}, subs: map[string]map[string]bool{}, hidden: map[string][]string{}}
}

func (f *fakeUsers) EnsureProfile(_ context.Context, userID, email string) (*model.Profile, error) {
	f.profileCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return &model.Profile{ID: userID, Email: email, IsAdmin: f.admins[userID]}, nil
}

func (f *fakeUsers) Subscribe(_ context.Context, userID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[userID] == nil {
		f.subs[userID] = map[string]bool{}
	}
	f.subs[userID][channelID] = true
	return nil
}

func (f *fakeUsers) Unsubscribe(_ context.Context, userID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.subs[userID][channelID] {
		return apperr.NotFound("Subscription not found")
	}
	delete(f.subs[userID], channelID)
	return nil
}

func (f *fakeUsers) Subscriptions(_ context.Context, userID string) ([]model.Channel, error) {
	f.subsListCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Channel{}
	for id := range f.subs[userID] {
		out = append(out, model.Channel{ChannelID: id})
	}
	return out, nil
}

func (f *fakeUsers) Hide(_ context.Context, userID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hidden[userID] = append(f.hidden[userID], channelID)
	return nil
}

func (f *fakeUsers) Unhide(_ context.Context, userID, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.hidden[userID][:0]
	for _, id := range f.hidden[userID] {
		if id != channelID {
			kept = append(kept, id)
		}
	}
	f.hidden[userID] = kept
	return nil
}

func (f *fakeUsers) HiddenChannelIDs(_ context.Context, userID string) ([]string, error) {
	f.hiddenCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.hidden[userID]...), nil
}

type fakeNotifications struct {
	mu     sync.Mutex
	unread map[string]int64
	calls  atomic.Int32
}

func (f *fakeNotifications) ListForUser(_ context.Context, userID string, _ int) ([]model.Notification, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Notification{}
	for i := int64(0); i < f.unread[userID]; i++ {
		out = append(out, model.Notification{UserID: userID})
	}
	return out, nil
}

func (f *fakeNotifications) CountUnread(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[userID], nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, userID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.unread[userID] == 0 {
		return apperr.NotFound("Notification not found")
	}
	f.unread[userID]--
	return nil
}

func (f *fakeNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.unread[userID]
	f.unread[userID] = 0
	return n, nil
}

type fakeComments struct {
	comments map[string]*model.Comment
	calls    atomic.Int32
}

func (f *fakeComments) ListByVideo(_ context.Context, videoID string, _ int) ([]model.Comment, error) {
	f.calls.Add(1)
	out := []model.Comment{}
	for _, c := range f.comments {
		if c.VideoID == videoID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeComments) Insert(_ context.Context, c *model.Comment) error {
	if f.comments == nil {
		f.comments = map[string]*model.Comment{}
	}
	c.ID = fmt.Sprintf("c%d", len(f.comments)+1)
	cp := *c
	f.comments[c.ID] = &cp
	return nil
}

func (f *fakeComments) FindByID(_ context.Context, id string) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, apperr.NotFound("Comment not found")
	}
	cp := *c
	return &cp, nil
}

func (f *fakeComments) SoftDelete(_ context.Context, id string) error {
	delete(f.comments, id)
	return nil
}

type fakeReports struct {
	inserted []model.Report
}

func (f *fakeReports) Insert(_ context.Context, rep *model.Report) error {
	rep.ID = "r1"
	rep.Status = model.ReportOpen
	f.inserted = append(f.inserted, *rep)
	return nil
}

func (f *fakeReports) List(context.Context, string, int) ([]model.Report, error) {
	return f.inserted, nil
}

func (f *fakeReports) Resolve(context.Context, string) error { return nil }

type fakeTestimonials struct {
	inserted []model.Testimonial
}

func (f *fakeTestimonials) List(context.Context, bool, int) ([]model.Testimonial, error) {
	return f.inserted, nil
}

func (f *fakeTestimonials) Insert(_ context.Context, t *model.Testimonial) error {
	f.inserted = append(f.inserted, *t)
	return nil
}

func (f *fakeTestimonials) Approve(context.Context, string) error { return nil }

type fakeEvents struct {
	inserted []model.SecurityEvent
}

func (f *fakeEvents) Insert(_ context.Context, ev *model.SecurityEvent) error {
	f.inserted = append(f.inserted, *ev)
	return nil
}

func (f *fakeEvents) ListRecent(context.Context, int) ([]model.SecurityEvent, error) {
	return f.inserted, nil
}

type fakeStats struct{ calls atomic.Int32 }

func (f *fakeStats) GetStats(context.Context) (*model.StatsResponse, error) {
	f.calls.Add(1)
	return &model.StatsResponse{TotalVideos: 10}, nil
}

type fakeLogs struct {
	quota *model.QuotaUsage
}

func (f *fakeLogs) ListFetchLogs(context.Context, string, int) ([]model.FetchLog, error) {
	return []model.FetchLog{}, nil
}

func (f *fakeLogs) GetQuota(context.Context, string) (*model.QuotaUsage, error) {
	if f.quota == nil {
		return nil, apperr.NotFound("Quota not tracked")
	}
	return f.quota, nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Queue: "default"}, nil
}
