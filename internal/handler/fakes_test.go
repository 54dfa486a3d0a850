package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/require"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/auth"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/service"
)

const testSecret = "handler-test-secret"

// envelope mirrors middleware.Envelope with raw data for per-test decoding.
type envelope struct {
	Success bool                  `json:"success"`
	Data    json.RawMessage       `json:"data"`
	Error   *middleware.ErrorBody `json:"error"`
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler})
}

func newTestAuth(users *fakeUsers) (*middleware.Auth, *auth.Verifier) {
	v := auth.NewVerifier(testSecret, "")
	return middleware.NewAuth(v, users), v
}

func token(t *testing.T, v *auth.Verifier, userID string) string {
	t.Helper()
	tok, err := v.Sign(userID, userID+"@example.com", time.Hour)
	require.NoError(t, err)
	return tok
}

// do sends a request and decodes the response envelope.
func do(t *testing.T, app *fiber.App, method, path, tok, body string) (*http.Response, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type fakeVideos struct {
	videos  map[string]model.Video
	filter  repository.VideoFilter
	userID  string
	views   []string
	deleted []string
}

func newFakeVideos(vs ...model.Video) *fakeVideos {
	f := &fakeVideos{videos: make(map[string]model.Video)}
	for _, v := range vs {
		f.videos[v.VideoID] = v
	}
	return f
}

func (f *fakeVideos) List(_ context.Context, userID string, filter repository.VideoFilter) (*model.VideoPage, error) {
	f.userID, f.filter = userID, filter
	page := &model.VideoPage{Videos: []model.Video{}}
	for _, v := range f.videos {
		page.Videos = append(page.Videos, v)
	}
	return page, nil
}

func (f *fakeVideos) Get(_ context.Context, videoID string) (*model.VideoDetail, error) {
	v, ok := f.videos[videoID]
	if !ok {
		return nil, apperr.NotFound("Video not found")
	}
	return &model.VideoDetail{Video: v}, nil
}

func (f *fakeVideos) RecordView(_ context.Context, videoID string) error {
	if _, ok := f.videos[videoID]; !ok {
		return apperr.NotFound("Video not found")
	}
	f.views = append(f.views, videoID)
	return nil
}

func (f *fakeVideos) Delete(_ context.Context, videoID string) error {
	if _, ok := f.videos[videoID]; !ok {
		return apperr.NotFound("Video not found")
	}
	delete(f.videos, videoID)
	f.deleted = append(f.deleted, videoID)
	return nil
}

type fakeComments struct {
	added   []model.Comment
	deleted []string
}

func (f *fakeComments) List(_ context.Context, videoID string) ([]model.Comment, error) {
	out := []model.Comment{}
	for _, c := range f.added {
		if c.VideoID == videoID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeComments) Add(_ context.Context, userID, videoID, content string) (*model.Comment, error) {
	c := model.Comment{ID: "3f1c2a9e-52b4-4a4e-9d3c-7f2b8e0a1d11", UserID: userID, VideoID: videoID, Content: content}
	f.added = append(f.added, c)
	return &c, nil
}

func (f *fakeComments) Delete(_ context.Context, sess *auth.Session, id string) error {
	if !sess.IsAdmin {
		return apperr.Forbidden("Only the author or an admin can delete this comment")
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeChannels struct {
	added   []model.AddChannelRequest
	deleted []string
	page    int
}

func (f *fakeChannels) List(context.Context) ([]model.Channel, error) {
	return []model.Channel{{ChannelID: "UCabc123", Title: "Torah Talks"}}, nil
}

func (f *fakeChannels) Get(_ context.Context, channelID string, page int) (*model.ChannelDetail, error) {
	if channelID != "UCabc123" {
		return nil, apperr.NotFound("Channel not found")
	}
	f.page = page
	return &model.ChannelDetail{Channel: model.Channel{ChannelID: channelID}}, nil
}

func (f *fakeChannels) Add(_ context.Context, req model.AddChannelRequest) (*service.AddChannelResult, error) {
	if req.ChannelID == "UCabc123" {
		return nil, apperr.Conflict("Channel is already tracked")
	}
	f.added = append(f.added, req)
	return &service.AddChannelResult{Channel: &model.Channel{ChannelID: req.ChannelID}}, nil
}

func (f *fakeChannels) Delete(_ context.Context, channelID string) (int64, error) {
	if channelID != "UCabc123" {
		return 0, apperr.NotFound("Channel not found")
	}
	f.deleted = append(f.deleted, channelID)
	return 4, nil
}

type fakeSearch struct {
	query string
}

func (f *fakeSearch) Search(_ context.Context, q string) (*model.SearchResult, error) {
	f.query = q
	return &model.SearchResult{Videos: []model.Video{}, Channels: []model.Channel{}}, nil
}

// fakeUsers implements UserAccount and middleware.ProfileLoader.
type fakeUsers struct {
	admins     map[string]bool
	subscribed map[string]bool
	hidden     map[string]bool
	signedOut  []string
	readAll    int64
}

func newFakeUsers(admins ...string) *fakeUsers {
	f := &fakeUsers{admins: make(map[string]bool), subscribed: make(map[string]bool), hidden: make(map[string]bool)}
	for _, a := range admins {
		f.admins[a] = true
	}
	return f
}

func (f *fakeUsers) EnsureProfile(_ context.Context, userID, email string) (*model.Profile, error) {
	return &model.Profile{ID: userID, Email: email, IsAdmin: f.admins[userID]}, nil
}

func (f *fakeUsers) Subscriptions(context.Context, string) ([]model.Channel, error) {
	out := []model.Channel{}
	for id := range f.subscribed {
		out = append(out, model.Channel{ChannelID: id})
	}
	return out, nil
}

func (f *fakeUsers) Subscribe(_ context.Context, _, channelID string) error {
	f.subscribed[channelID] = true
	return nil
}

func (f *fakeUsers) Unsubscribe(_ context.Context, _, channelID string) error {
	delete(f.subscribed, channelID)
	return nil
}

func (f *fakeUsers) HiddenChannels(context.Context, string) ([]string, error) {
	out := []string{}
	for id := range f.hidden {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeUsers) Hide(_ context.Context, _, channelID string) error {
	f.hidden[channelID] = true
	return nil
}

func (f *fakeUsers) Unhide(_ context.Context, _, channelID string) error {
	delete(f.hidden, channelID)
	return nil
}

func (f *fakeUsers) Notifications(context.Context, string) (*model.NotificationList, error) {
	return &model.NotificationList{Notifications: []model.Notification{}, Unread: 2}, nil
}

func (f *fakeUsers) MarkRead(_ context.Context, _, id string) error {
	return apperr.NotFound("Notification not found")
}

func (f *fakeUsers) MarkAllRead(context.Context, string) (int64, error) {
	return f.readAll, nil
}

func (f *fakeUsers) SignOut(_ context.Context, userID string) {
	f.signedOut = append(f.signedOut, userID)
}

type fakeSecurity struct {
	events []model.SecurityEvent
	err    error
}

func (f *fakeSecurity) Log(_ context.Context, userID, ip, ua, eventType, detail string) (*model.SecurityEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	ev := model.SecurityEvent{EventType: eventType, IPHash: f.HashIP(ip), UserAgent: ua}
	if userID != "" {
		ev.UserID = &userID
	}
	f.events = append(f.events, ev)
	return &ev, nil
}

func (f *fakeSecurity) HashIP(ip string) string { return "hash:" + ip }

func (f *fakeSecurity) Recent(_ context.Context, limit int) ([]model.SecurityEvent, error) {
	return f.events[:min(limit, len(f.events))], nil
}

type fakeReports struct {
	submitted []model.ReportRequest
	ipHashes  []string
	status    string
	limit     int
}

func (f *fakeReports) Submit(_ context.Context, _, ipHash string, req model.ReportRequest) (*model.Report, error) {
	f.submitted = append(f.submitted, req)
	f.ipHashes = append(f.ipHashes, ipHash)
	return &model.Report{VideoID: req.VideoID, Status: model.ReportOpen}, nil
}

func (f *fakeReports) List(_ context.Context, status string, limit int) ([]model.Report, error) {
	f.status, f.limit = status, limit
	return []model.Report{}, nil
}

func (f *fakeReports) Resolve(context.Context, string) error { return nil }

type fakeTestimonials struct {
	approved []string
}

func (f *fakeTestimonials) Approved(context.Context) ([]model.Testimonial, error) {
	return []model.Testimonial{{Name: "Chaya", Content: "A safe place for the kids", Approved: true}}, nil
}

func (f *fakeTestimonials) All(context.Context, int) ([]model.Testimonial, error) {
	return []model.Testimonial{}, nil
}

func (f *fakeTestimonials) Submit(_ context.Context, _ string, req model.TestimonialRequest) (*model.Testimonial, error) {
	return &model.Testimonial{Name: req.Name, Content: req.Content}, nil
}

func (f *fakeTestimonials) Approve(_ context.Context, id string) error {
	f.approved = append(f.approved, id)
	return nil
}

type fakeAdmin struct {
	lastReq  ingest.Request
	summary  *ingest.Summary
	enqueued int
	cleared  bool
}

func (f *fakeAdmin) Stats(context.Context) (*model.StatsResponse, error) {
	return &model.StatsResponse{TotalVideos: 10}, nil
}

func (f *fakeAdmin) Quota(context.Context) (*model.QuotaUsage, error) {
	return &model.QuotaUsage{APIName: "youtube", QuotaRemaining: 9000}, nil
}

func (f *fakeAdmin) FetchLogs(context.Context, string, int) ([]model.FetchLog, error) {
	return []model.FetchLog{}, nil
}

func (f *fakeAdmin) RunIngest(_ context.Context, req ingest.Request) (*ingest.Summary, error) {
	f.lastReq = req
	if f.summary != nil {
		return f.summary, nil
	}
	return &ingest.Summary{RunID: "run-1", Processed: len(req.ChannelIDs)}, nil
}

func (f *fakeAdmin) EnqueueIngest(req ingest.Request) (*service.EnqueuedRun, error) {
	f.lastReq = req
	f.enqueued++
	return &service.EnqueuedRun{TaskID: "task-1", Queue: "default"}, nil
}

func (f *fakeAdmin) RefreshThumbnails(context.Context, int) (*ingest.ThumbnailResult, error) {
	return nil, ingest.ErrDisabled
}

func (f *fakeAdmin) ClearCache(context.Context) { f.cleared = true }
