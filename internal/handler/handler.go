// Package handler adapts HTTP requests to service calls. Every response uses
// the middleware envelope.
package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/auth"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/service"
)

// The interfaces below list the service methods each handler calls. The
// service package types implement them.

type VideoReader interface {
	List(ctx context.Context, userID string, f repository.VideoFilter) (*model.VideoPage, error)
	Get(ctx context.Context, videoID string) (*model.VideoDetail, error)
	RecordView(ctx context.Context, videoID string) error
	Delete(ctx context.Context, videoID string) error
}

type Commenter interface {
	List(ctx context.Context, videoID string) ([]model.Comment, error)
	Add(ctx context.Context, userID, videoID, content string) (*model.Comment, error)
	Delete(ctx context.Context, sess *auth.Session, id string) error
}

type ChannelReader interface {
	List(ctx context.Context) ([]model.Channel, error)
	Get(ctx context.Context, channelID string, page int) (*model.ChannelDetail, error)
	Add(ctx context.Context, req model.AddChannelRequest) (*service.AddChannelResult, error)
	Delete(ctx context.Context, channelID string) (int64, error)
}

type Searcher interface {
	Search(ctx context.Context, q string) (*model.SearchResult, error)
}

type UserAccount interface {
	EnsureProfile(ctx context.Context, userID, email string) (*model.Profile, error)
	Subscriptions(ctx context.Context, userID string) ([]model.Channel, error)
	Subscribe(ctx context.Context, userID, channelID string) error
	Unsubscribe(ctx context.Context, userID, channelID string) error
	HiddenChannels(ctx context.Context, userID string) ([]string, error)
	Hide(ctx context.Context, userID, channelID string) error
	Unhide(ctx context.Context, userID, channelID string) error
	Notifications(ctx context.Context, userID string) (*model.NotificationList, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	SignOut(ctx context.Context, userID string)
}

type Reporter interface {
	Submit(ctx context.Context, userID, ipHash string, req model.ReportRequest) (*model.Report, error)
	List(ctx context.Context, status string, limit int) ([]model.Report, error)
	Resolve(ctx context.Context, id string) error
}

type Testimonials interface {
	Approved(ctx context.Context) ([]model.Testimonial, error)
	All(ctx context.Context, limit int) ([]model.Testimonial, error)
	Submit(ctx context.Context, userID string, req model.TestimonialRequest) (*model.Testimonial, error)
	Approve(ctx context.Context, id string) error
}

type SecurityLog interface {
	Log(ctx context.Context, userID, ip, userAgent, eventType, detail string) (*model.SecurityEvent, error)
	HashIP(ip string) string
	Recent(ctx context.Context, limit int) ([]model.SecurityEvent, error)
}

type Admin interface {
	Stats(ctx context.Context) (*model.StatsResponse, error)
	Quota(ctx context.Context) (*model.QuotaUsage, error)
	FetchLogs(ctx context.Context, channelID string, limit int) ([]model.FetchLog, error)
	RunIngest(ctx context.Context, req ingest.Request) (*ingest.Summary, error)
	EnqueueIngest(req ingest.Request) (*service.EnqueuedRun, error)
	RefreshThumbnails(ctx context.Context, limit int) (*ingest.ThumbnailResult, error)
	ClearCache(ctx context.Context)
}

// queryInt reads an optional integer query parameter.
func queryInt(c fiber.Ctx, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Invalid(key + " must be a non-negative integer")
	}
	return n, nil
}

// queryBool reads an optional boolean query parameter.
func queryBool(c fiber.Ctx, key string) bool {
	b, err := strconv.ParseBool(c.Query(key))
	return err == nil && b
}

// session returns the caller's session. Routes behind auth.Required always have one.
func session(c fiber.Ctx) *auth.Session {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		return &auth.Session{}
	}
	return sess
}
