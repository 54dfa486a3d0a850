// Package service holds the read and mutation flows behind the HTTP handlers.
// Reads go through the query cache; mutations invalidate what they change.
package service

import (
	"context"

	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/youtube"
)

// VideoStore is implemented by *repository.VideoRepo.
type VideoStore interface {
	List(ctx context.Context, f repository.VideoFilter) ([]model.Video, int64, error)
	FindByVideoID(ctx context.Context, videoID string) (*model.Video, error)
	Related(ctx context.Context, channelID, excludeVideoID string, limit int) ([]model.Video, error)
	SoftDelete(ctx context.Context, videoID string) error
	IncrementViews(ctx context.Context, videoID string) error
	Search(ctx context.Context, term string, limit int) ([]model.Video, error)
}

// ChannelStore is implemented by *repository.ChannelRepo.
type ChannelStore interface {
	List(ctx context.Context) ([]model.Channel, error)
	FindByChannelID(ctx context.Context, channelID string) (*model.Channel, error)
	Exists(ctx context.Context, channelID string) (bool, error)
	Insert(ctx context.Context, ch *model.Channel) error
	SoftDelete(ctx context.Context, channelID string) (int64, error)
	Search(ctx context.Context, term string, limit int) ([]model.Channel, error)
}

// UserStore is implemented by *repository.UserRepo.
type UserStore interface {
	EnsureProfile(ctx context.Context, userID, email string) (*model.Profile, error)
	Subscribe(ctx context.Context, userID, channelID string) error
	Unsubscribe(ctx context.Context, userID, channelID string) error
	Subscriptions(ctx context.Context, userID string) ([]model.Channel, error)
	Hide(ctx context.Context, userID, channelID string) error
	Unhide(ctx context.Context, userID, channelID string) error
	HiddenChannelIDs(ctx context.Context, userID string) ([]string, error)
}

// StatsStore is implemented by *repository.UserRepo.
type StatsStore interface {
	GetStats(ctx context.Context) (*model.StatsResponse, error)
}

// NotificationStore is implemented by *repository.NotificationRepo.
type NotificationStore interface {
	ListForUser(ctx context.Context, userID string, limit int) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkRead(ctx context.Context, userID, id string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type CommentStore interface {
	ListByVideo(ctx context.Context, videoID string, limit int) ([]model.Comment, error)
	Insert(ctx context.Context, c *model.Comment) error
	FindByID(ctx context.Context, id string) (*model.Comment, error)
	SoftDelete(ctx context.Context, id string) error
}

type ReportStore interface {
	Insert(ctx context.Context, rep *model.Report) error
	List(ctx context.Context, status string, limit int) ([]model.Report, error)
	Resolve(ctx context.Context, id string) error
}

type TestimonialStore interface {
	List(ctx context.Context, approvedOnly bool, limit int) ([]model.Testimonial, error)
	Insert(ctx context.Context, t *model.Testimonial) error
	Approve(ctx context.Context, id string) error
}

type SecurityEventStore interface {
	Insert(ctx context.Context, ev *model.SecurityEvent) error
	ListRecent(ctx context.Context, limit int) ([]model.SecurityEvent, error)
}

// LogStore is implemented by *repository.LogRepo.
type LogStore interface {
	ListFetchLogs(ctx context.Context, channelID string, limit int) ([]model.FetchLog, error)
	GetQuota(ctx context.Context, api string) (*model.QuotaUsage, error)
}

// ChannelLookup resolves channel metadata from the video API.
type ChannelLookup interface {
	ChannelInfo(ctx context.Context, channelID string) (*youtube.ChannelInfo, error)
}

// IngestRunner is implemented by *ingest.Pipeline.
type IngestRunner interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Summary, error)
	RefreshThumbnails(ctx context.Context, limit int) (*ingest.ThumbnailResult, error)
}

// relatedLimit is how many same-channel videos a video page shows.
const relatedLimit = 12
