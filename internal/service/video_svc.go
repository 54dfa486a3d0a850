package service

import (
	"context"
	"slices"
	"strconv"
	"strings"

	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
)

// HiddenLister returns the channels a user has hidden.
type HiddenLister interface {
	HiddenChannels(ctx context.Context, userID string) ([]string, error)
}

type VideoService struct {
	videos VideoStore
	hidden HiddenLister
	cache  *cache.QueryCache
}

func NewVideoService(videos VideoStore, hidden HiddenLister, qc *cache.QueryCache) *VideoService {
	return &VideoService{videos: videos, hidden: hidden, cache: qc}
}

// List returns one page of active videos. Signed-in users never see videos
// from channels they have hidden.
func (s *VideoService) List(ctx context.Context, userID string, f repository.VideoFilter) (*model.VideoPage, error) {
	f = f.Normalize()
	if userID != "" && s.hidden != nil {
		hidden, err := s.hidden.HiddenChannels(ctx, userID)
		if err != nil {
			return nil, err
		}
		f.Exclude = slices.Sorted(slices.Values(hidden))
	}

	key := cache.NewKey(cache.EntityVideos,
		"channel", f.ChannelID,
		"category", f.Category,
		"sort", f.Sort,
		"page", strconv.Itoa(f.Page),
		"limit", strconv.Itoa(f.Limit),
		"exclude", strings.Join(f.Exclude, ","),
	)
	return cache.Fetch(ctx, s.cache, key, cache.VideoList, func(ctx context.Context) (*model.VideoPage, error) {
		videos, total, err := s.videos.List(ctx, f)
		if err != nil {
			return nil, err
		}
		return &model.VideoPage{Videos: videos, Total: total, Page: f.Page, Limit: f.Limit}, nil
	})
}

// Get returns a video with related videos from the same channel.
func (s *VideoService) Get(ctx context.Context, videoID string) (*model.VideoDetail, error) {
	key := cache.NewKey(cache.EntityVideo, "id", videoID)
	return cache.Fetch(ctx, s.cache, key, cache.VideoDetail, func(ctx context.Context) (*model.VideoDetail, error) {
		v, err := s.videos.FindByVideoID(ctx, videoID)
		if err != nil {
			return nil, err
		}
		related, err := s.videos.Related(ctx, v.ChannelID, v.VideoID, relatedLimit)
		if err != nil {
			return nil, err
		}
		return &model.VideoDetail{Video: *v, Related: related}, nil
	})
}

// RecordView counts a view. Cached pages keep the old count until they go stale.
func (s *VideoService) RecordView(ctx context.Context, videoID string) error {
	return s.videos.IncrementViews(ctx, videoID)
}

// Delete soft-deletes a video and drops every cached listing that could include it.
func (s *VideoService) Delete(ctx context.Context, videoID string) error {
	if err := s.videos.SoftDelete(ctx, videoID); err != nil {
		return err
	}
	s.cache.InvalidatePrefix(ctx,
		cache.EntityVideos, cache.EntityVideo, cache.EntityChannel, cache.EntitySearch, cache.EntityStats,
		cache.EntityNotifications)
	return nil
}
