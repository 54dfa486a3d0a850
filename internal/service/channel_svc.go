package service

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
)

// DefaultCategory is stored for channels added without one.
const DefaultCategory = "other"

type ChannelService struct {
	channels ChannelStore
	videos   VideoStore
	lookup   ChannelLookup
	ingest   IngestRunner
	cache    *cache.QueryCache
}

// NewChannelService wires the channel flows. lookup and runner may be nil when
// no video API key is configured; Add then fails with an upstream error.
func NewChannelService(channels ChannelStore, videos VideoStore, lookup ChannelLookup, runner IngestRunner, qc *cache.QueryCache) *ChannelService {
	return &ChannelService{channels: channels, videos: videos, lookup: lookup, ingest: runner, cache: qc}
}

// AddChannelResult is returned by Add. Ingest is set when an immediate
// fetch was requested.
type AddChannelResult struct {
	Channel *model.Channel  `json:"channel"`
	Ingest  *ingest.Summary `json:"ingest,omitempty"`
}

// List returns every active channel.
func (s *ChannelService) List(ctx context.Context) ([]model.Channel, error) {
	return cache.Fetch(ctx, s.cache, cache.NewKey(cache.EntityChannels), cache.ChannelList, s.channels.List)
}

// Get returns a channel with one page of its newest videos.
func (s *ChannelService) Get(ctx context.Context, channelID string, page int) (*model.ChannelDetail, error) {
	f := repository.VideoFilter{ChannelID: channelID, Page: page}.Normalize()
	key := cache.NewKey(cache.EntityChannel, "id", channelID, "page", strconv.Itoa(f.Page))
	return cache.Fetch(ctx, s.cache, key, cache.ChannelList, func(ctx context.Context) (*model.ChannelDetail, error) {
		ch, err := s.channels.FindByChannelID(ctx, channelID)
		if err != nil {
			return nil, err
		}
		videos, _, err := s.videos.List(ctx, f)
		if err != nil {
			return nil, err
		}
		return &model.ChannelDetail{Channel: *ch, Videos: videos}, nil
	})
}

// Add starts tracking a channel using metadata from the video API, and
// optionally ingests its uploads right away.
func (s *ChannelService) Add(ctx context.Context, req model.AddChannelRequest) (*AddChannelResult, error) {
	if s.lookup == nil {
		return nil, apperr.New(apperr.KindUpstream, "INGEST_DISABLED", "Video API is not configured")
	}
	info, err := s.lookup.ChannelInfo(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}

	exists, err := s.channels.Exists(ctx, info.ChannelID)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Conflict("Channel is already tracked")
	}

	category := strings.TrimSpace(req.Category)
	if category == "" {
		category = DefaultCategory
	}
	ch := &model.Channel{
		ChannelID:       info.ChannelID,
		Title:           info.Title,
		ThumbnailURL:    info.Thumbnail,
		Description:     info.Description,
		DefaultCategory: category,
	}
	if err := s.channels.Insert(ctx, ch); err != nil {
		return nil, err
	}
	// A restored channel brings its videos back too.
	s.cache.InvalidatePrefix(ctx,
		cache.EntityChannels, cache.EntityChannel, cache.EntityVideos, cache.EntityVideo,
		cache.EntitySearch, cache.EntityStats)
	log.Info().Str("component", "channels").Str("channel_id", ch.ChannelID).Msg("channel added")

	res := &AddChannelResult{Channel: ch}
	if req.FetchNow && s.ingest != nil {
		sum, err := s.ingest.Run(ctx, ingest.Request{ChannelIDs: []string{ch.ChannelID}, ForceUpdate: true})
		if err != nil {
			// The channel is tracked; the scheduled run picks it up later.
			log.Warn().Err(err).Str("component", "channels").Str("channel_id", ch.ChannelID).Msg("initial fetch failed")
		}
		res.Ingest = sum
	}
	return res, nil
}

// Delete stops tracking a channel and hides its videos. It returns the number
// of videos hidden.
func (s *ChannelService) Delete(ctx context.Context, channelID string) (int64, error) {
	hidden, err := s.channels.SoftDelete(ctx, channelID)
	if err != nil {
		return 0, err
	}
	s.cache.InvalidatePrefix(ctx,
		cache.EntityVideos, cache.EntityVideo, cache.EntityChannels, cache.EntityChannel,
		cache.EntitySearch, cache.EntityStats, cache.EntitySubscriptions, cache.EntityNotifications)
	return hidden, nil
}
