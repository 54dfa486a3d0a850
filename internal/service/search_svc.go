package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

const (
	// MaxQueryLen is the longest search term used; longer input is cut.
	MaxQueryLen = 100

	searchVideoLimit   = 50
	searchChannelLimit = 20
)

type SearchService struct {
	videos   VideoStore
	channels ChannelStore
	cache    *cache.QueryCache
}

func NewSearchService(videos VideoStore, channels ChannelStore, qc *cache.QueryCache) *SearchService {
	return &SearchService{videos: videos, channels: channels, cache: qc}
}

// Search matches q case-insensitively against video and channel titles and
// descriptions. A blank query returns an empty result.
func (s *SearchService) Search(ctx context.Context, q string) (*model.SearchResult, error) {
	term := NormalizeQuery(q)
	if term == "" {
		return &model.SearchResult{Videos: []model.Video{}, Channels: []model.Channel{}}, nil
	}

	key := cache.NewKey(cache.EntitySearch, "q", strings.ToLower(term))
	return cache.Fetch(ctx, s.cache, key, cache.Search, func(ctx context.Context) (*model.SearchResult, error) {
		res := &model.SearchResult{}
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			videos, err := s.videos.Search(gctx, term, searchVideoLimit)
			res.Videos = videos
			return err
		})
		g.Go(func() error {
			channels, err := s.channels.Search(gctx, term, searchChannelLimit)
			res.Channels = channels
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		if res.Videos == nil {
			res.Videos = []model.Video{}
		}
		if res.Channels == nil {
			res.Channels = []model.Channel{}
		}
		return res, nil
	})
}

// NormalizeQuery trims q and cuts it to MaxQueryLen characters.
func NormalizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) <= MaxQueryLen {
		return q
	}
	return strings.TrimSpace(string([]rune(q)[:MaxQueryLen]))
}
