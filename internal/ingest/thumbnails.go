package ingest

import (
	"context"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/youtube"
)

// ThumbnailResult reports a thumbnail refresh.
type ThumbnailResult struct {
	Checked       int  `json:"checked"`
	Updated       int  `json:"updated"`
	QuotaExceeded bool `json:"quotaExceeded"`
}

// RefreshThumbnails re-reads details for up to limit videos with a missing or
// default thumbnail and stores the best thumbnail and current view count.
func (p *Pipeline) RefreshThumbnails(ctx context.Context, limit int) (*ThumbnailResult, error) {
	if p.source == nil {
		return nil, ErrDisabled
	}

	ids, err := p.stores.Videos.MissingThumbnails(ctx, limit)
	if err != nil {
		return nil, err
	}
	res := &ThumbnailResult{Checked: len(ids)}
	if len(ids) == 0 {
		return res, nil
	}

	startUnits := p.source.Usage().Units
	stats, err := p.source.VideoDetails(ctx, ids)
	if err != nil {
		if !apperr.Is(err, apperr.KindQuotaExceeded) {
			return nil, err
		}
		// Keep whatever batches succeeded before the quota ran out.
		res.QuotaExceeded = true
		if markErr := p.stores.Logs.MarkQuotaExhausted(ctx, repository.YouTubeAPI, youtube.NextQuotaReset(p.now())); markErr != nil {
			p.logger.Warn().Err(markErr).Msg("recording exhausted quota failed")
		}
	}

	for _, s := range stats {
		if s.Thumbnail == "" {
			continue
		}
		if err := p.stores.Videos.UpdateThumbnail(ctx, s.VideoID, s.Thumbnail, s.Views); err != nil {
			p.logger.Warn().Err(err).Str("video_id", s.VideoID).Msg("updating thumbnail failed")
			continue
		}
		res.Updated++
	}

	if used := p.source.Usage().Units - startUnits; used > 0 && !res.QuotaExceeded {
		if _, err := p.stores.Logs.RecordQuotaUsage(ctx, repository.YouTubeAPI,
			p.cfg.DailyQuota, used, youtube.NextQuotaReset(p.now())); err != nil {
			p.logger.Warn().Err(err).Msg("recording quota usage failed")
		}
	}
	if res.Updated > 0 && p.cache != nil {
		p.cache.InvalidatePrefix(ctx, cache.EntityVideos, cache.EntityVideo, cache.EntityChannel, cache.EntitySearch)
	}

	p.logger.Info().Int("checked", res.Checked).Int("updated", res.Updated).Msg("thumbnail refresh complete")
	return res, nil
}
