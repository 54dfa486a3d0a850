package repository

import (
	"context"
	"time"

	"github.com/YidKik/yidvid-sub003/internal/model"
)

// YouTubeAPI is the api_name under which YouTube quota is tracked.
const YouTubeAPI = "youtube"

// LogRepo stores ingestion fetch logs and external API quota.
type LogRepo struct {
	db DBTX
}

func NewLogRepo(db DBTX) *LogRepo {
	return &LogRepo{db: db}
}

// AppendFetchLog appends one fetch log row.
func (r *LogRepo) AppendFetchLog(ctx context.Context, l *model.FetchLog) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO youtube_update_logs (run_id, channel_id, videos_found, new_videos,
		                                 error_count, error, quota_remaining)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		l.RunID, l.ChannelID, l.VideosFound, l.NewVideos, l.ErrorCount, l.Error, l.QuotaRemaining,
	).Scan(&l.ID, &l.CreatedAt)
}

// ListFetchLogs returns the newest fetch logs, optionally for one channel.
func (r *LogRepo) ListFetchLogs(ctx context.Context, channelID string, limit int) ([]model.FetchLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, run_id::text, channel_id, videos_found, new_videos, error_count,
		       error, quota_remaining, created_at
		FROM youtube_update_logs
		WHERE ($1 = '' OR channel_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, channelID, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := []model.FetchLog{}
	for rows.Next() {
		var l model.FetchLog
		if err := rows.Scan(
			&l.ID, &l.RunID, &l.ChannelID, &l.VideosFound, &l.NewVideos, &l.ErrorCount,
			&l.Error, &l.QuotaRemaining, &l.CreatedAt,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// GetQuota returns the tracked quota of an API.
func (r *LogRepo) GetQuota(ctx context.Context, api string) (*model.QuotaUsage, error) {
	var q model.QuotaUsage
	err := r.db.QueryRow(ctx, `
		SELECT api_name, quota_remaining, quota_reset_at, updated_at
		FROM api_quota_tracking
		WHERE api_name = $1`, api).Scan(&q.APIName, &q.QuotaRemaining, &q.QuotaResetAt, &q.UpdatedAt)
	if err != nil {
		return nil, translate(err, "Quota not tracked")
	}
	return &q, nil
}

// RecordQuotaUsage subtracts used units from the remaining quota and returns
// the new remaining value. Once the stored reset time has passed the
// allowance starts again from daily.
func (r *LogRepo) RecordQuotaUsage(ctx context.Context, api string, daily, used int64, resetAt time.Time) (int64, error) {
	var remaining int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO api_quota_tracking (api_name, quota_remaining, quota_reset_at, updated_at)
		VALUES ($1, GREATEST($2::bigint - $3::bigint, 0), $4, NOW())
		ON CONFLICT (api_name) DO UPDATE
		SET quota_remaining = CASE
		        WHEN api_quota_tracking.quota_reset_at <= NOW() THEN GREATEST($2::bigint - $3::bigint, 0)
		        ELSE GREATEST(api_quota_tracking.quota_remaining - $3::bigint, 0)
		    END,
		    quota_reset_at = CASE
		        WHEN api_quota_tracking.quota_reset_at <= NOW() THEN $4
		        ELSE api_quota_tracking.quota_reset_at
		    END,
		    updated_at = NOW()
		RETURNING quota_remaining`, api, daily, used, resetAt).Scan(&remaining)
	return remaining, err
}

// MarkQuotaExhausted records that the API refused further calls until resetAt.
func (r *LogRepo) MarkQuotaExhausted(ctx context.Context, api string, resetAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO api_quota_tracking (api_name, quota_remaining, quota_reset_at, updated_at)
		VALUES ($1, 0, $2, NOW())
		ON CONFLICT (api_name) DO UPDATE
		SET quota_remaining = 0, quota_reset_at = $2, updated_at = NOW()`, api, resetAt)
	return err
}
