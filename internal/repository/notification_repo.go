package repository

import (
	"context"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

type NotificationRepo struct {
	db DBTX
}

func NewNotificationRepo(db DBTX) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// CreateForSubscribers inserts one notification per (subscriber, video) pair
// and returns how many were created. Existing pairs are skipped.
func (r *NotificationRepo) CreateForSubscribers(ctx context.Context, channelID string, videoIDs []string) (int64, error) {
	if len(videoIDs) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO notifications (user_id, video_id, channel_id)
		SELECT s.user_id, v.video_id, s.channel_id
		FROM user_subscriptions s
		CROSS JOIN UNNEST($2::text[]) AS v(video_id)
		WHERE s.channel_id = $1
		ON CONFLICT (user_id, video_id) DO NOTHING`, channelID, videoIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListForUser returns the newest notifications whose video is still active.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT n.id::text, n.user_id::text, n.video_id, n.channel_id, v.title, v.thumbnail,
		       c.title, n.is_read, n.created_at
		FROM notifications n
		JOIN videos v ON v.video_id = n.video_id
		JOIN channels c ON c.channel_id = n.channel_id
		WHERE n.user_id = $1 AND v.deleted_at IS NULL AND c.deleted_at IS NULL
		ORDER BY n.created_at DESC
		LIMIT $2`, userID, clampLimit(limit, 50, MaxPageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.Notification{}
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(
			&n.ID, &n.UserID, &n.VideoID, &n.ChannelID, &n.VideoTitle, &n.Thumbnail,
			&n.ChannelTitle, &n.IsRead, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// CountUnread counts the unread notifications ListForUser can show.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM notifications n
		JOIN videos v ON v.video_id = n.video_id
		JOIN channels c ON c.channel_id = n.channel_id
		WHERE n.user_id = $1 AND n.is_read = FALSE
		  AND v.deleted_at IS NULL AND c.deleted_at IS NULL`, userID).Scan(&n)
	return n, err
}

// MarkRead marks one of the user's notifications as read.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Notification not found")
	}
	return nil
}

// MarkAllRead marks every unread notification of the user as read.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE WHERE user_id = $1 AND is_read = FALSE`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
