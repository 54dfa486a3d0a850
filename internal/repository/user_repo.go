package repository

import (
	"context"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

type UserRepo struct {
	db DBTX
}

func NewUserRepo(db DBTX) *UserRepo {
	return &UserRepo{db: db}
}

// EnsureProfile returns the profile for userID, creating it on first sight.
// An empty stored email is filled from the token.
func (r *UserRepo) EnsureProfile(ctx context.Context, userID, email string) (*model.Profile, error) {
	query := `
		INSERT INTO profiles (id, email) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE
		SET email = CASE WHEN profiles.email = '' THEN EXCLUDED.email ELSE profiles.email END
		RETURNING id::text, email, display_name, is_admin, created_at`

	var p model.Profile
	err := r.db.QueryRow(ctx, query, userID, email).Scan(
		&p.ID, &p.Email, &p.DisplayName, &p.IsAdmin, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindProfile returns an existing profile.
func (r *UserRepo) FindProfile(ctx context.Context, userID string) (*model.Profile, error) {
	var p model.Profile
	err := r.db.QueryRow(ctx, `
		SELECT id::text, email, display_name, is_admin, created_at
		FROM profiles
		WHERE id = $1`, userID).Scan(&p.ID, &p.Email, &p.DisplayName, &p.IsAdmin, &p.CreatedAt)
	if err != nil {
		return nil, translate(err, "Profile not found")
	}
	return &p, nil
}

// Subscribe adds a subscription. Subscribing twice is a no-op.
func (r *UserRepo) Subscribe(ctx context.Context, userID, channelID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_subscriptions (user_id, channel_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, channelID)
	return translate(err, "Channel not found")
}

// Unsubscribe removes a subscription.
func (r *UserRepo) Unsubscribe(ctx context.Context, userID, channelID string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM user_subscriptions WHERE user_id = $1 AND channel_id = $2`, userID, channelID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Subscription not found")
	}
	return nil
}

// Subscriptions returns the active channels a user subscribes to.
func (r *UserRepo) Subscriptions(ctx context.Context, userID string) ([]model.Channel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+channelColumns+`
		FROM user_subscriptions s
		JOIN channels c ON c.channel_id = s.channel_id
		WHERE s.user_id = $1 AND c.deleted_at IS NULL
		ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectChannels(rows)
}

// SubscriberIDs returns the users subscribed to a channel.
func (r *UserRepo) SubscriberIDs(ctx context.Context, channelID string) ([]string, error) {
	return r.stringColumn(ctx, `
		SELECT user_id::text FROM user_subscriptions WHERE channel_id = $1`, channelID)
}

// Hide adds a channel to the user's hidden list. Hiding twice is a no-op.
func (r *UserRepo) Hide(ctx context.Context, userID, channelID string) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO hidden_channels (user_id, channel_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, userID, channelID)
	return translate(err, "Channel not found")
}

// Unhide removes a channel from the user's hidden list.
func (r *UserRepo) Unhide(ctx context.Context, userID, channelID string) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM hidden_channels WHERE user_id = $1 AND channel_id = $2`, userID, channelID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Hidden channel not found")
	}
	return nil
}

// HiddenChannelIDs returns the channel ids a user has hidden.
func (r *UserRepo) HiddenChannelIDs(ctx context.Context, userID string) ([]string, error) {
	return r.stringColumn(ctx, `
		SELECT channel_id FROM hidden_channels WHERE user_id = $1 ORDER BY created_at`, userID)
}

// GetStats returns aggregate counts for the admin dashboard.
func (r *UserRepo) GetStats(ctx context.Context) (*model.StatsResponse, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM videos WHERE deleted_at IS NULL) AS total_videos,
			(SELECT COUNT(*) FROM channels WHERE deleted_at IS NULL) AS total_channels,
			(SELECT COUNT(*) FROM profiles) AS total_users,
			(SELECT COUNT(*) FROM video_comments WHERE deleted_at IS NULL) AS total_comments,
			(SELECT COUNT(*) FROM video_reports WHERE status = 'open') AS open_reports,
			(SELECT COUNT(*) FROM videos
			 WHERE deleted_at IS NULL AND created_at > NOW() - INTERVAL '24 hours') AS videos_last_24h`

	var stats model.StatsResponse
	err := r.db.QueryRow(ctx, query).Scan(
		&stats.TotalVideos, &stats.TotalChannels, &stats.TotalUsers,
		&stats.TotalComments, &stats.OpenReports, &stats.VideosLast24h,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *UserRepo) stringColumn(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
