package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

const channelColumns = `c.id::text, c.channel_id, c.title, c.thumbnail_url, c.description,
		       c.default_category, c.last_fetch, c.created_at, c.updated_at`

type ChannelRepo struct {
	db DBTX
}

func NewChannelRepo(db DBTX) *ChannelRepo {
	return &ChannelRepo{db: db}
}

// List returns all active channels ordered by title.
func (r *ChannelRepo) List(ctx context.Context) ([]model.Channel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.deleted_at IS NULL
		ORDER BY c.title`)
	if err != nil {
		return nil, err
	}
	return collectChannels(rows)
}

// FindByChannelID returns a single active channel.
func (r *ChannelRepo) FindByChannelID(ctx context.Context, channelID string) (*model.Channel, error) {
	var ch model.Channel
	err := scanChannel(r.db.QueryRow(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.channel_id = $1 AND c.deleted_at IS NULL`, channelID), &ch)
	if err != nil {
		return nil, translate(err, "Channel not found")
	}
	return &ch, nil
}

// FindByChannelIDs returns the active channels among ids. Unknown ids are ignored.
func (r *ChannelRepo) FindByChannelIDs(ctx context.Context, ids []string) ([]model.Channel, error) {
	if len(ids) == 0 {
		return []model.Channel{}, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.channel_id = ANY($1) AND c.deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	return collectChannels(rows)
}

// Exists reports whether an active channel with this id is tracked.
func (r *ChannelRepo) Exists(ctx context.Context, channelID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM channels WHERE channel_id = $1 AND deleted_at IS NULL)`,
		channelID).Scan(&exists)
	return exists, err
}

// Insert starts tracking a channel. A previously soft-deleted channel with the
// same id is restored with the new metadata, together with the videos its
// deletion hid. Videos removed individually before that stay deleted.
func (r *ChannelRepo) Insert(ctx context.Context, ch *model.Channel) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var deletedAt *time.Time
	err = tx.QueryRow(ctx, `
		SELECT deleted_at FROM channels WHERE channel_id = $1 FOR UPDATE`, ch.ChannelID).Scan(&deletedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO channels (channel_id, title, thumbnail_url, description, default_category)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (channel_id) DO UPDATE
		SET title = EXCLUDED.title,
		    thumbnail_url = EXCLUDED.thumbnail_url,
		    description = EXCLUDED.description,
		    default_category = EXCLUDED.default_category,
		    deleted_at = NULL,
		    updated_at = NOW()
		RETURNING id::text, created_at, updated_at`,
		ch.ChannelID, ch.Title, ch.ThumbnailURL, ch.Description, ch.DefaultCategory,
	).Scan(&ch.ID, &ch.CreatedAt, &ch.UpdatedAt)
	if err != nil {
		return translate(err, "Channel not found")
	}

	if deletedAt != nil {
		// SoftDelete stamps the channel and its videos with one transaction time.
		if _, err := NewVideoRepo(tx).RestoreByChannel(ctx, ch.ChannelID, *deletedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// SoftDelete marks a channel and all of its videos deleted in one transaction.
// It returns the number of videos hidden.
func (r *ChannelRepo) SoftDelete(ctx context.Context, channelID string) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE channels
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE channel_id = $1 AND deleted_at IS NULL`, channelID)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, apperr.NotFound("Channel not found")
	}
	hidden, err := NewVideoRepo(tx).SoftDeleteByChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	return hidden, tx.Commit(ctx)
}

// TouchLastFetch records a completed fetch for the channel.
func (r *ChannelRepo) TouchLastFetch(ctx context.Context, channelID string, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE channels
		SET last_fetch = $2, updated_at = NOW()
		WHERE channel_id = $1`, channelID, at)
	return err
}

// DueForFetch returns active channels not fetched since before, oldest first.
// Channels never fetched come first.
func (r *ChannelRepo) DueForFetch(ctx context.Context, before time.Time, limit int) ([]model.Channel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.deleted_at IS NULL
		  AND (c.last_fetch IS NULL OR c.last_fetch < $1)
		ORDER BY c.last_fetch ASC NULLS FIRST
		LIMIT $2`, before, clampLimit(limit, 50, 1000))
	if err != nil {
		return nil, err
	}
	return collectChannels(rows)
}

// Search matches active channels by title, case-insensitively.
func (r *ChannelRepo) Search(ctx context.Context, term string, limit int) ([]model.Channel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+channelColumns+`
		FROM channels c
		WHERE c.deleted_at IS NULL AND c.title ILIKE $1
		ORDER BY c.title
		LIMIT $2`, LikePattern(term), clampLimit(limit, 10, MaxPageSize))
	if err != nil {
		return nil, err
	}
	return collectChannels(rows)
}

// Count returns the number of active channels.
func (r *ChannelRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM channels WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

func scanChannel(row pgx.Row, ch *model.Channel) error {
	return row.Scan(
		&ch.ID, &ch.ChannelID, &ch.Title, &ch.ThumbnailURL, &ch.Description,
		&ch.DefaultCategory, &ch.LastFetch, &ch.CreatedAt, &ch.UpdatedAt,
	)
}

func collectChannels(rows pgx.Rows) ([]model.Channel, error) {
	defer rows.Close()

	channels := []model.Channel{}
	for rows.Next() {
		var ch model.Channel
		if err := scanChannel(rows, &ch); err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, rows.Err()
}
