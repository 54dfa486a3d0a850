package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

// Sort orders accepted by VideoFilter.
const (
	SortNewest  = "newest"
	SortPopular = "popular"
)

const (
	DefaultPageSize = 24
	MaxPageSize     = 100
)

const videoColumns = `v.id::text, v.video_id, v.title, v.description, v.thumbnail, v.channel_id,
		       v.channel_name, v.views, v.category, v.uploaded_at, v.created_at, v.updated_at`

// activeVideos joins channels so a soft-deleted channel hides its videos too.
const activeVideos = `FROM videos v
		JOIN channels c ON c.channel_id = v.channel_id
		WHERE v.deleted_at IS NULL AND c.deleted_at IS NULL`

// VideoFilter selects a page of active videos.
type VideoFilter struct {
	ChannelID string
	Category  string
	Sort      string
	Page      int
	Limit     int
	// Exclude lists channel IDs the caller has hidden.
	Exclude []string
}

// Normalize fills defaults and clamps paging.
func (f VideoFilter) Normalize() VideoFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	f.Limit = clampLimit(f.Limit, DefaultPageSize, MaxPageSize)
	if f.Sort != SortPopular {
		f.Sort = SortNewest
	}
	return f
}

type VideoRepo struct {
	db DBTX
}

func NewVideoRepo(db DBTX) *VideoRepo {
	return &VideoRepo{db: db}
}

// List returns one page of active videos and the total matching count.
func (r *VideoRepo) List(ctx context.Context, f VideoFilter) ([]model.Video, int64, error) {
	f = f.Normalize()

	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.ChannelID != "" {
		add("v.channel_id = $%d", f.ChannelID)
	}
	if f.Category != "" {
		add("v.category = $%d", f.Category)
	}
	if len(f.Exclude) > 0 {
		add("v.channel_id <> ALL($%d)", f.Exclude)
	}

	where := activeVideos
	if len(conds) > 0 {
		where += " AND " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "v.uploaded_at DESC"
	if f.Sort == SortPopular {
		order = "v.views DESC, v.uploaded_at DESC"
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)
	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT $%d OFFSET $%d",
		videoColumns, where, order, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	videos, err := collectVideos(rows)
	if err != nil {
		return nil, 0, err
	}
	return videos, total, nil
}

// FindByVideoID returns a single active video by its external ID.
func (r *VideoRepo) FindByVideoID(ctx context.Context, videoID string) (*model.Video, error) {
	query := "SELECT " + videoColumns + " " + activeVideos + " AND v.video_id = $1"

	var v model.Video
	if err := scanVideo(r.db.QueryRow(ctx, query, videoID), &v); err != nil {
		return nil, translate(err, "Video not found")
	}
	return &v, nil
}

// Related returns the newest active videos of a channel, excluding one video.
func (r *VideoRepo) Related(ctx context.Context, channelID, excludeVideoID string, limit int) ([]model.Video, error) {
	query := "SELECT " + videoColumns + " " + activeVideos + `
		  AND v.channel_id = $1 AND v.video_id <> $2
		ORDER BY v.uploaded_at DESC
		LIMIT $3`

	rows, err := r.db.Query(ctx, query, channelID, excludeVideoID, clampLimit(limit, 12, MaxPageSize))
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// ExistingIDs returns which of ids are already stored for the channel.
// Soft-deleted rows count as existing so a removed video is not re-ingested.
func (r *VideoRepo) ExistingIDs(ctx context.Context, channelID string, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT video_id
		FROM videos
		WHERE channel_id = $1 AND video_id = ANY($2)`, channelID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		existing[id] = struct{}{}
	}
	return existing, rows.Err()
}

// Insert stores a new video. It reports false when the video_id already exists.
func (r *VideoRepo) Insert(ctx context.Context, v *model.Video) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO videos (video_id, title, description, thumbnail, channel_id, channel_name,
		                    views, category, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (video_id) DO NOTHING`,
		v.VideoID, v.Title, v.Description, v.Thumbnail, v.ChannelID, v.ChannelName,
		v.Views, v.Category, v.UploadedAt)
	if err != nil {
		return false, translate(err, "Video not found")
	}
	return tag.RowsAffected() == 1, nil
}

// SoftDelete marks an active video as deleted.
func (r *VideoRepo) SoftDelete(ctx context.Context, videoID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE videos
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE video_id = $1 AND deleted_at IS NULL`, videoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Video not found")
	}
	return nil
}

// SoftDeleteByChannel marks every active video of a channel as deleted and
// returns how many rows changed.
func (r *VideoRepo) SoftDeleteByChannel(ctx context.Context, channelID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE videos
		SET deleted_at = NOW(), updated_at = NOW()
		WHERE channel_id = $1 AND deleted_at IS NULL`, channelID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// RestoreByChannel undeletes the channel's videos deleted at exactly
// deletedAt and returns how many rows changed.
func (r *VideoRepo) RestoreByChannel(ctx context.Context, channelID string, deletedAt time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE videos
		SET deleted_at = NULL, updated_at = NOW()
		WHERE channel_id = $1 AND deleted_at = $2`, channelID, deletedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CountActive returns the number of active videos, and how many of them were
// uploaded after since.
func (r *VideoRepo) CountActive(ctx context.Context, since time.Time) (total, recent int64, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE v.uploaded_at > $1) `+activeVideos, since).Scan(&total, &recent)
	return total, recent, err
}

// IncrementViews bumps the local view counter of an active video.
func (r *VideoRepo) IncrementViews(ctx context.Context, videoID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE videos
		SET views = views + 1
		WHERE video_id = $1 AND deleted_at IS NULL`, videoID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Video not found")
	}
	return nil
}

// MissingThumbnails returns IDs of active videos without a usable thumbnail.
func (r *VideoRepo) MissingThumbnails(ctx context.Context, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT video_id
		FROM videos
		WHERE deleted_at IS NULL
		  AND (thumbnail = '' OR thumbnail LIKE '%/default.jpg')
		ORDER BY uploaded_at DESC
		LIMIT $1`, clampLimit(limit, 50, 500))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateThumbnail refreshes the thumbnail and view count of a video.
func (r *VideoRepo) UpdateThumbnail(ctx context.Context, videoID, thumbnail string, views int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE videos
		SET thumbnail = $2, views = GREATEST(views, $3), updated_at = NOW()
		WHERE video_id = $1`, videoID, thumbnail, views)
	return err
}

// Search matches active videos by title or description, case-insensitively.
func (r *VideoRepo) Search(ctx context.Context, term string, limit int) ([]model.Video, error) {
	query := "SELECT " + videoColumns + " " + activeVideos + `
		  AND (v.title ILIKE $1 OR v.description ILIKE $1)
		ORDER BY v.views DESC, v.uploaded_at DESC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, LikePattern(term), clampLimit(limit, 20, MaxPageSize))
	if err != nil {
		return nil, err
	}
	return collectVideos(rows)
}

// LikePattern escapes LIKE metacharacters and wraps term in wildcards.
func LikePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(term) + "%"
}

func scanVideo(row pgx.Row, v *model.Video) error {
	return row.Scan(
		&v.ID, &v.VideoID, &v.Title, &v.Description, &v.Thumbnail, &v.ChannelID,
		&v.ChannelName, &v.Views, &v.Category, &v.UploadedAt, &v.CreatedAt, &v.UpdatedAt,
	)
}

func collectVideos(rows pgx.Rows) ([]model.Video, error) {
	defer rows.Close()

	videos := []model.Video{}
	for rows.Next() {
		var v model.Video
		if err := scanVideo(rows, &v); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}
	return videos, rows.Err()
}
