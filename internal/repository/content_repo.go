package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

type CommentRepo struct {
	db DBTX
}

func NewCommentRepo(db DBTX) *CommentRepo {
	return &CommentRepo{db: db}
}

// ListByVideo returns the newest active comments on a video.
func (r *CommentRepo) ListByVideo(ctx context.Context, videoID string, limit int) ([]model.Comment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT cm.id::text, cm.video_id, cm.user_id::text, COALESCE(p.display_name, ''),
		       cm.content, cm.created_at
		FROM video_comments cm
		LEFT JOIN profiles p ON p.id = cm.user_id
		WHERE cm.video_id = $1 AND cm.deleted_at IS NULL
		ORDER BY cm.created_at DESC
		LIMIT $2`, videoID, clampLimit(limit, 50, MaxPageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.UserID, &c.Author, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// Insert stores a comment, assigning its id.
func (r *CommentRepo) Insert(ctx context.Context, c *model.Comment) error {
	c.ID = uuid.NewString()
	err := r.db.QueryRow(ctx, `
		INSERT INTO video_comments (id, video_id, user_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`, c.ID, c.VideoID, c.UserID, c.Content).Scan(&c.CreatedAt)
	return translate(err, "Video not found")
}

// FindByID returns an active comment.
func (r *CommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := r.db.QueryRow(ctx, `
		SELECT id::text, video_id, user_id::text, content, created_at
		FROM video_comments
		WHERE id = $1 AND deleted_at IS NULL`, id).Scan(&c.ID, &c.VideoID, &c.UserID, &c.Content, &c.CreatedAt)
	if err != nil {
		return nil, translate(err, "Comment not found")
	}
	return &c, nil
}

// SoftDelete hides a comment.
func (r *CommentRepo) SoftDelete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE video_comments SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Comment not found")
	}
	return nil
}

type ReportRepo struct {
	db DBTX
}

func NewReportRepo(db DBTX) *ReportRepo {
	return &ReportRepo{db: db}
}

// Insert stores an open report, assigning its id.
func (r *ReportRepo) Insert(ctx context.Context, rep *model.Report) error {
	rep.ID = uuid.NewString()
	rep.Status = model.ReportOpen
	err := r.db.QueryRow(ctx, `
		INSERT INTO video_reports (id, video_id, user_id, email, message, status, ip_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		rep.ID, rep.VideoID, rep.UserID, rep.Email, rep.Message, rep.Status, rep.IPHash,
	).Scan(&rep.CreatedAt)
	return translate(err, "Video not found")
}

// List returns reports with the given status, newest first. An empty status
// returns all reports.
func (r *ReportRepo) List(ctx context.Context, status string, limit int) ([]model.Report, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, video_id, user_id::text, email, message, status, created_at
		FROM video_reports
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2`, status, clampLimit(limit, 50, MaxPageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reports := []model.Report{}
	for rows.Next() {
		var rep model.Report
		if err := rows.Scan(
			&rep.ID, &rep.VideoID, &rep.UserID, &rep.Email, &rep.Message, &rep.Status, &rep.CreatedAt,
		); err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, rows.Err()
}

// Resolve closes an open report.
func (r *ReportRepo) Resolve(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE video_reports SET status = $2 WHERE id = $1 AND status = $3`,
		id, model.ReportResolved, model.ReportOpen)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Open report not found")
	}
	return nil
}

type TestimonialRepo struct {
	db DBTX
}

func NewTestimonialRepo(db DBTX) *TestimonialRepo {
	return &TestimonialRepo{db: db}
}

// List returns testimonials, newest first.
func (r *TestimonialRepo) List(ctx context.Context, approvedOnly bool, limit int) ([]model.Testimonial, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, user_id::text, name, content, approved, created_at
		FROM testimonials
		WHERE approved OR NOT $1
		ORDER BY created_at DESC
		LIMIT $2`, approvedOnly, clampLimit(limit, 20, MaxPageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []model.Testimonial{}
	for rows.Next() {
		var t model.Testimonial
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.Content, &t.Approved, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// Insert stores an unapproved testimonial, assigning its id.
func (r *TestimonialRepo) Insert(ctx context.Context, t *model.Testimonial) error {
	t.ID = uuid.NewString()
	t.Approved = false
	err := r.db.QueryRow(ctx, `
		INSERT INTO testimonials (id, user_id, name, content)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`, t.ID, t.UserID, t.Name, t.Content).Scan(&t.CreatedAt)
	return translate(err, "Profile not found")
}

// Approve publishes a testimonial.
func (r *TestimonialRepo) Approve(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE testimonials SET approved = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Testimonial not found")
	}
	return nil
}

type SecurityEventRepo struct {
	db DBTX
}

func NewSecurityEventRepo(db DBTX) *SecurityEventRepo {
	return &SecurityEventRepo{db: db}
}

// Insert appends a security event, assigning its id.
func (r *SecurityEventRepo) Insert(ctx context.Context, ev *model.SecurityEvent) error {
	ev.ID = uuid.NewString()
	return r.db.QueryRow(ctx, `
		INSERT INTO security_events (id, user_id, event_type, ip_hash, user_agent, detail)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		ev.ID, ev.UserID, ev.EventType, ev.IPHash, ev.UserAgent, ev.Detail,
	).Scan(&ev.CreatedAt)
}

// ListRecent returns the newest security events.
func (r *SecurityEventRepo) ListRecent(ctx context.Context, limit int) ([]model.SecurityEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id::text, user_id::text, event_type, user_agent, detail, created_at
		FROM security_events
		ORDER BY created_at DESC
		LIMIT $1`, clampLimit(limit, 50, MaxPageSize))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []model.SecurityEvent{}
	for rows.Next() {
		var ev model.SecurityEvent
		if err := rows.Scan(&ev.ID, &ev.UserID, &ev.EventType, &ev.UserAgent, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
