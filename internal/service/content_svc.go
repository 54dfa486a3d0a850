package service

import (
	"context"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/auth"
	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

const (
	maxCommentLen     = 2000
	maxReportLen      = 2000
	maxTestimonialLen = 1000
	commentPageSize   = 50
)

// Sanitizer strips all markup from user-submitted text.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// Text returns s without tags, with entities decoded and surrounding space
// trimmed. The result is stored as plain text; clients escape it on render.
func (s *Sanitizer) Text(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}

// clean sanitizes a field and enforces its length bounds.
func (s *Sanitizer) clean(field, in string, maxLen int) (string, error) {
	out := s.Text(in)
	if out == "" {
		return "", apperr.Invalid(field + " is required")
	}
	if utf8.RuneCountInString(out) > maxLen {
		return "", apperr.Invalid(field + " is too long")
	}
	return out, nil
}

type CommentService struct {
	comments CommentStore
	sanitize *Sanitizer
	cache    *cache.QueryCache
}

func NewCommentService(comments CommentStore, sanitizer *Sanitizer, qc *cache.QueryCache) *CommentService {
	return &CommentService{comments: comments, sanitize: sanitizer, cache: qc}
}

func (s *CommentService) List(ctx context.Context, videoID string) ([]model.Comment, error) {
	return cache.Fetch(ctx, s.cache, cache.CommentsKey(videoID), cache.VideoDetail,
		func(ctx context.Context) ([]model.Comment, error) {
			return s.comments.ListByVideo(ctx, videoID, commentPageSize)
		})
}

// Add posts a comment as userID.
func (s *CommentService) Add(ctx context.Context, userID, videoID, content string) (*model.Comment, error) {
	text, err := s.sanitize.clean("content", content, maxCommentLen)
	if err != nil {
		return nil, err
	}
	c := &model.Comment{VideoID: videoID, UserID: userID, Content: text}
	if err := s.comments.Insert(ctx, c); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, cache.CommentsKey(videoID))
	return c, nil
}

// Delete removes a comment. Only its author or an admin may delete it.
func (s *CommentService) Delete(ctx context.Context, sess *auth.Session, id string) error {
	c, err := s.comments.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if c.UserID != sess.UserID && !sess.IsAdmin {
		return apperr.Forbidden("You can only delete your own comments")
	}
	if err := s.comments.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, cache.CommentsKey(c.VideoID))
	return nil
}

type ReportService struct {
	reports  ReportStore
	sanitize *Sanitizer
	cache    *cache.QueryCache
}

func NewReportService(reports ReportStore, sanitizer *Sanitizer, qc *cache.QueryCache) *ReportService {
	return &ReportService{reports: reports, sanitize: sanitizer, cache: qc}
}

// Submit files a report. userID is empty for anonymous reports.
func (s *ReportService) Submit(ctx context.Context, userID, ipHash string, req model.ReportRequest) (*model.Report, error) {
	msg, err := s.sanitize.clean("message", req.Message, maxReportLen)
	if err != nil {
		return nil, err
	}
	rep := &model.Report{
		VideoID: req.VideoID,
		Email:   strings.TrimSpace(req.Email),
		Message: msg,
		IPHash:  ipHash,
	}
	if userID != "" {
		rep.UserID = &userID
	}
	if err := s.reports.Insert(ctx, rep); err != nil {
		return nil, err
	}
	s.cache.InvalidatePrefix(ctx, cache.EntityReports, cache.EntityStats)
	return rep, nil
}

// List returns reports by status for moderation. Empty status means all.
func (s *ReportService) List(ctx context.Context, status string, limit int) ([]model.Report, error) {
	switch status {
	case "", model.ReportOpen, model.ReportResolved:
	default:
		return nil, apperr.Invalid("status must be open or resolved")
	}
	key := cache.NewKey(cache.EntityReports, "status", status)
	return cache.Fetch(ctx, s.cache, key, cache.VideoList, func(ctx context.Context) ([]model.Report, error) {
		return s.reports.List(ctx, status, limit)
	})
}

func (s *ReportService) Resolve(ctx context.Context, id string) error {
	if err := s.reports.Resolve(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidatePrefix(ctx, cache.EntityReports, cache.EntityStats)
	return nil
}

type TestimonialService struct {
	testimonials TestimonialStore
	sanitize     *Sanitizer
	cache        *cache.QueryCache
}

func NewTestimonialService(testimonials TestimonialStore, sanitizer *Sanitizer, qc *cache.QueryCache) *TestimonialService {
	return &TestimonialService{testimonials: testimonials, sanitize: sanitizer, cache: qc}
}

// Approved returns the published testimonials.
func (s *TestimonialService) Approved(ctx context.Context) ([]model.Testimonial, error) {
	key := cache.NewKey(cache.EntityTestimonials, "approved", "true")
	return cache.Fetch(ctx, s.cache, key, cache.ChannelList, func(ctx context.Context) ([]model.Testimonial, error) {
		return s.testimonials.List(ctx, true, 0)
	})
}

// All returns every testimonial, approved or not, for moderation.
func (s *TestimonialService) All(ctx context.Context, limit int) ([]model.Testimonial, error) {
	return s.testimonials.List(ctx, false, limit)
}

// Submit stores a testimonial for review. It is hidden until approved.
func (s *TestimonialService) Submit(ctx context.Context, userID string, req model.TestimonialRequest) (*model.Testimonial, error) {
	name, err := s.sanitize.clean("name", req.Name, 80)
	if err != nil {
		return nil, err
	}
	content, err := s.sanitize.clean("content", req.Content, maxTestimonialLen)
	if err != nil {
		return nil, err
	}
	t := &model.Testimonial{UserID: userID, Name: name, Content: content}
	if err := s.testimonials.Insert(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TestimonialService) Approve(ctx context.Context, id string) error {
	if err := s.testimonials.Approve(ctx, id); err != nil {
		return err
	}
	s.cache.InvalidatePrefix(ctx, cache.EntityTestimonials)
	return nil
}
