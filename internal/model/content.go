package model

import "time"

// Comment is a user comment on a video.
type Comment struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	UserID    string    `json:"userId"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// CommentRequest is the body for posting a comment.
type CommentRequest struct {
	Content string `json:"content" validate:"required,min=1,max=2000"`
}

// Report statuses.
const (
	ReportOpen     = "open"
	ReportResolved = "resolved"
)

// Report flags a video for admin review.
type Report struct {
	ID        string    `json:"id"`
	VideoID   string    `json:"videoId"`
	UserID    *string   `json:"userId,omitempty"`
	Email     string    `json:"email"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	IPHash    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// ReportRequest is the body for reporting a video.
type ReportRequest struct {
	VideoID string `json:"videoId" validate:"required,max=16,videoid"`
	Email   string `json:"email" validate:"required,email,max=254"`
	Message string `json:"message" validate:"required,min=3,max=2000"`
}

// Testimonial is a user-submitted quote shown on the landing pages once approved.
type Testimonial struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Approved  bool      `json:"approved"`
	CreatedAt time.Time `json:"createdAt"`
}

// TestimonialRequest is the body for submitting a testimonial.
type TestimonialRequest struct {
	Name    string `json:"name" validate:"required,max=80"`
	Content string `json:"content" validate:"required,min=10,max=1000"`
}

// SecurityEvent is an append-only audit record.
type SecurityEvent struct {
	ID        string    `json:"id"`
	UserID    *string   `json:"userId,omitempty"`
	EventType string    `json:"eventType"`
	IPHash    string    `json:"-"`
	UserAgent string    `json:"userAgent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SecurityEventRequest is the body for the public security-event endpoint.
type SecurityEventRequest struct {
	EventType string `json:"eventType" validate:"required,oneof=login_failed login_success password_reset suspicious_activity signout"`
	Detail    string `json:"detail" validate:"max=500"`
}
