package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

// ContentHandler serves the public feedback endpoints: reports,
// testimonials and client-side security events.
type ContentHandler struct {
	reports      Reporter
	testimonials Testimonials
	security     SecurityLog
}

func NewContentHandler(reports Reporter, testimonials Testimonials, security SecurityLog) *ContentHandler {
	return &ContentHandler{reports: reports, testimonials: testimonials, security: security}
}

// SubmitReport handles POST /api/reports
func (h *ContentHandler) SubmitReport(c fiber.Ctx) error {
	var req model.ReportRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return middleware.WriteError(c, err)
	}
	videoID, err := middleware.ValidateVideoID(req.VideoID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	req.VideoID = videoID

	report, err := h.reports.Submit(c.Context(), middleware.UserID(c), h.security.HashIP(c.IP()), req)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.Created(c, report)
}

// Testimonials handles GET /api/testimonials
func (h *ContentHandler) Testimonials(c fiber.Ctx) error {
	list, err := h.testimonials.Approved(c.Context())
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, list)
}

// SubmitTestimonial handles POST /api/testimonials
// New testimonials stay hidden until an admin approves them.
func (h *ContentHandler) SubmitTestimonial(c fiber.Ctx) error {
	var req model.TestimonialRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return middleware.WriteError(c, err)
	}

	t, err := h.testimonials.Submit(c.Context(), session(c).UserID, req)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.Created(c, t)
}

// LogSecurityEvent handles POST /api/security-events
func (h *ContentHandler) LogSecurityEvent(c fiber.Ctx) error {
	var req model.SecurityEventRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return middleware.WriteError(c, err)
	}

	ua := middleware.ValidateUserAgent(c.Get(fiber.HeaderUserAgent))
	ev, err := h.security.Log(c.Context(), middleware.UserID(c), c.IP(), ua, req.EventType, req.Detail)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.Created(c, ev)
}
