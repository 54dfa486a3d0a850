package handler

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

const (
	defaultAdminListLimit = 50
	maxAdminListLimit     = 200
	maxIngestChannels     = 50
)

// AdminHandler serves /api/admin. Every route sits behind RequireAdmin.
type AdminHandler struct {
	admin        Admin
	channels     ChannelReader
	videos       VideoReader
	reports      Reporter
	testimonials Testimonials
	security     SecurityLog
}

func NewAdminHandler(admin Admin, channels ChannelReader, videos VideoReader, reports Reporter, testimonials Testimonials, security SecurityLog) *AdminHandler {
	return &AdminHandler{
		admin:        admin,
		channels:     channels,
		videos:       videos,
		reports:      reports,
		testimonials: testimonials,
		security:     security,
	}
}

// AddChannel handles POST /api/admin/channels
func (h *AdminHandler) AddChannel(c fiber.Ctx) error {
	var req model.AddChannelRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return middleware.WriteError(c, err)
	}
	id, err := middleware.ValidateChannelID(req.ChannelID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	req.ChannelID = id

	result, err := h.channels.Add(c.Context(), req)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.Created(c, result)
}

// DeleteChannel handles DELETE /api/admin/channels/:channelId
// The channel and its videos are soft-deleted.
func (h *AdminHandler) DeleteChannel(c fiber.Ctx) error {
	channelID, err := middleware.ValidateChannelID(c.Params("channelId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}

	videos, err := h.channels.Delete(c.Context(), channelID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"channelId": channelID, "videosDeleted": videos})
}

// DeleteVideo handles DELETE /api/admin/videos/:videoId
func (h *AdminHandler) DeleteVideo(c fiber.Ctx) error {
	videoID, err := middleware.ValidateVideoID(c.Params("videoId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.videos.Delete(c.Context(), videoID); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"videoId": videoID})
}

// Ingest handles POST /api/admin/ingest[?async=true]
// The body is optional; an empty body runs every channel that is due.
func (h *AdminHandler) Ingest(c fiber.Ctx) error {
	var req ingest.Request
	if len(c.Body()) > 0 {
		if err := middleware.BindJSON(c, &req); err != nil {
			return middleware.WriteError(c, err)
		}
	}
	if len(req.ChannelIDs) > maxIngestChannels {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_FIELD",
			"channelIds accepts at most "+strconv.Itoa(maxIngestChannels)+" entries")
	}
	for i, raw := range req.ChannelIDs {
		id, err := middleware.ValidateChannelID(raw)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		req.ChannelIDs[i] = id
	}

	if queryBool(c, "async") {
		run, err := h.admin.EnqueueIngest(req)
		if err != nil {
			return middleware.WriteError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(middleware.Envelope{Success: true, Data: run})
	}

	sum, err := h.admin.RunIngest(c.Context(), req)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if sum.QuotaExceeded && sum.RetryAt != nil {
		secs := int(time.Until(*sum.RetryAt).Seconds())
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(max(secs, 1)))
	}
	return middleware.OK(c, sum)
}

// RefreshThumbnails handles POST /api/admin/thumbnails/refresh?limit=
func (h *AdminHandler) RefreshThumbnails(c fiber.Ctx) error {
	limit, err := listLimit(c)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	result, err := h.admin.RefreshThumbnails(c.Context(), limit)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, result)
}

// FetchLogs handles GET /api/admin/fetch-logs?channelId=&limit=
func (h *AdminHandler) FetchLogs(c fiber.Ctx) error {
	limit, err := listLimit(c)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	var channelID string
	if raw := c.Query("channelId"); raw != "" {
		if channelID, err = middleware.ValidateChannelID(raw); err != nil {
			return middleware.WriteError(c, err)
		}
	}

	logs, err := h.admin.FetchLogs(c.Context(), channelID, limit)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, logs)
}

// Quota handles GET /api/admin/quota
func (h *AdminHandler) Quota(c fiber.Ctx) error {
	q, err := h.admin.Quota(c.Context())
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, q)
}

// Stats handles GET /api/admin/stats
func (h *AdminHandler) Stats(c fiber.Ctx) error {
	stats, err := h.admin.Stats(c.Context())
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, stats)
}

// Reports handles GET /api/admin/reports?status=&limit=
func (h *AdminHandler) Reports(c fiber.Ctx) error {
	limit, err := listLimit(c)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	reports, err := h.reports.List(c.Context(), c.Query("status"), limit)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, reports)
}

// ResolveReport handles POST /api/admin/reports/:id/resolve
func (h *AdminHandler) ResolveReport(c fiber.Ctx) error {
	id, err := middleware.ValidateID("report id", c.Params("id"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.reports.Resolve(c.Context(), id); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"id": id, "status": model.ReportResolved})
}

// Testimonials handles GET /api/admin/testimonials
// Unlike the public list it includes testimonials awaiting approval.
func (h *AdminHandler) Testimonials(c fiber.Ctx) error {
	limit, err := listLimit(c)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	list, err := h.testimonials.All(c.Context(), limit)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, list)
}

// ApproveTestimonial handles POST /api/admin/testimonials/:id/approve
func (h *AdminHandler) ApproveTestimonial(c fiber.Ctx) error {
	id, err := middleware.ValidateID("testimonial id", c.Params("id"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.testimonials.Approve(c.Context(), id); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"id": id, "approved": true})
}

// SecurityEvents handles GET /api/admin/security-events?limit=
func (h *AdminHandler) SecurityEvents(c fiber.Ctx) error {
	limit, err := listLimit(c)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	events, err := h.security.Recent(c.Context(), limit)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, events)
}

// ClearCache handles POST /api/admin/cache/clear
func (h *AdminHandler) ClearCache(c fiber.Ctx) error {
	h.admin.ClearCache(c.Context())
	return middleware.OK(c, fiber.Map{"cleared": true})
}

func listLimit(c fiber.Ctx) (int, error) {
	limit, err := queryInt(c, "limit", defaultAdminListLimit)
	if err != nil {
		return 0, err
	}
	return min(max(limit, 1), maxAdminListLimit), nil
}
