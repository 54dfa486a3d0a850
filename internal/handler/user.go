package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/middleware"
)

// UserHandler serves the signed-in user's own resources under /api/me.
type UserHandler struct {
	svc UserAccount
}

func NewUserHandler(svc UserAccount) *UserHandler {
	return &UserHandler{svc: svc}
}

// Me handles GET /api/me
func (h *UserHandler) Me(c fiber.Ctx) error {
	sess := session(c)
	profile, err := h.svc.EnsureProfile(c.Context(), sess.UserID, sess.Email)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, profile)
}

// Subscriptions handles GET /api/me/subscriptions
func (h *UserHandler) Subscriptions(c fiber.Ctx) error {
	channels, err := h.svc.Subscriptions(c.Context(), session(c).UserID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, channels)
}

// Subscribe handles POST /api/me/subscriptions/:channelId
func (h *UserHandler) Subscribe(c fiber.Ctx) error {
	channelID, err := middleware.ValidateChannelID(c.Params("channelId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.svc.Subscribe(c.Context(), session(c).UserID, channelID); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"channelId": channelID, "subscribed": true})
}

// Unsubscribe handles DELETE /api/me/subscriptions/:channelId
func (h *UserHandler) Unsubscribe(c fiber.Ctx) error {
	channelID, err := middleware.ValidateChannelID(c.Params("channelId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.svc.Unsubscribe(c.Context(), session(c).UserID, channelID); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"channelId": channelID, "subscribed": false})
}

// HiddenChannels handles GET /api/me/hidden-channels
func (h *UserHandler) HiddenChannels(c fiber.Ctx) error {
	ids, err := h.svc.HiddenChannels(c.Context(), session(c).UserID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, ids)
}

// Hide handles POST /api/me/hidden-channels/:channelId
func (h *UserHandler) Hide(c fiber.Ctx) error {
	channelID, err := middleware.ValidateChannelID(c.Params("channelId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.svc.Hide(c.Context(), session(c).UserID, channelID); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"channelId": channelID, "hidden": true})
}

// Unhide handles DELETE /api/me/hidden-channels/:channelId
func (h *UserHandler) Unhide(c fiber.Ctx) error {
	channelID, err := middleware.ValidateChannelID(c.Params("channelId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.svc.Unhide(c.Context(), session(c).UserID, channelID); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"channelId": channelID, "hidden": false})
}

// Notifications handles GET /api/me/notifications
func (h *UserHandler) Notifications(c fiber.Ctx) error {
	list, err := h.svc.Notifications(c.Context(), session(c).UserID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, list)
}

// MarkRead handles POST /api/me/notifications/:id/read
func (h *UserHandler) MarkRead(c fiber.Ctx) error {
	id, err := middleware.ValidateID("notification id", c.Params("id"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.svc.MarkRead(c.Context(), session(c).UserID, id); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"id": id, "isRead": true})
}

// MarkAllRead handles POST /api/me/notifications/read-all
func (h *UserHandler) MarkAllRead(c fiber.Ctx) error {
	n, err := h.svc.MarkAllRead(c.Context(), session(c).UserID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"updated": n})
}
