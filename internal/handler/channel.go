package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/middleware"
)

type ChannelHandler struct {
	svc ChannelReader
}

func NewChannelHandler(svc ChannelReader) *ChannelHandler {
	return &ChannelHandler{svc: svc}
}

// List handles GET /api/channels
func (h *ChannelHandler) List(c fiber.Ctx) error {
	channels, err := h.svc.List(c.Context())
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, channels)
}

// Get handles GET /api/channels/:channelId?page=
func (h *ChannelHandler) Get(c fiber.Ctx) error {
	channelID, err := middleware.ValidateChannelID(c.Params("channelId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	detail, err := h.svc.Get(c.Context(), channelID, page)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, detail)
}
