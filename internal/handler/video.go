package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
)

type VideoHandler struct {
	videos   VideoReader
	comments Commenter
}

func NewVideoHandler(videos VideoReader, comments Commenter) *VideoHandler {
	return &VideoHandler{videos: videos, comments: comments}
}

// List handles GET /api/videos?channelId=&category=&sort=&page=&limit=
func (h *VideoHandler) List(c fiber.Ctx) error {
	page, err := queryInt(c, "page", 1)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		return middleware.WriteError(c, err)
	}

	filter := repository.VideoFilter{
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
		Page:     page,
		Limit:    limit,
	}
	if raw := c.Query("channelId"); raw != "" {
		if filter.ChannelID, err = middleware.ValidateChannelID(raw); err != nil {
			return middleware.WriteError(c, err)
		}
	}

	result, err := h.videos.List(c.Context(), middleware.UserID(c), filter)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, result)
}

// Get handles GET /api/videos/:videoId
func (h *VideoHandler) Get(c fiber.Ctx) error {
	videoID, err := middleware.ValidateVideoID(c.Params("videoId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}

	detail, err := h.videos.Get(c.Context(), videoID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, detail)
}

// RecordView handles POST /api/videos/:videoId/view
func (h *VideoHandler) RecordView(c fiber.Ctx) error {
	videoID, err := middleware.ValidateVideoID(c.Params("videoId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.videos.RecordView(c.Context(), videoID); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"videoId": videoID})
}

// Comments handles GET /api/videos/:videoId/comments
func (h *VideoHandler) Comments(c fiber.Ctx) error {
	videoID, err := middleware.ValidateVideoID(c.Params("videoId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}

	comments, err := h.comments.List(c.Context(), videoID)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, comments)
}

// AddComment handles POST /api/videos/:videoId/comments
func (h *VideoHandler) AddComment(c fiber.Ctx) error {
	videoID, err := middleware.ValidateVideoID(c.Params("videoId"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	var req model.CommentRequest
	if err := middleware.BindJSON(c, &req); err != nil {
		return middleware.WriteError(c, err)
	}

	comment, err := h.comments.Add(c.Context(), session(c).UserID, videoID, req.Content)
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.Created(c, comment)
}

// DeleteComment handles DELETE /api/comments/:id
func (h *VideoHandler) DeleteComment(c fiber.Ctx) error {
	id, err := middleware.ValidateID("comment id", c.Params("id"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	if err := h.comments.Delete(c.Context(), session(c), id); err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, fiber.Map{"deleted": id})
}
