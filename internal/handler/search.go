package handler

import (
	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/middleware"
)

type SearchHandler struct {
	svc Searcher
}

func NewSearchHandler(svc Searcher) *SearchHandler {
	return &SearchHandler{svc: svc}
}

// Search handles GET /api/search?q=
// A blank query is not an error; it yields empty lists.
func (h *SearchHandler) Search(c fiber.Ctx) error {
	result, err := h.svc.Search(c.Context(), c.Query("q"))
	if err != nil {
		return middleware.WriteError(c, err)
	}
	return middleware.OK(c, result)
}
