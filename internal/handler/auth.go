package handler

import (
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/service"
)

type AuthHandler struct {
	users    UserAccount
	security SecurityLog
}

func NewAuthHandler(users UserAccount, security SecurityLog) *AuthHandler {
	return &AuthHandler{users: users, security: security}
}

// Session handles GET /api/auth/session
// Anonymous callers get authenticated=false, not an error.
func (h *AuthHandler) Session(c fiber.Ctx) error {
	sess, ok := middleware.SessionFrom(c)
	if !ok {
		return middleware.OK(c, model.SessionResponse{})
	}
	return middleware.OK(c, model.SessionResponse{
		Authenticated: true,
		UserID:        sess.UserID,
		Email:         sess.Email,
		IsAdmin:       sess.IsAdmin,
	})
}

// SignOut handles POST /api/auth/signout
// Tokens are not revoked; the client discards its token and the server drops
// every cached entry scoped to the user.
func (h *AuthHandler) SignOut(c fiber.Ctx) error {
	sess := session(c)
	h.users.SignOut(c.Context(), sess.UserID)

	ua := middleware.ValidateUserAgent(c.Get(fiber.HeaderUserAgent))
	if _, err := h.security.Log(c.Context(), sess.UserID, c.IP(), ua, service.EventSignOut, ""); err != nil {
		log.Warn().Err(err).Str("component", "auth").Msg("failed to record sign-out event")
	}
	return middleware.OK(c, fiber.Map{"signedOut": true})
}
