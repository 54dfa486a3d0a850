package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/auth"
	"github.com/YidKik/yidvid-sub003/internal/model"
)

const sessionLocal = "session"

// ProfileLoader returns the caller's profile, creating it on first sight.
type ProfileLoader interface {
	EnsureProfile(ctx context.Context, userID, email string) (*model.Profile, error)
}

// Auth resolves bearer tokens into sessions. Admin status always comes from
// the stored profile, never from the token or the client.
type Auth struct {
	verifier *auth.Verifier
	profiles ProfileLoader
}

func NewAuth(verifier *auth.Verifier, profiles ProfileLoader) *Auth {
	return &Auth{verifier: verifier, profiles: profiles}
}

// Optional attaches a session when a valid token is sent. Missing or
// invalid tokens leave the request anonymous.
func (a *Auth) Optional() fiber.Handler {
	return func(c fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return c.Next()
		}
		sess, err := a.resolve(c, token)
		if err != nil {
			if apperr.Is(err, apperr.KindUnauthorized) {
				Logger.Debug().Err(err).Msg("ignoring invalid session token")
				return c.Next()
			}
			return WriteError(c, err)
		}
		c.Locals(sessionLocal, sess)
		return c.Next()
	}
}

// Required rejects requests without a valid session.
func (a *Auth) Required() fiber.Handler {
	return func(c fiber.Ctx) error {
		if _, err := a.require(c); err != nil {
			return WriteError(c, err)
		}
		return c.Next()
	}
}

// RequireAdmin rejects requests whose session is not an admin profile.
func (a *Auth) RequireAdmin() fiber.Handler {
	return func(c fiber.Ctx) error {
		sess, err := a.require(c)
		if err != nil {
			return WriteError(c, err)
		}
		if !sess.IsAdmin {
			return WriteError(c, apperr.Forbidden("Admin access required"))
		}
		return c.Next()
	}
}

func (a *Auth) require(c fiber.Ctx) (*auth.Session, error) {
	if sess, ok := SessionFrom(c); ok {
		return sess, nil
	}
	token := bearerToken(c)
	if token == "" {
		return nil, apperr.Unauthorized("Sign in required")
	}
	sess, err := a.resolve(c, token)
	if err != nil {
		return nil, err
	}
	c.Locals(sessionLocal, sess)
	return sess, nil
}

func (a *Auth) resolve(c fiber.Ctx, token string) (*auth.Session, error) {
	claims, err := a.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	profile, err := a.profiles.EnsureProfile(c.Context(), claims.Subject, claims.Email)
	if err != nil {
		return nil, err
	}
	return &auth.Session{UserID: claims.Subject, Email: claims.Email, IsAdmin: profile.IsAdmin}, nil
}

// SessionFrom returns the session attached by Optional, Required or RequireAdmin.
func SessionFrom(c fiber.Ctx) (*auth.Session, bool) {
	sess, ok := c.Locals(sessionLocal).(*auth.Session)
	return sess, ok && sess != nil
}

// UserID returns the session user id, or "" for anonymous requests.
func UserID(c fiber.Ctx) string {
	if sess, ok := SessionFrom(c); ok {
		return sess.UserID
	}
	return ""
}

func bearerToken(c fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}
