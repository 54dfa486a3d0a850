package middleware

import (
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
)

// ParseOrigins splits a comma-separated CORS_ORIGINS value. Entries that are
// not bare scheme://host[:port] origins are dropped. An empty or "*" value
// yields nil, meaning any origin.
func ParseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || o == "*" {
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") || u.Path != "" {
			Logger.Warn().Str("origin", o).Msg("cors: ignoring malformed origin")
			continue
		}
		origins = append(origins, u.Scheme+"://"+u.Host)
	}
	return origins
}

// NewCORS returns the CORS middleware for the web client. Credentials are
// only allowed when the origins are listed explicitly.
func NewCORS(corsOrigins string) fiber.Handler {
	cfg := cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodDelete, fiber.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", HeaderRequestID},
		ExposeHeaders: []string{
			"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset",
			fiber.HeaderRetryAfter, HeaderRequestID,
		},
		MaxAge: 86400,
	}
	if origins := ParseOrigins(corsOrigins); len(origins) > 0 {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
