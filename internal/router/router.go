package router

import (
	"github.com/gofiber/fiber/v3"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"

	"github.com/YidKik/yidvid-sub003/internal/handler"
	"github.com/YidKik/yidvid-sub003/internal/metrics"
	"github.com/YidKik/yidvid-sub003/internal/middleware"
)

// Handlers holds all handler instances needed by the router.
type Handlers struct {
	Video   *handler.VideoHandler
	Channel *handler.ChannelHandler
	Search  *handler.SearchHandler
	User    *handler.UserHandler
	Content *handler.ContentHandler
	Auth    *handler.AuthHandler
	Admin   *handler.AdminHandler
	Health  *handler.HealthHandler
}

// Config returns the fiber configuration every binary serving the API uses.
func Config(appName string) fiber.Config {
	return fiber.Config{
		AppName:      appName,
		ErrorHandler: middleware.ErrorHandler,
		BodyLimit:    64 * 1024,
	}
}

// Options tunes the cross-cutting middleware.
type Options struct {
	CORSOrigins string
	// RateCounter backs the per-route limits. Nil counts per process.
	RateCounter middleware.Counter
}

// Setup configures the middleware stack and all API routes on the given Fiber app.
func Setup(app *fiber.App, h *Handlers, auth *middleware.Auth, opts Options) {
	// Middleware stack (order matters)
	app.Use(recoverer.New())
	app.Use(middleware.NewRequestLogger())
	app.Use(middleware.NewCORS(opts.CORSOrigins))
	app.Use(metrics.Middleware())

	// Ops endpoints sit outside the API group and its limits.
	app.Get("/health/live", h.Health.Live)
	app.Get("/health/ready", h.Health.Ready)
	app.Get("/metrics", metrics.Handler())

	limits := middleware.NewLimits(opts.RateCounter)
	read := limits.Read.Handler()
	search := limits.Search.Handler()
	comments := limits.Comment.Handler()
	reports := limits.Report.Handler()
	securityEvents := limits.SecurityEvent.Handler()
	ingest := limits.Ingest.Handler()

	// Every API request may carry a session; routes below narrow it.
	api := app.Group("/api", auth.Optional())

	// Video routes
	api.Get("/videos", read, h.Video.List)
	api.Get("/videos/:videoId", read, h.Video.Get)
	api.Post("/videos/:videoId/view", read, h.Video.RecordView)
	api.Get("/videos/:videoId/comments", read, h.Video.Comments)
	api.Post("/videos/:videoId/comments", auth.Required(), comments, h.Video.AddComment)
	api.Delete("/comments/:id", auth.Required(), h.Video.DeleteComment)

	// Channel routes
	api.Get("/channels", read, h.Channel.List)
	api.Get("/channels/:channelId", read, h.Channel.Get)

	// Search
	api.Get("/search", search, h.Search.Search)

	// Feedback routes
	api.Get("/testimonials", read, h.Content.Testimonials)
	api.Post("/testimonials", auth.Required(), comments, h.Content.SubmitTestimonial)
	api.Post("/reports", reports, h.Content.SubmitReport)
	api.Post("/security-events", securityEvents, h.Content.LogSecurityEvent)

	// Session routes
	api.Get("/auth/session", h.Auth.Session)
	api.Post("/auth/signout", auth.Required(), h.Auth.SignOut)

	// Signed-in user routes
	me := api.Group("/me", auth.Required(), read)
	me.Get("/", h.User.Me)
	me.Get("/subscriptions", h.User.Subscriptions)
	me.Post("/subscriptions/:channelId", h.User.Subscribe)
	me.Delete("/subscriptions/:channelId", h.User.Unsubscribe)
	me.Get("/hidden-channels", h.User.HiddenChannels)
	me.Post("/hidden-channels/:channelId", h.User.Hide)
	me.Delete("/hidden-channels/:channelId", h.User.Unhide)
	me.Get("/notifications", h.User.Notifications)
	me.Post("/notifications/read-all", h.User.MarkAllRead)
	me.Post("/notifications/:id/read", h.User.MarkRead)

	// Admin routes
	admin := api.Group("/admin", auth.RequireAdmin())
	admin.Post("/channels", h.Admin.AddChannel)
	admin.Delete("/channels/:channelId", h.Admin.DeleteChannel)
	admin.Delete("/videos/:videoId", h.Admin.DeleteVideo)
	admin.Post("/ingest", ingest, h.Admin.Ingest)
	admin.Post("/thumbnails/refresh", ingest, h.Admin.RefreshThumbnails)
	admin.Get("/fetch-logs", h.Admin.FetchLogs)
	admin.Get("/quota", h.Admin.Quota)
	admin.Get("/stats", h.Admin.Stats)
	admin.Get("/reports", h.Admin.Reports)
	admin.Post("/reports/:id/resolve", h.Admin.ResolveReport)
	admin.Get("/testimonials", h.Admin.Testimonials)
	admin.Post("/testimonials/:id/approve", h.Admin.ApproveTestimonial)
	admin.Get("/security-events", h.Admin.SecurityEvents)
	admin.Post("/cache/clear", h.Admin.ClearCache)
}
