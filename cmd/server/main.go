package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/YidKik/yidvid-sub003/internal/auth"
	"github.com/YidKik/yidvid-sub003/internal/bootstrap"
	"github.com/YidKik/yidvid-sub003/internal/config"
	"github.com/YidKik/yidvid-sub003/internal/handler"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/realtime"
	"github.com/YidKik/yidvid-sub003/internal/router"
	"github.com/YidKik/yidvid-sub003/internal/service"
	"github.com/YidKik/yidvid-sub003/internal/tasks"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	middleware.InitLogger(cfg.LogLevel, "yidvid-api", !cfg.IsProduction())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer deps.Close()

	var enqueuer tasks.TaskEnqueuer
	opt, queued, err := bootstrap.QueueOpt(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid queue configuration")
	}
	if queued {
		client := asynq.NewClient(opt)
		defer client.Close()
		enqueuer = client
	}

	repos := deps.Repos
	sanitizer := service.NewSanitizer()
	userSvc := service.NewUserService(repos.Users, repos.Notifications, deps.Cache)
	videoSvc := service.NewVideoService(repos.Videos, userSvc, deps.Cache)
	channelSvc := service.NewChannelService(repos.Channels, repos.Videos, deps.ChannelLookup(), deps.Pipeline, deps.Cache)
	commentSvc := service.NewCommentService(repos.Comments, sanitizer, deps.Cache)
	reportSvc := service.NewReportService(repos.Reports, sanitizer, deps.Cache)
	testimonialSvc := service.NewTestimonialService(repos.Testimonials, sanitizer, deps.Cache)
	securitySvc := service.NewSecurityService(repos.Security, cfg.IPHashSalt)
	adminSvc := service.NewAdminService(repos.Users, repos.Logs, deps.Pipeline, enqueuer, deps.Cache, cfg.YouTubeDailyQuota)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if !verifier.Enabled() {
		log.Warn().Msg("JWT_SECRET not set, every request is anonymous")
	}

	h := &router.Handlers{
		Video:   handler.NewVideoHandler(videoSvc, commentSvc),
		Channel: handler.NewChannelHandler(channelSvc),
		Search:  handler.NewSearchHandler(service.NewSearchService(repos.Videos, repos.Channels, deps.Cache)),
		User:    handler.NewUserHandler(userSvc),
		Content: handler.NewContentHandler(reportSvc, testimonialSvc, securitySvc),
		Auth:    handler.NewAuthHandler(userSvc, securitySvc),
		Admin:   handler.NewAdminHandler(adminSvc, channelSvc, videoSvc, reportSvc, testimonialSvc, securitySvc),
		Health: handler.NewHealthHandler(version,
			handler.DatabaseProbe(deps.Pool),
			handler.RedisProbe(deps.Redis.Client()),
		),
	}

	app := fiber.New(router.Config("YidVid API"))
	router.Setup(app, h, middleware.NewAuth(verifier, userSvc), router.Options{
		CORSOrigins: cfg.CORSOrigins,
		RateCounter: middleware.CounterFor(deps.Redis.Client()),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		realtime.NewInvalidator(deps.Pool, deps.Cache).Start(gctx)
		return nil
	})

	// With a queue configured, cmd/worker owns scheduled ingestion.
	if !queued && cfg.IngestInterval > 0 {
		g.Go(func() error {
			ingest.NewWorker(deps.Pipeline, cfg.IngestInterval).Start(gctx)
			return nil
		})
	}

	g.Go(func() error {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Environment).Str("version", version).Msg("YidVid API starting")
		return app.Listen(":"+cfg.Port, fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
	}
}
