package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/bootstrap"
	"github.com/YidKik/yidvid-sub003/internal/config"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/middleware"
	"github.com/YidKik/yidvid-sub003/internal/tasks"
)

// thumbnailSchedule is how often videos with placeholder thumbnails are re-read.
const thumbnailSchedule = "@every 24h"

// version is set at build time via ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	middleware.InitLogger(cfg.LogLevel, "yidvid-worker", !cfg.IsProduction())

	opt, queued, err := bootstrap.QueueOpt(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid queue configuration")
	}
	if !queued {
		log.Fatal().Msg("REDIS_URL is required to run the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := bootstrap.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer deps.Close()

	srv := asynq.NewServer(opt, asynq.Config{
		// One run at a time keeps quota accounting simple.
		Concurrency:    1,
		RetryDelayFunc: tasks.RetryDelay,
		Logger:         tasks.NewLogger(),
	})
	mux := asynq.NewServeMux()
	tasks.NewHandler(deps.Pipeline).Register(mux)

	scheduler := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Logger: tasks.NewLogger()})
	if cfg.IngestInterval > 0 {
		task, err := tasks.NewIngestTask(ingest.Request{})
		if err != nil {
			log.Fatal().Err(err).Msg("build ingest task")
		}
		schedule := "@every " + cfg.IngestInterval.String()
		if _, err := scheduler.Register(schedule, task); err != nil {
			log.Fatal().Err(err).Str("schedule", schedule).Msg("register ingest schedule")
		}
	}
	thumbs, err := tasks.NewThumbnailTask(0)
	if err != nil {
		log.Fatal().Err(err).Msg("build thumbnails task")
	}
	if _, err := scheduler.Register(thumbnailSchedule, thumbs); err != nil {
		log.Fatal().Err(err).Msg("register thumbnails schedule")
	}

	log.Info().Str("version", version).Dur("ingest_interval", cfg.IngestInterval).Msg("worker starting")
	if err := srv.Start(mux); err != nil {
		log.Fatal().Err(err).Msg("start task server")
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		log.Fatal().Err(err).Msg("start scheduler")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	scheduler.Shutdown()
	srv.Shutdown()
}
