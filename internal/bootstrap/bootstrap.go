// Package bootstrap builds the dependencies shared by the server, worker and
// ingest binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/config"
	"github.com/YidKik/yidvid-sub003/internal/db"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/metrics"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/service"
	"github.com/YidKik/yidvid-sub003/internal/youtube"
)

type Repos struct {
	Videos        *repository.VideoRepo
	Channels      *repository.ChannelRepo
	Users         *repository.UserRepo
	Notifications *repository.NotificationRepo
	Comments      *repository.CommentRepo
	Reports       *repository.ReportRepo
	Testimonials  *repository.TestimonialRepo
	Security      *repository.SecurityEventRepo
	Logs          *repository.LogRepo
}

func NewRepos(pool repository.DBTX) Repos {
	return Repos{
		Videos:        repository.NewVideoRepo(pool),
		Channels:      repository.NewChannelRepo(pool),
		Users:         repository.NewUserRepo(pool),
		Notifications: repository.NewNotificationRepo(pool),
		Comments:      repository.NewCommentRepo(pool),
		Reports:       repository.NewReportRepo(pool),
		Testimonials:  repository.NewTestimonialRepo(pool),
		Security:      repository.NewSecurityEventRepo(pool),
		Logs:          repository.NewLogRepo(pool),
	}
}

// Deps are the long-lived dependencies of a binary.
type Deps struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Redis    *cache.RedisStore
	Cache    *cache.QueryCache
	Repos    Repos
	YouTube  *youtube.Client // nil when no API key is configured
	Pipeline *ingest.Pipeline
}

// Open connects to Postgres and Redis, applies migrations and builds the
// ingestion pipeline. A missing YouTube key disables ingestion but is not an
// error.
func Open(ctx context.Context, cfg *config.Config) (*Deps, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{
		MaxConns:      cfg.DBMaxConns,
		MinConns:      cfg.DBMinConns,
		ConnectWithin: cfg.DBConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.MigrationsAuto {
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			return nil, err
		}
	}
	metrics.Register(pool)

	d := &Deps{
		Config: cfg,
		Pool:   pool,
		Redis:  cache.NewRedisStore(cfg.RedisURL),
		Repos:  NewRepos(pool),
	}
	d.Cache = cache.New(cache.NewLocalStore(cfg.CacheLocalSize), d.Redis)

	d.YouTube, err = youtube.New(ctx, youtube.Config{
		APIKey:         cfg.YouTubeAPIKey,
		FallbackAPIKey: cfg.YouTubeFallbackAPIKey,
		RPS:            cfg.YouTubeRPS,
	})
	switch {
	case errors.Is(err, youtube.ErrNoAPIKey):
		log.Warn().Msg("YOUTUBE_API_KEY not set, ingestion disabled")
	case err != nil:
		d.Close()
		return nil, err
	}

	var source ingest.Source
	if d.YouTube != nil {
		source = d.YouTube
	}
	d.Pipeline = ingest.NewPipeline(source, ingest.Stores{
		Channels: d.Repos.Channels,
		Videos:   d.Repos.Videos,
		Notifier: d.Repos.Notifications,
		Logs:     d.Repos.Logs,
	}, d.Cache, ingest.Config{
		Concurrency: cfg.IngestConcurrency,
		MaxChannels: cfg.IngestMaxChannels,
		MaxVideos:   cfg.IngestMaxVideos,
		MinRefetch:  cfg.IngestMinRefetch,
		DailyQuota:  cfg.YouTubeDailyQuota,
	})
	return d, nil
}

// ChannelLookup returns the YouTube client as a lookup, or nil when ingestion
// is disabled.
func (d *Deps) ChannelLookup() service.ChannelLookup {
	if d.YouTube == nil {
		return nil
	}
	return d.YouTube
}

func (d *Deps) Close() {
	if err := d.Redis.Close(); err != nil {
		log.Warn().Err(err).Msg("close redis")
	}
	d.Pool.Close()
}

// QueueOpt parses REDIS_URL for the task queue. ok is false when no URL is set.
func QueueOpt(redisURL string) (opt asynq.RedisConnOpt, ok bool, err error) {
	if redisURL == "" {
		return nil, false, nil
	}
	opt, err = asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, false, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return opt, true, nil
}
