package service

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/tasks"
	"github.com/YidKik/yidvid-sub003/internal/youtube"
)

// EnqueuedRun is returned when an ingestion run is queued instead of run inline.
type EnqueuedRun struct {
	TaskID string `json:"taskId"`
	Queue  string `json:"queue"`
}

type AdminService struct {
	stats    StatsStore
	logs     LogStore
	ingest   IngestRunner
	enqueuer tasks.TaskEnqueuer
	cache    *cache.QueryCache
	daily    int64
}

// NewAdminService wires the admin flows. runner is nil when no video API key
// is configured and enqueuer is nil without a task queue.
func NewAdminService(stats StatsStore, logs LogStore, runner IngestRunner, enqueuer tasks.TaskEnqueuer, qc *cache.QueryCache, dailyQuota int64) *AdminService {
	return &AdminService{stats: stats, logs: logs, ingest: runner, enqueuer: enqueuer, cache: qc, daily: dailyQuota}
}

// Stats returns the dashboard counters with the tracked quota.
func (s *AdminService) Stats(ctx context.Context) (*model.StatsResponse, error) {
	return cache.Fetch(ctx, s.cache, cache.NewKey(cache.EntityStats), cache.VideoList,
		func(ctx context.Context) (*model.StatsResponse, error) {
			stats, err := s.stats.GetStats(ctx)
			if err != nil {
				return nil, err
			}
			quota, err := s.Quota(ctx)
			if err != nil {
				return nil, err
			}
			stats.Quota = quota
			return stats, nil
		})
}

// Quota returns the tracked video API quota. Before the first run it reports
// the full daily allowance.
func (s *AdminService) Quota(ctx context.Context) (*model.QuotaUsage, error) {
	q, err := s.logs.GetQuota(ctx, repository.YouTubeAPI)
	if apperr.Is(err, apperr.KindNotFound) {
		return &model.QuotaUsage{
			APIName:        repository.YouTubeAPI,
			QuotaRemaining: s.daily,
			QuotaResetAt:   youtube.NextQuotaReset(time.Now()),
		}, nil
	}
	return q, err
}

func (s *AdminService) FetchLogs(ctx context.Context, channelID string, limit int) ([]model.FetchLog, error) {
	return s.logs.ListFetchLogs(ctx, channelID, limit)
}

// RunIngest runs an ingestion pass inline and returns its summary.
func (s *AdminService) RunIngest(ctx context.Context, req ingest.Request) (*ingest.Summary, error) {
	if s.ingest == nil {
		return nil, ingest.ErrDisabled
	}
	return s.ingest.Run(ctx, req)
}

// EnqueueIngest queues an ingestion run for cmd/worker.
func (s *AdminService) EnqueueIngest(req ingest.Request) (*EnqueuedRun, error) {
	if s.enqueuer == nil {
		return nil, apperr.New(apperr.KindUpstream, "QUEUE_DISABLED", "Task queue is not configured")
	}
	task, err := tasks.NewIngestTask(req)
	if err != nil {
		return nil, err
	}
	info, err := s.enqueuer.Enqueue(task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil, apperr.Conflict("An identical ingestion run is already queued")
		}
		return nil, err
	}
	return &EnqueuedRun{TaskID: info.ID, Queue: info.Queue}, nil
}

func (s *AdminService) RefreshThumbnails(ctx context.Context, limit int) (*ingest.ThumbnailResult, error) {
	if s.ingest == nil {
		return nil, ingest.ErrDisabled
	}
	return s.ingest.RefreshThumbnails(ctx, limit)
}

// ClearCache empties both cache tiers.
func (s *AdminService) ClearCache(ctx context.Context) {
	s.cache.Clear(ctx)
}
