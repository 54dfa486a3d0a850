// Package tasks defines the queued jobs run by cmd/worker.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/ingest"
)

const (
	TypeIngestRun         = "ingest:run"
	TypeThumbnailsRefresh = "thumbnails:refresh"
)

// TaskEnqueuer is implemented by *asynq.Client and mocked in tests.
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// ThumbnailPayload is the payload of a thumbnails:refresh task.
type ThumbnailPayload struct {
	Limit int `json:"limit"`
}

// NewIngestTask returns an ingest:run task. A run with the same request is
// not queued twice while one is pending.
func NewIngestTask(req ingest.Request) (*asynq.Task, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeIngestRun, payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Unique(10*time.Minute),
	), nil
}

func NewThumbnailTask(limit int) (*asynq.Task, error) {
	payload, err := json.Marshal(ThumbnailPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeThumbnailsRefresh, payload,
		asynq.MaxRetry(2),
		asynq.Timeout(10*time.Minute),
	), nil
}

// Pipeline is the part of *ingest.Pipeline the handlers use.
type Pipeline interface {
	Run(ctx context.Context, req ingest.Request) (*ingest.Summary, error)
	RefreshThumbnails(ctx context.Context, limit int) (*ingest.ThumbnailResult, error)
}

type Handler struct {
	pipeline Pipeline
}

func NewHandler(p Pipeline) *Handler {
	return &Handler{pipeline: p}
}

// Register adds the task handlers to mux.
func (h *Handler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeIngestRun, h.HandleIngestRun)
	mux.HandleFunc(TypeThumbnailsRefresh, h.HandleThumbnailsRefresh)
}

func (h *Handler) HandleIngestRun(ctx context.Context, t *asynq.Task) error {
	var req ingest.Request
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &req); err != nil {
			return fmt.Errorf("unmarshal ingest payload: %w: %w", err, asynq.SkipRetry)
		}
	}

	sum, err := h.pipeline.Run(ctx, req)
	if err != nil {
		return retryable(err)
	}
	if sum.QuotaExceeded {
		ev := log.Warn().Str("run_id", sum.RunID)
		if sum.RetryAt != nil {
			ev = ev.Time("retry_at", *sum.RetryAt)
		}
		ev.Msg("queued run stopped on quota")
	}
	return nil
}

func (h *Handler) HandleThumbnailsRefresh(ctx context.Context, t *asynq.Task) error {
	var p ThumbnailPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			return fmt.Errorf("unmarshal thumbnails payload: %w: %w", err, asynq.SkipRetry)
		}
	}
	_, err := h.pipeline.RefreshThumbnails(ctx, p.Limit)
	if err != nil {
		return retryable(err)
	}
	return nil
}

// retryable marks errors that a retry cannot fix so asynq archives the task.
func retryable(err error) error {
	if errors.Is(err, ingest.ErrDisabled) || !apperr.Retryable(err) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// RetryDelay backs off exponentially from one minute up to one hour.
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	delay := time.Minute
	for i := 0; i < n; i++ {
		delay *= 2
		if delay >= time.Hour {
			delay = time.Hour
			break
		}
	}
	log.Warn().Err(err).Str("task", t.Type()).Int("attempt", n+1).Dur("retry_in", delay).Msg("task failed")
	return delay
}
