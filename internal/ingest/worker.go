package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Runner runs one ingestion pass.
type Runner interface {
	Run(ctx context.Context, req Request) (*Summary, error)
}

// Worker runs ingestion in-process on a fixed interval. It is used when no
// job queue is configured.
type Worker struct {
	runner   Runner
	interval time.Duration
	stopCh   chan struct{}
	logger   zerolog.Logger
}

// NewWorker creates a worker that ticks every interval.
func NewWorker(runner Runner, interval time.Duration) *Worker {
	return &Worker{
		runner:   runner,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.With().Str("component", "ingest-worker").Logger(),
	}
}

// Start runs one tick immediately, then every interval until ctx is done or
// Stop is called.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("starting")

	w.tick(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.tick(ctx)
		case <-ctx.Done():
			w.logger.Info().Msg("stopping (context cancelled)")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("stopping (stop signal)")
			return
		}
	}
}

// Stop signals the worker to stop.
func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) tick(ctx context.Context) {
	sum, err := w.runner.Run(ctx, Request{})
	if err != nil {
		w.logger.Error().Err(err).Msg("scheduled run failed")
		return
	}
	if sum.QuotaExceeded {
		w.logger.Warn().Time("retry_at", *sum.RetryAt).Msg("scheduled run stopped on quota")
	}
}
