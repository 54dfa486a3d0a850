// Package ingest pulls new uploads for tracked channels from YouTube into the
// video catalogue and notifies subscribers.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
	"github.com/YidKik/yidvid-sub003/internal/cache"
	"github.com/YidKik/yidvid-sub003/internal/metrics"
	"github.com/YidKik/yidvid-sub003/internal/model"
	"github.com/YidKik/yidvid-sub003/internal/repository"
	"github.com/YidKik/yidvid-sub003/internal/youtube"
)

// Source is the external video API.
type Source interface {
	ListUploads(ctx context.Context, channelID string, limit int) ([]youtube.Upload, error)
	VideoDetails(ctx context.Context, ids []string) ([]youtube.VideoStats, error)
	Usage() youtube.Usage
}

type ChannelStore interface {
	FindByChannelIDs(ctx context.Context, ids []string) ([]model.Channel, error)
	DueForFetch(ctx context.Context, before time.Time, limit int) ([]model.Channel, error)
	TouchLastFetch(ctx context.Context, channelID string, at time.Time) error
}

type VideoStore interface {
	ExistingIDs(ctx context.Context, channelID string, ids []string) (map[string]struct{}, error)
	Insert(ctx context.Context, v *model.Video) (bool, error)
	MissingThumbnails(ctx context.Context, limit int) ([]string, error)
	UpdateThumbnail(ctx context.Context, videoID, thumbnail string, views int64) error
}

type Notifier interface {
	CreateForSubscribers(ctx context.Context, channelID string, videoIDs []string) (int64, error)
}

type LogStore interface {
	AppendFetchLog(ctx context.Context, l *model.FetchLog) error
	GetQuota(ctx context.Context, api string) (*model.QuotaUsage, error)
	RecordQuotaUsage(ctx context.Context, api string, daily, used int64, resetAt time.Time) (int64, error)
	MarkQuotaExhausted(ctx context.Context, api string, resetAt time.Time) error
}

type Invalidator interface {
	InvalidatePrefix(ctx context.Context, entities ...string)
}

// Stores groups the persistence dependencies of a Pipeline.
type Stores struct {
	Channels ChannelStore
	Videos   VideoStore
	Notifier Notifier
	Logs     LogStore
}

type Config struct {
	Concurrency int
	MaxChannels int
	MaxVideos   int
	MinRefetch  time.Duration
	DailyQuota  int64
}

// Conservative mode limits.
const (
	conservativeMaxVideos = 10
	lowQuotaDivisor       = 10
)

// Request selects what one ingestion run fetches.
type Request struct {
	// ChannelIDs limits the run to these channels. Empty means every channel
	// due for a fetch.
	ChannelIDs []string `json:"channelIds,omitempty"`
	// ForceUpdate fetches channels even if they were fetched recently.
	ForceUpdate bool `json:"forceUpdate"`
	// QuotaConservative caps videos per channel and doubles the refetch window.
	QuotaConservative bool `json:"quotaConservative"`
	MaxChannels       int  `json:"maxChannels,omitempty"`
}

// ChannelResult is the outcome for one channel.
type ChannelResult struct {
	ChannelID   string `json:"channelId"`
	VideosFound int    `json:"videosFound"`
	NewVideos   int    `json:"newVideos"`
	Errors      int    `json:"errors"`
	Skipped     bool   `json:"skipped,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Summary reports a finished run.
type Summary struct {
	RunID             string          `json:"runId"`
	Processed         int             `json:"processed"`
	NewVideos         int             `json:"newVideos"`
	Skipped           int             `json:"skipped"`
	Errors            int             `json:"errors"`
	UsedFallbackKey   bool            `json:"usedFallbackKey"`
	QuotaConservative bool            `json:"quotaConservative"`
	QuotaExceeded     bool            `json:"quotaExceeded"`
	RetryAt           *time.Time      `json:"retryAt,omitempty"`
	QuotaRemaining    *int64          `json:"quotaRemaining,omitempty"`
	Message           string          `json:"message"`
	Channels          []ChannelResult `json:"channels"`
	StartedAt         time.Time       `json:"startedAt"`
	FinishedAt        time.Time       `json:"finishedAt"`
}

// Skip reasons.
const (
	reasonRecent    = "fetched recently"
	reasonQuota     = "quota exhausted"
	reasonUntracked = "channel not tracked"
	reasonCancelled = "run cancelled"
)

// ErrDisabled is returned when no video API client is configured.
var ErrDisabled = apperr.New(apperr.KindUpstream, "INGEST_DISABLED", "Video ingestion is not configured")

type Pipeline struct {
	source Source
	stores Stores
	cache  Invalidator
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

// NewPipeline returns a pipeline. source may be nil, in which case every run
// fails with ErrDisabled.
func NewPipeline(source Source, stores Stores, cache Invalidator, cfg Config) *Pipeline {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxChannels < 1 {
		cfg.MaxChannels = 50
	}
	if cfg.MaxVideos < 1 {
		cfg.MaxVideos = 50
	}
	if cfg.DailyQuota < 1 {
		cfg.DailyQuota = 10000
	}
	return &Pipeline{
		source: source,
		stores: stores,
		cache:  cache,
		cfg:    cfg,
		logger: log.With().Str("component", "ingest").Logger(),
		now:    time.Now,
	}
}

// run holds the state shared by the channel workers of one Run.
type run struct {
	id            string
	startUnits    int64
	startFallback int64
	quotaBase     *int64
	quotaHit      atomic.Bool

	mu      sync.Mutex
	retryAt time.Time
}

// noteQuota flags the run when err is a quota error.
func (r *run) noteQuota(err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindQuotaExceeded {
		r.quotaHit.Store(true)
		r.mu.Lock()
		r.retryAt = ae.RetryAt
		r.mu.Unlock()
	}
}

// Run executes one ingestion run. Per-channel failures are recorded in the
// summary; an error is returned only when the run could not start.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Summary, error) {
	if p.source == nil {
		return nil, ErrDisabled
	}

	start := p.now()
	usage := p.source.Usage()
	r := &run{id: uuid.NewString(), startUnits: usage.Units, startFallback: usage.FallbackCalls}
	sum := &Summary{RunID: r.id, StartedAt: start, Channels: []ChannelResult{}}

	channels, untracked, err := p.selectChannels(ctx, req, start)
	if err != nil {
		metrics.IngestRuns.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("select channels: %w", err)
	}
	for _, id := range untracked {
		sum.Channels = append(sum.Channels, ChannelResult{ChannelID: id, Skipped: true, Reason: reasonUntracked})
		sum.Skipped++
	}

	quota, err := p.stores.Logs.GetQuota(ctx, repository.YouTubeAPI)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		p.logger.Warn().Err(err).Msg("could not read tracked quota")
	}
	if quota != nil && quota.QuotaResetAt.After(start) {
		remaining := quota.QuotaRemaining
		r.quotaBase = &remaining
		if remaining <= 0 {
			r.quotaHit.Store(true)
			r.retryAt = quota.QuotaResetAt
		}
	}

	conservative := req.QuotaConservative ||
		(r.quotaBase != nil && *r.quotaBase < p.cfg.DailyQuota/lowQuotaDivisor)
	sum.QuotaConservative = conservative
	maxVideos := p.cfg.MaxVideos
	window := p.cfg.MinRefetch
	if conservative {
		maxVideos = min(maxVideos, conservativeMaxVideos)
		window *= 2
	}

	results := make([]ChannelResult, len(channels))
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, ch := range channels {
		if !req.ForceUpdate && ch.LastFetch != nil && start.Sub(*ch.LastFetch) < window {
			results[i] = ChannelResult{ChannelID: ch.ChannelID, Skipped: true, Reason: reasonRecent}
			continue
		}
		g.Go(func() error {
			switch {
			case ctx.Err() != nil:
				results[i] = ChannelResult{ChannelID: ch.ChannelID, Skipped: true, Reason: reasonCancelled}
			case r.quotaHit.Load():
				results[i] = ChannelResult{ChannelID: ch.ChannelID, Skipped: true, Reason: reasonQuota}
			default:
				results[i] = p.processChannel(ctx, r, ch, maxVideos)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range results {
		sum.Channels = append(sum.Channels, res)
		switch {
		case res.Skipped:
			sum.Skipped++
		default:
			sum.Processed++
		}
		sum.NewVideos += res.NewVideos
		sum.Errors += res.Errors
	}

	p.finish(ctx, r, sum)
	return sum, nil
}

// selectChannels resolves the channels of a run and the requested ids that
// are not tracked.
func (p *Pipeline) selectChannels(ctx context.Context, req Request, now time.Time) ([]model.Channel, []string, error) {
	limit := p.cfg.MaxChannels
	if req.MaxChannels > 0 && req.MaxChannels < limit {
		limit = req.MaxChannels
	}

	if len(req.ChannelIDs) == 0 {
		before := now.Add(-p.cfg.MinRefetch)
		if req.ForceUpdate {
			before = now
		}
		channels, err := p.stores.Channels.DueForFetch(ctx, before, limit)
		return channels, nil, err
	}

	ids := dedupe(req.ChannelIDs)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	channels, err := p.stores.Channels.FindByChannelIDs(ctx, ids)
	if err != nil {
		return nil, nil, err
	}

	byID := make(map[string]model.Channel, len(channels))
	for _, ch := range channels {
		byID[ch.ChannelID] = ch
	}
	ordered := make([]model.Channel, 0, len(channels))
	var untracked []string
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			ordered = append(ordered, ch)
		} else {
			untracked = append(untracked, id)
		}
	}
	return ordered, untracked, nil
}

func (p *Pipeline) processChannel(ctx context.Context, r *run, ch model.Channel, maxVideos int) ChannelResult {
	res := ChannelResult{ChannelID: ch.ChannelID}
	logger := p.logger.With().Str("run_id", r.id).Str("channel_id", ch.ChannelID).Logger()

	uploads, err := p.source.ListUploads(ctx, ch.ChannelID, maxVideos)
	if err != nil {
		r.noteQuota(err)
		res.Errors = 1
		res.Error = err.Error()
		logger.Warn().Err(err).Msg("listing uploads failed")
		p.appendLog(ctx, r, res)
		return res
	}

	uploads = uniqueUploads(uploads)
	res.VideosFound = len(uploads)

	ids := make([]string, len(uploads))
	for i, u := range uploads {
		ids[i] = u.VideoID
	}
	existing, err := p.stores.Videos.ExistingIDs(ctx, ch.ChannelID, ids)
	if err != nil {
		res.Errors = 1
		res.Error = err.Error()
		logger.Error().Err(err).Msg("checking existing videos failed")
		p.appendLog(ctx, r, res)
		return res
	}

	fresh := make([]youtube.Upload, 0, len(uploads))
	freshIDs := make([]string, 0, len(uploads))
	for _, u := range uploads {
		if _, ok := existing[u.VideoID]; !ok {
			fresh = append(fresh, u)
			freshIDs = append(freshIDs, u.VideoID)
		}
	}

	var lastErr error
	views, err := p.viewCounts(ctx, r, freshIDs)
	if err != nil {
		// Videos are still stored; their counts start at zero.
		res.Errors++
		lastErr = err
		logger.Warn().Err(err).Int("videos", len(freshIDs)).Msg("fetching view counts failed")
	}

	var inserted []string
	for _, u := range fresh {
		ok, err := p.stores.Videos.Insert(ctx, p.toVideo(ch, u, views[u.VideoID]))
		if err != nil {
			res.Errors++
			lastErr = err
			logger.Warn().Err(err).Str("video_id", u.VideoID).Msg("inserting video failed")
			continue
		}
		if ok {
			inserted = append(inserted, u.VideoID)
		}
	}
	res.NewVideos = len(inserted)

	if len(inserted) > 0 {
		if _, err := p.stores.Notifier.CreateForSubscribers(ctx, ch.ChannelID, inserted); err != nil {
			res.Errors++
			lastErr = err
			logger.Warn().Err(err).Msg("creating notifications failed")
		}
	}

	if err := p.stores.Channels.TouchLastFetch(ctx, ch.ChannelID, p.now()); err != nil {
		res.Errors++
		lastErr = err
		logger.Warn().Err(err).Msg("updating last fetch failed")
	}
	if lastErr != nil {
		res.Error = lastErr.Error()
	}

	logger.Debug().Int("found", res.VideosFound).Int("new", res.NewVideos).Msg("channel ingested")
	p.appendLog(ctx, r, res)
	return res
}

// viewCounts looks up view counts for new videos, one unit per 50 ids. Counts
// fetched before a failure are kept. Nothing is requested once the run has hit
// the quota.
func (p *Pipeline) viewCounts(ctx context.Context, r *run, ids []string) (map[string]int64, error) {
	views := make(map[string]int64, len(ids))
	if len(ids) == 0 || r.quotaHit.Load() {
		return views, nil
	}
	stats, err := p.source.VideoDetails(ctx, ids)
	for _, st := range stats {
		views[st.VideoID] = st.Views
	}
	if err != nil {
		r.noteQuota(err)
	}
	return views, err
}

func (p *Pipeline) toVideo(ch model.Channel, u youtube.Upload, views int64) *model.Video {
	name := ch.Title
	if name == "" {
		name = u.ChannelTitle
	}
	uploaded := u.PublishedAt
	if uploaded.IsZero() {
		uploaded = p.now()
	}
	category := ch.DefaultCategory
	if category == "" {
		category = "other"
	}
	return &model.Video{
		VideoID:     u.VideoID,
		Title:       u.Title,
		Description: u.Description,
		Thumbnail:   u.Thumbnail,
		ChannelID:   ch.ChannelID,
		ChannelName: name,
		Views:       views,
		Category:    category,
		UploadedAt:  uploaded,
	}
}

func (p *Pipeline) appendLog(ctx context.Context, r *run, res ChannelResult) {
	l := &model.FetchLog{
		RunID:          r.id,
		ChannelID:      res.ChannelID,
		VideosFound:    res.VideosFound,
		NewVideos:      res.NewVideos,
		ErrorCount:     res.Errors,
		QuotaRemaining: p.estimateRemaining(r),
	}
	if res.Error != "" {
		msg := res.Error
		l.Error = &msg
	}
	if err := p.stores.Logs.AppendFetchLog(ctx, l); err != nil {
		p.logger.Warn().Err(err).Str("channel_id", res.ChannelID).Msg("appending fetch log failed")
	}
}

// estimateRemaining subtracts the units spent in this run from the tracked
// quota. It is nil when no quota is tracked yet.
func (p *Pipeline) estimateRemaining(r *run) *int64 {
	if r.quotaBase == nil {
		return nil
	}
	left := max(*r.quotaBase-(p.source.Usage().Units-r.startUnits), 0)
	return &left
}

func (p *Pipeline) finish(ctx context.Context, r *run, sum *Summary) {
	usage := p.source.Usage()
	used := usage.Units - r.startUnits
	sum.UsedFallbackKey = usage.FallbackCalls > r.startFallback

	if r.quotaHit.Load() {
		r.mu.Lock()
		retryAt := r.retryAt
		r.mu.Unlock()
		if retryAt.IsZero() {
			retryAt = youtube.NextQuotaReset(p.now())
		}
		sum.QuotaExceeded = true
		sum.RetryAt = &retryAt
		zero := int64(0)
		sum.QuotaRemaining = &zero
		if err := p.stores.Logs.MarkQuotaExhausted(ctx, repository.YouTubeAPI, retryAt); err != nil {
			p.logger.Warn().Err(err).Msg("recording exhausted quota failed")
		}
	} else if used > 0 {
		remaining, err := p.stores.Logs.RecordQuotaUsage(ctx, repository.YouTubeAPI,
			p.cfg.DailyQuota, used, youtube.NextQuotaReset(p.now()))
		if err != nil {
			p.logger.Warn().Err(err).Msg("recording quota usage failed")
		} else {
			sum.QuotaRemaining = &remaining
		}
	} else if r.quotaBase != nil {
		sum.QuotaRemaining = r.quotaBase
	}
	if sum.QuotaRemaining != nil {
		metrics.QuotaRemaining.Set(float64(*sum.QuotaRemaining))
	}

	if sum.NewVideos > 0 && p.cache != nil {
		p.cache.InvalidatePrefix(ctx,
			cache.EntityVideos, cache.EntityChannels, cache.EntityChannel,
			cache.EntitySearch, cache.EntityNotifications, cache.EntityStats)
	}

	sum.FinishedAt = p.now()
	sum.Message = summaryMessage(sum)

	outcome := "ok"
	switch {
	case sum.QuotaExceeded:
		outcome = "quota_exceeded"
	case sum.Errors > 0:
		outcome = "partial"
	}
	metrics.IngestRuns.WithLabelValues(outcome).Inc()
	metrics.IngestNewVideos.Add(float64(sum.NewVideos))
	for _, res := range sum.Channels {
		if res.Errors > 0 {
			metrics.IngestChannelErrors.Inc()
		}
	}
	metrics.IngestDuration.Observe(sum.FinishedAt.Sub(sum.StartedAt).Seconds())

	p.logger.Info().
		Str("run_id", sum.RunID).
		Int("processed", sum.Processed).
		Int("new_videos", sum.NewVideos).
		Int("skipped", sum.Skipped).
		Int("errors", sum.Errors).
		Int64("units", used).
		Bool("quota_exceeded", sum.QuotaExceeded).
		Dur("duration_ms", sum.FinishedAt.Sub(sum.StartedAt)).
		Msg("ingestion run complete")
}

func summaryMessage(sum *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Processed %d channels, %d new videos", sum.Processed, sum.NewVideos)
	if sum.Skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", sum.Skipped)
	}
	if sum.Errors > 0 {
		fmt.Fprintf(&b, ", %d errors", sum.Errors)
	}
	if sum.QuotaExceeded && sum.RetryAt != nil {
		fmt.Fprintf(&b, ". YouTube quota exhausted, retry after %s", sum.RetryAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func uniqueUploads(uploads []youtube.Upload) []youtube.Upload {
	seen := make(map[string]struct{}, len(uploads))
	out := make([]youtube.Upload, 0, len(uploads))
	for _, u := range uploads {
		if _, ok := seen[u.VideoID]; ok {
			continue
		}
		seen[u.VideoID] = struct{}{}
		out = append(out, u)
	}
	return out
}
