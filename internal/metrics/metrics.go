// Package metrics holds the Prometheus collectors shared by the API server,
// the cache and the ingestion pipeline.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "yidvid_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds, by route and method.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method", "status"},
	)

	RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "yidvid_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		},
	)

	// CacheLookups counts query cache lookups by tier (local, redis) and
	// result (hit, miss).
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yidvid_cache_lookups_total",
			Help: "Query cache lookups, by tier and result.",
		},
		[]string{"tier", "result"},
	)

	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yidvid_cache_invalidations_total",
			Help: "Query cache invalidations, by kind.",
		},
		[]string{"kind"},
	)

	IngestRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "yidvid_ingest_runs_total",
			Help: "Ingestion runs, by outcome.",
		},
		[]string{"outcome"},
	)

	IngestNewVideos = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "yidvid_ingest_new_videos_total",
			Help: "Videos inserted by ingestion.",
		},
	)

	IngestChannelErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "yidvid_ingest_channel_errors_total",
			Help: "Channels that failed during ingestion.",
		},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "yidvid_ingest_duration_seconds",
			Help:    "Duration of ingestion runs.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	QuotaRemaining = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "yidvid_youtube_quota_remaining",
			Help: "Tracked remaining YouTube Data API units for the current day.",
		},
	)
)

var registerOnce sync.Once

// Register adds all collectors to the default registry. A non-nil pool also
// exports connection pool gauges. Safe to call more than once.
func Register(pool *pgxpool.Pool) {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestDuration,
			RequestsInFlight,
			CacheLookups,
			CacheInvalidations,
			IngestRuns,
			IngestNewVideos,
			IngestChannelErrors,
			IngestDuration,
			QuotaRemaining,
		)

		if pool == nil {
			return
		}
		prometheus.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "yidvid_db_connection_pool_active",
					Help: "Number of active database connections.",
				},
				func() float64 { return float64(pool.Stat().AcquiredConns()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "yidvid_db_connection_pool_idle",
					Help: "Number of idle database connections.",
				},
				func() float64 { return float64(pool.Stat().IdleConns()) },
			),
		)
	})
}

// Middleware records request duration and in-flight count.
func Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if c.Path() == "/metrics" {
			return c.Next()
		}

		// Fiber reuses the underlying buffer, so copy before c.Next().
		method := string([]byte(c.Method()))

		RequestsInFlight.Inc()
		start := time.Now()

		err := c.Next()

		// The route pattern keeps label cardinality bounded.
		endpoint := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" {
			endpoint = r.Path
		}
		status := strconv.Itoa(c.Response().StatusCode())

		RequestDuration.WithLabelValues(endpoint, method, status).Observe(time.Since(start).Seconds())
		RequestsInFlight.Dec()

		return err
	}
}

// Handler serves the Prometheus exposition format.
func Handler() fiber.Handler {
	httpHandler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c fiber.Ctx) error {
		httpHandler(c.RequestCtx())
		return nil
	}
}
