// Package youtube reads channel uploads and video statistics from the YouTube
// Data API v3, switching to a fallback key when the primary key's quota runs out.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/YidKik/yidvid-sub003/internal/apperr"
)

// Every list call used here costs one quota unit.
const unitsPerCall = 1

const pageSize = 50

// ErrNoAPIKey is returned by New when no primary key is configured.
var ErrNoAPIKey = errors.New("youtube: API key not configured")

type Config struct {
	APIKey         string
	FallbackAPIKey string
	// RPS caps outbound calls per second across both keys.
	RPS float64
	// Endpoint overrides the API base URL (tests).
	Endpoint string
}

// Usage is a snapshot of the units spent through a Client.
type Usage struct {
	Units         int64
	FallbackCalls int64
}

type Client struct {
	primary  *yt.Service
	fallback *yt.Service
	limiter  *rate.Limiter
	logger   zerolog.Logger
	now      func() time.Time

	units         atomic.Int64
	fallbackCalls atomic.Int64
	// primaryResetAt holds the unix time until which the primary key is
	// known to be exhausted. Zero means usable.
	primaryResetAt atomic.Int64
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	primary, err := newService(ctx, cfg.APIKey, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("youtube: primary service: %w", err)
	}

	c := &Client{
		primary: primary,
		logger:  log.With().Str("component", "youtube").Logger(),
		now:     time.Now,
	}
	if cfg.FallbackAPIKey != "" {
		c.fallback, err = newService(ctx, cfg.FallbackAPIKey, cfg.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("youtube: fallback service: %w", err)
		}
	}

	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	return c, nil
}

func newService(ctx context.Context, key, endpoint string) (*yt.Service, error) {
	opts := []option.ClientOption{option.WithAPIKey(key)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return yt.NewService(ctx, opts...)
}

// Usage returns the units spent so far.
func (c *Client) Usage() Usage {
	return Usage{Units: c.units.Load(), FallbackCalls: c.fallbackCalls.Load()}
}

// call runs fn against the primary key, or the fallback key once the primary
// quota is exhausted.
func (c *Client) call(ctx context.Context, fn func(*yt.Service) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	useFallback := c.fallback != nil && c.now().Unix() < c.primaryResetAt.Load()
	if !useFallback {
		err := fn(c.primary)
		c.units.Add(unitsPerCall)
		if err == nil {
			return nil
		}
		if !isQuotaError(err) {
			return classify(err)
		}
		resetAt := NextQuotaReset(c.now())
		c.primaryResetAt.Store(resetAt.Unix())
		if c.fallback == nil {
			return apperr.QuotaExceeded(err, resetAt)
		}
		c.logger.Warn().Time("reset_at", resetAt).Msg("primary API key quota exhausted, switching to fallback key")
	}

	err := fn(c.fallback)
	c.units.Add(unitsPerCall)
	c.fallbackCalls.Add(1)
	if err == nil {
		return nil
	}
	if isQuotaError(err) {
		return apperr.QuotaExceeded(err, NextQuotaReset(c.now()))
	}
	return classify(err)
}

// quotaReasons are the error reasons the API uses for exhausted allowances.
var quotaReasons = map[string]bool{
	"quotaExceeded":         true,
	"dailyLimitExceeded":    true,
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

func isQuotaError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	switch gerr.Code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
	default:
		return false
	}
	for _, item := range gerr.Errors {
		if quotaReasons[item.Reason] {
			return true
		}
	}
	return strings.Contains(strings.ToLower(gerr.Message), "quota")
}

func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return apperr.Wrap(err, apperr.KindUpstream, "UPSTREAM", "YouTube API request failed")
	}
	for _, item := range gerr.Errors {
		if item.Reason == "keyInvalid" {
			return apperr.Wrap(err, apperr.KindUpstream, "API_KEY_INVALID", "YouTube API key is invalid")
		}
	}
	switch gerr.Code {
	case http.StatusNotFound:
		return apperr.Wrap(err, apperr.KindNotFound, "NOT_FOUND", "Not found on YouTube")
	case http.StatusBadRequest:
		return apperr.Wrap(err, apperr.KindInvalid, "INVALID_FIELD", "YouTube rejected the request")
	}
	return apperr.Wrap(err, apperr.KindUpstream, "UPSTREAM", "YouTube API request failed")
}

var pacific = mustLoadLocation("America/Los_Angeles")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// NextQuotaReset returns the next midnight in US Pacific time, when the
// YouTube Data API daily quota resets.
func NextQuotaReset(now time.Time) time.Time {
	p := now.In(pacific)
	return time.Date(p.Year(), p.Month(), p.Day()+1, 0, 0, 0, 0, pacific)
}
