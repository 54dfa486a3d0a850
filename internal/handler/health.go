package handler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks one dependency. A failing critical probe makes the instance
// unhealthy; any other failure only degrades it. A nil Check is reported as
// disabled.
type Probe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

var errNotConfigured = errors.New("not configured")

// DatabaseProbe is critical: nothing is served without Postgres.
func DatabaseProbe(db Pinger) Probe {
	return Probe{Name: "database", Critical: true, Check: func(ctx context.Context) error {
		if db == nil {
			return errNotConfigured
		}
		return db.Ping(ctx)
	}}
}

// RedisProbe reports the shared cache tier. A nil client means Redis is off.
func RedisProbe(rdb *redis.Client) Probe {
	p := Probe{Name: "redis"}
	if rdb != nil {
		p.Check = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return p
}

type checkResult struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	Error     string `json:"error,omitempty"`
}

type readiness struct {
	Status        string                 `json:"status"`
	Checks        map[string]checkResult `json:"checks"`
	UptimeSeconds int                    `json:"uptime_seconds"`
	Version       string                 `json:"version"`
}

type HealthHandler struct {
	probes  []Probe
	version string
	startAt time.Time
	timeout time.Duration
}

func NewHealthHandler(version string, probes ...Probe) *HealthHandler {
	return &HealthHandler{probes: probes, version: version, startAt: time.Now(), timeout: 3 * time.Second}
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Ready handles GET /health/ready. Probes run concurrently under one timeout.
func (h *HealthHandler) Ready(c fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	results := make([]checkResult, len(h.probes))
	var wg sync.WaitGroup
	for i, p := range h.probes {
		if p.Check == nil {
			results[i] = checkResult{Status: "disabled"}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := p.Check(ctx)
			results[i] = checkResult{Status: "up", LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				results[i].Status = "down"
				results[i].Error = "connection failed"
				if errors.Is(err, errNotConfigured) {
					results[i].Error = err.Error()
				}
			}
		}()
	}
	wg.Wait()

	resp := readiness{
		Status:        "healthy",
		Checks:        make(map[string]checkResult, len(h.probes)),
		UptimeSeconds: int(time.Since(h.startAt).Seconds()),
		Version:       h.version,
	}
	for i, p := range h.probes {
		resp.Checks[p.Name] = results[i]
		if results[i].Status != "down" {
			continue
		}
		if p.Critical {
			resp.Status = "unhealthy"
		} else if resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}

	status := fiber.StatusOK
	if resp.Status != "healthy" {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(resp)
}
