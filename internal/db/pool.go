package db

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolOptions sizes the connection pool. Zero fields keep pgxpool defaults,
// except ConnectWithin which defaults to 30s.
type PoolOptions struct {
	MaxConns      int32
	MinConns      int32
	ConnectWithin time.Duration
}

func (o PoolOptions) apply(cfg *pgxpool.Config) {
	if o.MaxConns > 0 {
		cfg.MaxConns = o.MaxConns
	}
	if o.MinConns > 0 && o.MinConns <= cfg.MaxConns {
		cfg.MinConns = o.MinConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute
}

// NewPool opens a pool and pings it, backing off while the database is still
// starting. It gives up after opts.ConnectWithin.
func NewPool(ctx context.Context, databaseURL string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	opts.apply(cfg)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 500 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = opts.ConnectWithin
	if eb.MaxElapsedTime <= 0 {
		eb.MaxElapsedTime = 30 * time.Second
	}

	connect := func() (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			// A config the driver rejects will not get better.
			return nil, backoff.Permanent(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return pool, nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Dur("retry_in", wait).Msg("database not reachable yet")
	}

	pool, err := backoff.RetryNotifyWithData(connect, backoff.WithContext(eb, ctx), notify)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info().Int32("max_conns", cfg.MaxConns).Msg("database connected")
	return pool, nil
}
