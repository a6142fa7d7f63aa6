package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/reviewreplai/reviewrepl/internal/config"
)

// Connect opens a pgx pool and pings it. Failed attempts are retried with
// exponential backoff until cfg.ConnectTimeout has elapsed or ctx ends, so
// a process may start before its database. A malformed URL fails at once.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if cfg.ConnectTimeout > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = cfg.ConnectTimeout
		b = eb
	}

	attempt := 0
	pool, err := backoff.RetryWithData(func() (*pgxpool.Pool, error) {
		attempt++
		p, err := dial(ctx, poolCfg.Copy())
		if err != nil && cfg.ConnectTimeout > 0 {
			slog.Warn("database not ready, retrying", "attempt", attempt, "error", err)
		}
		return p, err
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, err
	}
	slog.Info("database connected", "attempts", attempt, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

func poolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 && int32(cfg.MaxIdleConns) <= poolCfg.MaxConns {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	return poolCfg, nil
}

func dial(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
