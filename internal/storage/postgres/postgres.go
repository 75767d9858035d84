// Package postgres provides the Postgres-backed content record cache.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"market-sync/internal/observability"
)

// ApplicationName identifies market-sync sessions in pg_stat_activity.
const ApplicationName = "market-sync"

// Pool is the connection pool shared by the content cache and migrations.
type Pool struct {
	*pgxpool.Pool
}

// PoolOption adjusts the parsed pool configuration.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps the number of open connections. Zero keeps the pgxpool
// default.
func WithMaxConns(n int32) PoolOption {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// ParsePoolConfig parses dsn and applies opts. Sessions are tagged with
// ApplicationName unless dsn sets application_name itself.
func ParsePoolConfig(dsn string, opts ...PoolOption) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if _, ok := config.ConnConfig.RuntimeParams["application_name"]; !ok {
		config.ConnConfig.RuntimeParams["application_name"] = ApplicationName
	}
	for _, opt := range opts {
		opt(config)
	}
	return config, nil
}

// NewPool connects to dsn and verifies the connection with a ping.
func NewPool(ctx context.Context, dsn string, opts ...PoolOption) (*Pool, error) {
	config, err := ParsePoolConfig(dsn, opts...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	start := time.Now()
	err = pool.Ping(ctx)
	observability.RecordDBQuery("postgres", "ping", time.Since(start).Seconds(), err)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", config.ConnConfig.Host, err)
	}

	return &Pool{Pool: pool}, nil
}

func isNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
