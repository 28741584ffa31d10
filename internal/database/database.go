package database

import (
	"context"
	"fmt"

	pgxzerolog "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/multitracer"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/newrelic/go-agent/v3/integrations/nrpgx5"
	"github.com/rs/zerolog"

	"github.com/akave-ai/logpipe/internal/config"
)

// NewPool opens a pgx pool for cfg.URL and verifies it with a PING. Queries are
// logged through zerolog at cfg.LogLevel and traced as New Relic datastore
// segments when a transaction is present in the query context.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := poolConfig(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// poolConfig bounds each dial by cfg.ConnectTimeout so an unreachable host
// fails within one retry interval instead of the OS TCP timeout.
func poolConfig(cfg config.DatabaseConfig, logger zerolog.Logger) (*pgxpool.Config, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	level := tracelog.LogLevelWarn
	if cfg.LogLevel != "" {
		if level, err = tracelog.LogLevelFromString(cfg.LogLevel); err != nil {
			return nil, fmt.Errorf("database log level: %w", err)
		}
	}
	poolCfg.ConnConfig.Tracer = multitracer.New(
		&tracelog.TraceLog{
			Logger:   pgxzerolog.NewLogger(logger.With().Str("component", "pgx").Logger()),
			LogLevel: level,
		},
		nrpgx5.NewTracer(),
	)
	return poolCfg, nil
}
