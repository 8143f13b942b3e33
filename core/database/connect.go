// Package database opens the Postgres pool behind the sql record backend and
// applies its schema migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	coreconfig "github.com/m3rciful/kitwatch/core/config"
	"github.com/m3rciful/kitwatch/core/logger"
)

const driverName = "postgres"

// Connect opens the database connection, configures the pool and verifies connectivity.
func Connect(ctx context.Context, cfg coreconfig.DatabaseConfig) (*sqlx.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	db, err := sqlx.ConnectContext(ctx, driverName, cfg.PostgresDSN())
	took := time.Since(start)
	if err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			append(dbAttrs(cfg), slog.String("status", "fail"), slog.Duration("duration", logger.RoundMS(took)), logger.Err(err))...,
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		append(dbAttrs(cfg),
			slog.String("status", "ok"),
			slog.Int("pool_open", cfg.MaxConnections),
			slog.Duration("duration", logger.RoundMS(took)),
		)...,
	)
	return db, nil
}

// WaitForPostgres pings dsn every interval until it answers or timeout elapses.
func WaitForPostgres(ctx context.Context, dsn string, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	for {
		db, err := sqlx.Open(driverName, dsn)
		if err == nil {
			err = db.PingContext(ctx)
			_ = db.Close()
			if err == nil {
				return nil
			}
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database: %w", lastErr)
		case <-time.After(interval):
		}
	}
}

func dbAttrs(cfg coreconfig.DatabaseConfig) []slog.Attr {
	return []slog.Attr{
		slog.String("db", cfg.Name),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
	}
}
