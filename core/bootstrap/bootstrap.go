// Package bootstrap initializes logging and the record store backend selected
// by configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/kitwatch/core/config"
	coredatabase "github.com/m3rciful/kitwatch/core/database"
	"github.com/m3rciful/kitwatch/core/logger"
	"github.com/m3rciful/kitwatch/core/records"
)

// Options control the bootstrap pipeline. Nil hooks select the defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coreconfig.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, coreconfig.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store *records.Store
	// DB is nil for the file backend.
	DB *sqlx.DB
}

// Close releases the database pool, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger and opens the record store. For the sql backend
// it connects to the database and applies migrations.
func Run(ctx context.Context, opts Options) (*Result, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	switch cfg.Store.Backend {
	case coreconfig.StoreBackendFile:
		return &Result{Store: records.NewStore(records.NewFileBackend(cfg.Store.Path))}, nil
	case coreconfig.StoreBackendSQL:
		return openSQL(ctx, cfg.Database, opts)
	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.Store.Backend)
	}
}

func openSQL(ctx context.Context, dbCfg coreconfig.DatabaseConfig, opts Options) (*Result, error) {
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, dbCfg); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	return &Result{Store: records.NewStore(records.NewSQLBackend(db)), DB: db}, nil
}
