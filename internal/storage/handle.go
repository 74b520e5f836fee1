// Package storage persists the open book and its viewport state.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/spherical-ai/spherical/libs/reader-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/observability"
	"github.com/spherical-ai/spherical/libs/reader-engine/internal/schedule"
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Handle opens the database on first use and closes it when the last user
// releases it.
type Handle struct {
	cfg    config.DatabaseConfig
	logger *observability.Logger
	retry  schedule.RetryConfig

	mu   sync.Mutex
	db   *sql.DB
	refs int
}

// NewHandle prepares a handle; nothing is opened until Acquire.
func NewHandle(cfg config.DatabaseConfig, logger *observability.Logger) *Handle {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Handle{
		cfg:    cfg,
		logger: logger.WithOperation("storage"),
		retry:  schedule.DefaultRetryConfig(),
	}
}

// Acquire returns the open database, opening and migrating it if needed.
// Every successful Acquire must be paired with Release.
func (h *Handle) Acquire(ctx context.Context) (*sql.DB, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.db == nil {
		db, err := h.open(ctx)
		if err != nil {
			return nil, err
		}
		h.db = db
	}
	h.refs++
	return h.db, nil
}

// Release drops one reference, closing the database at zero.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.refs == 0 {
		return nil
	}
	h.refs--
	if h.refs > 0 || h.db == nil {
		return nil
	}
	err := h.db.Close()
	h.db = nil
	h.logger.Debug().Msg("database closed")
	return err
}

// Refs returns the number of outstanding references.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// With runs fn with an acquired database.
func (h *Handle) With(ctx context.Context, fn func(DB) error) error {
	db, err := h.Acquire(ctx)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn(db)
}

func (h *Handle) open(ctx context.Context) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch h.cfg.Driver {
	case "", "sqlite":
		db, err = sql.Open("sqlite3", sqliteDSN(h.cfg.SQLite))
		if err == nil {
			// One writer; more connections only contend on the file lock.
			maxConns := h.cfg.SQLite.MaxOpenConns
			if maxConns <= 0 || h.cfg.SQLite.Path == ":memory:" {
				maxConns = 1
			}
			db.SetMaxOpenConns(maxConns)
		}
	case "postgres":
		db, err = sql.Open("postgres", h.cfg.Postgres.DSN)
		if err == nil {
			db.SetMaxOpenConns(h.cfg.Postgres.MaxOpenConns)
			db.SetMaxIdleConns(h.cfg.Postgres.MaxIdleConns)
			db.SetConnMaxLifetime(h.cfg.Postgres.ConnMaxLifetime)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", h.cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = schedule.Retry(ctx, h.retry, func(ctx context.Context) error {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	}, func(attempt int, wait time.Duration, err error) {
		h.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("database not ready, retrying")
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, db, h.cfg.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	h.logger.Debug().Str("driver", h.driverName()).Msg("database opened")
	return db, nil
}

func (h *Handle) driverName() string {
	if h.cfg.Driver == "" {
		return "sqlite"
	}
	return h.cfg.Driver
}

func sqliteDSN(cfg config.SQLiteConfig) string {
	path := cfg.Path
	if path == "" {
		path = "reader-engine.db"
	}
	if path == ":memory:" {
		return "file::memory:?_busy_timeout=5000"
	}
	dsn := "file:" + path + "?_busy_timeout=5000&_foreign_keys=on"
	if cfg.JournalMode != "" {
		dsn += "&_journal_mode=" + cfg.JournalMode
	}
	return dsn
}
