package storage

import (
	"context"
	"database/sql"
)

var schema = map[string][]string{
	"sqlite": {
		`CREATE TABLE IF NOT EXISTS books (
			id          TEXT PRIMARY KEY,
			filename    TEXT NOT NULL DEFAULT '',
			file        BLOB,
			page_number INTEGER NOT NULL DEFAULT 1,
			scale       REAL NOT NULL DEFAULT 1.5,
			highlights  TEXT NOT NULL DEFAULT '{}',
			updated_at  TIMESTAMP NOT NULL
		)`,
	},
	"postgres": {
		`CREATE TABLE IF NOT EXISTS books (
			id          TEXT PRIMARY KEY,
			filename    TEXT NOT NULL DEFAULT '',
			file        BYTEA,
			page_number INTEGER NOT NULL DEFAULT 1,
			scale       DOUBLE PRECISION NOT NULL DEFAULT 1.5,
			highlights  TEXT NOT NULL DEFAULT '{}',
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
	},
}

func migrate(ctx context.Context, db *sql.DB, driver string) error {
	if driver == "" {
		driver = "sqlite"
	}
	for _, stmt := range schema[driver] {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
