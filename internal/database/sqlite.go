package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // driver: sqlite
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
  user_id    TEXT NOT NULL,
  exam_id    TEXT NOT NULL,
  session_id TEXT NOT NULL,
  record     TEXT NOT NULL,
  saved_at   INTEGER NOT NULL,
  PRIMARY KEY (user_id, exam_id)
);

CREATE TABLE IF NOT EXISTS submitted_markers (
  user_id      TEXT NOT NULL,
  exam_id      TEXT NOT NULL,
  submitted_at INTEGER NOT NULL,
  PRIMARY KEY (user_id, exam_id)
);

CREATE TABLE IF NOT EXISTS session_leases (
  user_id    TEXT NOT NULL,
  exam_id    TEXT NOT NULL,
  holder     TEXT NOT NULL,
  expires_at INTEGER NOT NULL,
  PRIMARY KEY (user_id, exam_id)
);
`

// OpenSQLite opens the local checkpoint database and ensures its schema exists.
func OpenSQLite(ctx context.Context, dsn string, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure sqlite schema: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("SQLite checkpoint store opened")
	return db, nil
}
