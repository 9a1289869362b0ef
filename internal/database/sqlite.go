package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"

	_ "modernc.org/sqlite"
)

// NewSQLite opens the embedded store used when STORE_DRIVER=sqlite.
// SQLite serialises writers, so the pool is pinned to one connection.
func NewSQLite(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", cfg.SQLiteDSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	log.Info().Str("dsn", cfg.SQLiteDSN).Msg("SQLite opened")
	return db, nil
}
