package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"regcore/internal/platform/config"
)

var (
	//go:embed schema.sql
	postgresSchema string
	//go:embed schema_sqlite.sql
	sqliteSchema string
)

// ErrUnsupportedDriver is returned for a driver without an embedded schema.
var ErrUnsupportedDriver = errors.New("unsupported database driver")

// Open connects with the configured driver, applies pool limits and verifies
// the connection with a ping bounded by cfg.ConnectTimeout.
func Open(ctx context.Context, cfg config.Database) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == "sqlite3" {
		// SQLite has a single writer, and each connection to :memory: is its
		// own database.
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(cfg.MaxIdleConns, maxOpen))
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Driver, err)
	}
	return db, nil
}

// Schema returns the embedded schema for driver.
func Schema(driver string) (string, error) {
	switch driver {
	case "postgres", "pgx":
		return postgresSchema, nil
	case "sqlite3":
		return sqliteSchema, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

// Migrate applies the embedded schema for driver. Statements are idempotent.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	schema, err := Schema(driver)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply %s schema: %w", driver, err)
	}
	return nil
}
