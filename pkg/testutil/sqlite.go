package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"regcore/internal/platform/config"
	"regcore/internal/platform/database"
)

// SQLite opens an in-memory SQLite database with the registry schema
// applied. It is closed at test cleanup.
func SQLite(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.Database{
		Driver:         "sqlite3",
		DSN:            ":memory:",
		MaxOpenConns:   1,
		ConnectTimeout: time.Second,
	})
	require.NoError(t, err, "failed to open sqlite")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(ctx, db, "sqlite3"), "failed to apply sqlite schema")
	return db
}
