// Package databasetest provides migrated throw-away databases for package tests.
package databasetest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/membo/vtubot/core/config"
	"github.com/membo/vtubot/core/database"
)

// Config returns a sqlite configuration pointing into the test's temp dir.
func Config(t testing.TB) config.DatabaseConfig {
	t.Helper()
	return config.DatabaseConfig{
		Driver:         config.DriverSQLite,
		Path:           filepath.Join(t.TempDir(), "test.db"),
		MaxConnections: 1,
	}
}

// Open returns a connected sqlite database with every migration applied.
// The database is closed when the test ends.
func Open(t testing.TB) *sqlx.DB {
	t.Helper()
	cfg := Config(t)
	ctx := context.Background()

	require.NoError(t, database.RunMigrations(ctx, cfg))
	db, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
