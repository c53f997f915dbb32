package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRunsMigrations(t *testing.T) {
	db := newTestDB(t)

	version, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, version)
}

func TestOpenIsIdempotent(t *testing.T) {
	db := newTestDB(t)

	// Re-running migrations against an already-migrated schema must be
	// a no-op, not an error (simulates a daemon restart against an
	// existing database file).
	require.NoError(t, db.runMigrations())

	version, err := db.SchemaVersion(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, version)
}
