package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestStorage returns a migrated, empty store. It uses PostgreSQL when
// TEST_DATABASE_URL is set and a private in-memory SQLite database otherwise.
func newTestStorage(t *testing.T) *GormStorage {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		dsn = ":memory:"
	}
	s, err := Open(ctx, dsn, WithPool(2, 1))
	require.NoError(t, err, "open test database %q", dsn)

	truncate := func() {
		if !isMemory(dsn) {
			require.NoError(t, s.DB().Exec("DELETE FROM job_records").Error)
		}
	}
	truncate()
	t.Cleanup(func() {
		truncate()
		_ = s.Close()
	})
	return s
}
