// Package database provides ready-to-use database clients for tests.
package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/test/util"
)

// NewTestClient creates a migrated client backed by a temporary SQLite file.
// The connection is closed when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	return newClient(t, util.SQLiteURL(t))
}

// NewPostgresTestClient creates a migrated client in a per-test PostgreSQL
// schema. Skipped when no PostgreSQL is reachable.
func NewPostgresTestClient(t *testing.T) *database.Client {
	t.Helper()
	return newClient(t, util.PostgresURL(t))
}

func newClient(t *testing.T, url string) *database.Client {
	t.Helper()
	cfg, err := database.ParseURL(url)
	require.NoError(t, err)

	client, err := database.NewClient(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}
