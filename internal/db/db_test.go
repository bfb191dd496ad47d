package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenCreatesSchema(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "test.db"), "")
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"admin_users", "draws", "tickets", "winners"} {
		var name string
		err := conn.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, "table %s missing", table)
	}
}

func TestEnsureAdmin(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "test.db"), "")
	require.NoError(t, err)
	defer conn.Close()
	ctx := context.Background()

	require.NoError(t, EnsureAdmin(ctx, conn, "admin", "first-password"))

	user, err := AdminByUsername(ctx, conn, "admin")
	require.NoError(t, err)
	assert.True(t, user.VerifyPassword("first-password"))

	// A second call never overwrites the existing account.
	require.NoError(t, EnsureAdmin(ctx, conn, "admin", "other-password"))
	user, err = AdminByUsername(ctx, conn, "admin")
	require.NoError(t, err)
	assert.True(t, user.VerifyPassword("first-password"))
	assert.False(t, user.VerifyPassword("other-password"))

	_, err = AdminByUsername(ctx, conn, "nobody")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
