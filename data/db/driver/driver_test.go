package driver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestOpenSQLiteMemory 测试内存库可用且可读写
func TestOpenSQLiteMemory(t *testing.T) {
	db, err := OpenSQLiteMemory()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, db.Ping(ctx))

	_, err = db.Exec(ctx, `CREATE TABLE t (id TEXT PRIMARY KEY, n INTEGER)`)
	require.NoError(t, err)
	_, err = db.Exec(ctx, `INSERT INTO t (id, n) VALUES (?, ?)`, "a", 1)
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(ctx, `SELECT n FROM t WHERE id = ?`, "a").Scan(&n))
	require.Equal(t, 1, n)
}
