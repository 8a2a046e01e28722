package db

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen(t *testing.T) {
	t.Run("opens database successfully", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "test.db")

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		require.NotNil(t, db)
		defer db.Close()

		var journalMode string
		require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
		assert.Equal(t, "wal", journalMode)

		var foreignKeys int
		require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
		assert.Equal(t, 1, foreignKeys)

		var busyTimeout int
		require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
		assert.Equal(t, SQLiteBusyTimeoutMS, busyTimeout)
	})

	t.Run("returns error for invalid path", func(t *testing.T) {
		db, err := Open("/invalid/nonexistent/path/db.sqlite", nil)
		if err == nil && db != nil {
			err = db.Ping()
			db.Close()
		}
		assert.Error(t, err)
	})

	t.Run("creates database file if it doesn't exist", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "new.db")
		_, err := os.Stat(dbPath)
		assert.True(t, os.IsNotExist(err))

		db, err := Open(dbPath, nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = os.Stat(dbPath)
		assert.NoError(t, err)
	})

	t.Run("in-memory database keeps one connection", func(t *testing.T) {
		db, err := Open(":memory:", nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec("CREATE TABLE t (x)")
		require.NoError(t, err)
		// Would fail with "no such table" on a second pooled connection
		_, err = db.Exec("INSERT INTO t VALUES (1)")
		require.NoError(t, err)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
	})
}

func TestOpen_WithLogger(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	require.NotNil(t, db)
	defer db.Close()
}

func TestOpenWithMigrations(t *testing.T) {
	t.Run("opens and migrates", func(t *testing.T) {
		db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		for _, table := range []string{"schema_migrations", "baseline_catalog", "baseline_runs"} {
			var n int
			require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
			assert.Equal(t, 1, n, table)
		}
	})

	t.Run("errors carry stack traces", func(t *testing.T) {
		tmpDir := t.TempDir()
		dbPath := filepath.Join(tmpDir, "test.db")
		first, err := Open(dbPath, nil)
		require.NoError(t, err)
		first.Close()

		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		require.NoError(t, os.Chmod(tmpDir, 0o555))
		defer os.Chmod(tmpDir, 0o755)

		db, err := OpenWithMigrations(dbPath, nil)
		require.Error(t, err)
		assert.Nil(t, db)
		assert.Contains(t, fmt.Sprintf("%+v", err), "connection.go")
	})
}

func TestConnect(t *testing.T) {
	t.Run("sqlite aliases go through Open", func(t *testing.T) {
		for _, driver := range []string{"", "sqlite", "sqlite3"} {
			db, err := Connect(driver, ":memory:", nil)
			require.NoError(t, err, driver)
			db.Close()
		}
	})

	t.Run("unregistered driver explains itself", func(t *testing.T) {
		_, err := Connect("snowflake", "user@account/db", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "snowflake")
	})
}
