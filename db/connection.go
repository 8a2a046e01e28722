package db

import (
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/baseline/errors"
)

// SQLiteDriver is the driver name registered by go-sqlite3.
const SQLiteDriver = "sqlite3"

// SQLiteBusyTimeoutMS is how long sqlite waits on a locked database.
const SQLiteBusyTimeoutMS = 5000

// Open opens a SQLite database at the specified path with WAL, foreign keys
// and a busy timeout. If logger is provided, logs database operations;
// otherwise operates silently.
func Open(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "path", path)
	}
	db, err := sql.Open(SQLiteDriver, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Every pooled connection to :memory: is a separate database
	if isMemory(path) {
		db.SetMaxOpenConns(1)
	}

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
		{"PRAGMA busy_timeout = 5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "failed to %s", p.what)
		}
	}

	if logger != nil {
		logger.Infow("Database opened",
			"path", path,
			"wal_mode", !isMemory(path),
			"foreign_keys", true,
		)
	}
	return db, nil
}

// OpenWithMigrations opens a SQLite database and applies pending migrations.
func OpenWithMigrations(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	db, err := Open(path, logger)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := Migrate(db, logger); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "migrate %s", path)
	}
	return db, nil
}

// Connect opens the data store for driver. sqlite goes through Open; any
// other driver must be linked into the binary and is checked with a ping.
func Connect(driver, dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if driver == "" || driver == SQLiteDriver || driver == "sqlite" {
		return Open(dsn, logger)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.WithHintf(
			errors.Wrapf(err, "failed to open %s database", driver),
			"the %s driver must be compiled into this binary", driver)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "failed to reach %s database", driver)
	}
	if logger != nil {
		logger.Infow("Database opened", "driver", driver)
	}
	return db, nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.Contains(path, "mode=memory")
}
