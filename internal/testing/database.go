package testing

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/teranos/baseline/db"
)

// CreateTestDB creates an in-memory SQLite test database with all
// migrations applied. Automatically registers cleanup via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(":memory:", nil)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}

// CreateTestSession wraps CreateTestDB in a sqlite session.
func CreateTestSession(t *testing.T) *db.Session {
	t.Helper()
	return db.NewSession(CreateTestDB(t), db.SQLite{}, zap.NewNop().Sugar())
}

// AddDefinition registers a baseline definition in the sqlite catalog.
func AddDefinition(t *testing.T, conn *sql.DB, schema, name, comment string) {
	t.Helper()
	if _, err := conn.Exec(
		"INSERT INTO baseline_catalog (schema_name, name, comment) VALUES (?, ?, ?)",
		schema, name, comment,
	); err != nil {
		t.Fatalf("Failed to add definition %s: %v", name, err)
	}
}

// WriteModule writes <base>/<name>/<name>.<ext> and returns its path.
func WriteModule(t *testing.T, base, name, ext, source string) string {
	t.Helper()
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create module dir: %v", err)
	}
	path := filepath.Join(dir, name+"."+ext)
	if err := os.WriteFile(path, []byte(source), 0o644); err != nil {
		t.Fatalf("Failed to write module %s: %v", name, err)
	}
	return path
}
