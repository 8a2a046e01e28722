package db

import (
	"strings"

	"github.com/teranos/baseline/errors"
)

// ErrDatabaseClosed is returned when operations are attempted on a closed database.
// This typically happens when a pass is interrupted and main closes the
// session while baselines are still being processed.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed checks if an error indicates the database connection is closed.
// Driver errors are matched on their message since they cannot be wrapped at
// the source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
