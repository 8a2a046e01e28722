package baseline

import (
	"context"
	"fmt"

	"github.com/teranos/baseline/db"
	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
)

// Store is the data store a pipeline reads logs from and writes results to.
// *db.Session implements it.
type Store interface {
	Dialect() db.Dialect
	Fetch(ctx context.Context, query string, args ...any) ([]frame.Record, error)
	Insert(ctx context.Context, table string, columns []string, rows []frame.Tuple, overwrite bool) error
	Discover(ctx context.Context, schema, pattern string) ([]db.Definition, error)
}

// BuildQuery selects every column of source whose history column is strictly
// newer than now minus days. source and column must already be validated
// identifiers.
func BuildQuery(dialect db.Dialect, source string, days int, column string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s > %s", source, column, dialect.Cutoff(days))
}

// Extract runs the window query for md and packs the rows into a dataset.
// Failures are marked ErrQuery and no dataset is returned.
func Extract(ctx context.Context, store Store, md *Metadata) (frame.Columnar, string, error) {
	query := BuildQuery(store.Dialect(), md.LogSource, md.FilterDays, md.HistoryColumn)
	records, err := store.Fetch(ctx, query)
	if err != nil {
		return nil, query, errors.Mark(errors.Wrapf(err, "extract %s", md.LogSource), errors.ErrQuery)
	}
	return frame.Pack(records), query, nil
}
