package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/baseline/errors"
	"github.com/teranos/baseline/frame"
	"github.com/teranos/baseline/logger"
)

// Session is a process's connection to the data store. It is created once in
// main and passed to everything that reads or writes baseline data.
type Session struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.SugaredLogger
}

// NewSession wraps an open database.
func NewSession(db *sql.DB, dialect Dialect, log *zap.SugaredLogger) *Session {
	if dialect == nil {
		dialect = SQLite{}
	}
	if log == nil {
		log = logger.Logger
	}
	return &Session{db: db, dialect: dialect, logger: log.Named("db")}
}

// DB returns the underlying database.
func (s *Session) DB() *sql.DB { return s.db }

// Dialect returns the session's SQL dialect.
func (s *Session) Dialect() Dialect { return s.dialect }

// Close closes the underlying database.
func (s *Session) Close() error { return s.db.Close() }

// Fetch runs query and returns every row as a column-name keyed record.
// Text returned as []byte is converted to string.
func (s *Session) Fetch(ctx context.Context, query string, args ...any) ([]frame.Record, error) {
	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.closedOr(errors.Wrap(err, "query"))
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "read columns")
	}

	var records []frame.Record
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan row")
		}
		rec := make(frame.Record, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				rec[col] = string(b)
			} else {
				rec[col] = values[i]
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, s.closedOr(errors.Wrap(err, "iterate rows"))
	}

	s.logger.Debugw("Fetched rows",
		logger.FieldQuery, query,
		logger.FieldRows, len(records),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return records, nil
}

// Insert writes rows into table in one transaction. With overwrite the
// previous contents are replaced: dialects that keep the table delete its
// rows, the others drop it and recreate it from columns. Without overwrite
// the table is created only when absent and rows are appended.
func (s *Session) Insert(ctx context.Context, table string, columns []string, rows []frame.Tuple, overwrite bool) error {
	if len(columns) == 0 {
		return errors.Newf("insert into %s: no columns", table)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.closedOr(errors.Wrap(err, "begin insert"))
	}
	defer tx.Rollback()

	keep := s.dialect.KeepsTable()
	if overwrite && !keep {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return errors.Wrapf(err, "drop %s", table)
		}
	}
	if _, err := tx.ExecContext(ctx, s.createTable(table, columns, rows)); err != nil {
		return errors.Wrapf(err, "create %s", table)
	}
	if overwrite && keep {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "clear %s", table)
		}
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.dialect.QuoteIdent(c)
		marks[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO "+table+" ("+strings.Join(quoted, ", ")+") VALUES ("+strings.Join(marks, ", ")+")")
	if err != nil {
		return errors.Wrapf(err, "prepare insert into %s", table)
	}
	defer stmt.Close()

	for i, row := range rows {
		if len(row) != len(columns) {
			return errors.Newf("insert into %s: row %d has %d values for %d columns", table, i, len(row), len(columns))
		}
		args := make([]any, len(row))
		for j, v := range row {
			if args[j], err = bindValue(v); err != nil {
				return errors.Wrapf(err, "row %d column %s", i, columns[j])
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, "insert row %d into %s", i, table)
		}
	}

	if err := tx.Commit(); err != nil {
		return s.closedOr(errors.Wrapf(err, "commit insert into %s", table))
	}

	s.logger.Debugw("Inserted rows",
		logger.FieldTable, table,
		logger.FieldRows, len(rows),
		logger.FieldColumns, len(columns),
		"overwrite", overwrite,
	)
	return nil
}

// Discover lists baseline definitions in schema matching pattern.
func (s *Session) Discover(ctx context.Context, schema, pattern string) ([]Definition, error) {
	defs, err := s.dialect.Discover(ctx, s.db, schema, pattern)
	if err != nil {
		return nil, s.closedOr(errors.Wrapf(err, "discover %s in %s", pattern, schema))
	}
	return defs, nil
}

func (s *Session) createTable(table string, columns []string, rows []frame.Tuple) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		def := s.dialect.QuoteIdent(c)
		if typ := s.dialect.ColumnType(column(rows, i)); typ != "" {
			def += " " + typ
		}
		defs[i] = def
	}
	return "CREATE TABLE IF NOT EXISTS " + table + " (" + strings.Join(defs, ", ") + ")"
}

// bindValue passes scalars through and encodes nested values as JSON text.
func bindValue(v any) (any, error) {
	switch v.(type) {
	case nil, bool, string, []byte, time.Time,
		int, int8, int16, int32, int64, uint8, uint16, uint32, float32, float64:
		return v, nil
	}
	if val, ok := v.(driver.Valuer); ok {
		return val, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %T", v)
	}
	return string(data), nil
}

func column(rows []frame.Tuple, col int) []any {
	values := make([]any, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			values = append(values, row[col])
		}
	}
	return values
}

func (s *Session) closedOr(err error) error {
	if IsDatabaseClosed(err) && !errors.Is(err, ErrDatabaseClosed) {
		return errors.Mark(err, ErrDatabaseClosed)
	}
	return err
}
