package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/teranos/baseline/errors"
)

// Definition is a baseline definition as stored: its name and the raw
// metadata comment attached to it.
type Definition struct {
	Name    string
	Comment string
}

// Dialect covers the SQL that differs between data stores.
type Dialect interface {
	Name() string

	// Cutoff renders "now minus days" as a SQL expression comparable with
	// the store's timestamp columns.
	Cutoff(days int) string

	// QuoteIdent quotes a single column name.
	QuoteIdent(name string) string

	// ColumnType returns the declared type for a column holding values, or
	// "" to leave the column untyped.
	ColumnType(values []any) string

	// KeepsTable reports whether an overwrite must keep the table itself
	// and only replace its rows. Stores that carry the definition on the
	// result table set this so its comment and grants survive.
	KeepsTable() bool

	// Discover lists definitions in schema whose name matches pattern
	// (SQL LIKE wildcards).
	Discover(ctx context.Context, q Queryer, schema, pattern string) ([]Definition, error)
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// DialectFor resolves a dialect by name. An empty name picks from driver.
// catalog only applies to sqlite.
func DialectFor(name, driver, catalog string) (Dialect, error) {
	if name == "" {
		name = driver
	}
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return SQLite{Catalog: catalog}, nil
	case "snowflake":
		return Snowflake{}, nil
	default:
		return nil, errors.WithHint(
			errors.Newf("unknown SQL dialect %q", name),
			"supported dialects: sqlite, snowflake")
	}
}

// Table qualifies name with schema when one is given.
func Table(schema, name string) string {
	if schema == "" {
		return name
	}
	return schema + "." + name
}

func quoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// DefaultCatalog is the sqlite table holding baseline definitions.
const DefaultCatalog = "baseline_catalog"

// SQLite keeps definitions in a catalog table, baseline_catalog unless
// Catalog names another one with the same columns.
type SQLite struct {
	Catalog string
}

func (d SQLite) catalog() string {
	if d.Catalog == "" {
		return DefaultCatalog
	}
	return d.Catalog
}

func (SQLite) Name() string { return "sqlite" }

// Cutoff uses datetime(), which yields 'YYYY-MM-DD HH:MM:SS' in UTC.
func (SQLite) Cutoff(days int) string {
	return fmt.Sprintf("datetime('now', '-%d days')", days)
}

func (SQLite) QuoteIdent(name string) string { return quoteDouble(name) }

// ColumnType leaves columns untyped so every value keeps its own storage class.
func (SQLite) ColumnType([]any) string { return "" }

// KeepsTable is false: definitions live in the catalog, so the result table
// is dropped and recreated in the shape of the new output.
func (SQLite) KeepsTable() bool { return false }

func (d SQLite) Discover(ctx context.Context, q Queryer, schema, pattern string) ([]Definition, error) {
	catalog := d.catalog()
	rows, err := q.QueryContext(ctx,
		"SELECT name, comment FROM "+catalog+" WHERE schema_name = ? AND name LIKE ? ORDER BY name",
		schema, pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", catalog)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		var d Definition
		var comment sql.NullString
		if err := rows.Scan(&d.Name, &comment); err != nil {
			return nil, errors.Wrapf(err, "scan %s", catalog)
		}
		d.Comment = comment.String
		defs = append(defs, d)
	}
	return defs, errors.Wrapf(rows.Err(), "iterate %s", catalog)
}

// Snowflake discovers definitions as tables whose comment is the metadata.
type Snowflake struct{}

func (Snowflake) Name() string { return "snowflake" }

func (Snowflake) Cutoff(days int) string {
	return fmt.Sprintf("DATEADD(day, -%d, CURRENT_TIMESTAMP())", days)
}

func (Snowflake) QuoteIdent(name string) string { return quoteDouble(name) }

// ColumnType picks the narrowest type every non-null value fits. Integral
// and fractional numbers together widen to FLOAT; any other mix is VARCHAR.
func (Snowflake) ColumnType(values []any) string {
	typ := ""
	for _, v := range values {
		var t string
		switch v.(type) {
		case nil:
			continue
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			t = "NUMBER"
		case float32, float64:
			t = "FLOAT"
		case bool:
			t = "BOOLEAN"
		case time.Time:
			t = "TIMESTAMP_NTZ"
		default:
			return "VARCHAR"
		}
		switch {
		case typ == "" || typ == t:
			typ = t
		case (typ == "NUMBER" && t == "FLOAT") || (typ == "FLOAT" && t == "NUMBER"):
			typ = "FLOAT"
		default:
			return "VARCHAR"
		}
	}
	if typ == "" {
		return "VARCHAR"
	}
	return typ
}

// KeepsTable is true: the definition is the table's COMMENT, and Snowflake
// DDL commits on its own, so overwrite deletes rows inside the transaction
// instead of dropping the table.
func (Snowflake) KeepsTable() bool { return true }

// Discover issues SHOW TABLES, which takes no bind parameters, so the
// pattern is inlined as a string literal.
func (Snowflake) Discover(ctx context.Context, q Queryer, schema, pattern string) ([]Definition, error) {
	query := fmt.Sprintf("SHOW TABLES LIKE '%s' IN %s", strings.ReplaceAll(pattern, "'", "''"), schema)
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "show tables")
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "show tables columns")
	}
	nameIdx, commentIdx := -1, -1
	for i, c := range cols {
		switch strings.ToLower(c) {
		case "name":
			nameIdx = i
		case "comment":
			commentIdx = i
		}
	}
	if nameIdx < 0 || commentIdx < 0 {
		return nil, errors.Newf("show tables returned no name/comment columns: %v", cols)
	}

	var defs []Definition
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "scan show tables")
		}
		defs = append(defs, Definition{Name: values[nameIdx].String, Comment: values[commentIdx].String})
	}
	return defs, errors.Wrap(rows.Err(), "iterate show tables")
}
