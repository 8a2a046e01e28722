// Package frame converts between the row-oriented records a data store returns
// and the column-oriented shapes statistical modules consume and produce.
//
// Pack unions the keys of heterogeneous records into a Columnar dataset, with
// nil standing in for a key a record lacked. Unpack walks a module's Output
// column by column in ascending row index, swaps NaN for nil, and transposes
// the result into row-major Tuples ready for insertion.
package frame

import (
	"math"
	"sort"
)

// Record is one row as returned by a data store: column name to value.
type Record map[string]any

// Columnar maps a column name to one value per row.
// Every column has the same length.
type Columnar map[string][]any

// Tuple is one result row, ordered like Output.Columns.
type Tuple []any

// Pack converts records into a Columnar dataset over the union of their keys.
// A record missing a key contributes nil to that column.
func Pack(records []Record) Columnar {
	keys := make(map[string]struct{})
	for _, rec := range records {
		for k := range rec {
			keys[k] = struct{}{}
		}
	}

	cols := make(Columnar, len(keys))
	for k := range keys {
		values := make([]any, len(records))
		for i, rec := range records {
			values[i] = rec[k] // nil when absent
		}
		cols[k] = values
	}
	return cols
}

// Columns returns the column names in sorted order.
func (c Columnar) Columns() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of rows. An empty dataset has zero rows.
func (c Columnar) Len() int {
	for _, values := range c {
		return len(values)
	}
	return 0
}

// Records expands the dataset back into one Record per row. Every record
// carries every column, so keys missing before packing surface as nil.
// A dataset without columns has no row count, so it expands to nothing
// even when it was packed from keyless records.
func (c Columnar) Records() []Record {
	n := c.Len()
	records := make([]Record, n)
	for i := range records {
		rec := make(Record, len(c))
		for name, values := range c {
			rec[name] = values[i]
		}
		records[i] = rec
	}
	return records
}

// Unpack transposes a module's output into row-major tuples.
//
// Rows follow ascending row index over the union of indices present in any
// column; a column without a value at some index yields nil there. Columns
// follow out.Columns(). Floating-point NaN becomes nil; everything else is
// passed through unchanged.
func Unpack(out *Output) []Tuple {
	if out == nil {
		return nil
	}

	indexSet := make(map[int]struct{})
	for _, cells := range out.cells {
		for idx := range cells {
			indexSet[idx] = struct{}{}
		}
	}
	indices := make([]int, 0, len(indexSet))
	for idx := range indexSet {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	rows := make([]Tuple, len(indices))
	for i, idx := range indices {
		row := make(Tuple, len(out.columns))
		for j, col := range out.columns {
			if v, ok := out.cells[col][idx]; ok {
				row[j] = NullIfNaN(v)
			}
		}
		rows[i] = row
	}
	return rows
}

// NullIfNaN returns nil for a floating-point NaN and v otherwise.
func NullIfNaN(v any) any {
	switch f := v.(type) {
	case float64:
		if math.IsNaN(f) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(f)) {
			return nil
		}
	}
	return v
}
