package frame

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/teranos/baseline/errors"
)

// Output is what a statistical module hands back: output column to
// (row index to value). Column order is the order the module declared its
// columns in and is preserved through JSON decoding, so unpacking the same
// output always yields the same tuple layout.
type Output struct {
	columns []string
	cells   map[string]map[int]any
}

// NewOutput creates an empty output.
func NewOutput() *Output {
	return &Output{cells: make(map[string]map[int]any)}
}

// Set stores a value, appending col to the column order on first use.
func (o *Output) Set(col string, row int, value any) {
	cells, ok := o.cells[col]
	if !ok {
		cells = make(map[int]any)
		o.cells[col] = cells
		o.columns = append(o.columns, col)
	}
	cells[row] = value
}

// Value returns the value at (col, row) and whether it was present.
func (o *Output) Value(col string, row int) (any, bool) {
	v, ok := o.cells[col][row]
	return v, ok
}

// Columns returns the output columns in declaration order.
func (o *Output) Columns() []string {
	cols := make([]string, len(o.columns))
	copy(cols, o.columns)
	return cols
}

// FromColumnar builds an output that mirrors a dataset, columns sorted.
func FromColumnar(c Columnar) *Output {
	out := NewOutput()
	for _, name := range c.Columns() {
		out.columns = append(out.columns, name)
		cells := make(map[int]any, len(c[name]))
		for i, v := range c[name] {
			cells[i] = v
		}
		out.cells[name] = cells
	}
	return out
}

// UnmarshalJSON decodes {"col": {"0": v, "1": v}, ...} or {"col": [v, v], ...},
// keeping the column order of the document.
func (o *Output) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "read output")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.Newf("output must be a JSON object, got %v", tok)
	}

	out := NewOutput()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "read output column name")
		}
		col, _ := keyTok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "read output column %q", col)
		}
		cells, err := decodeColumn(raw)
		if err != nil {
			return errors.Wrapf(err, "decode output column %q", col)
		}
		if _, seen := out.cells[col]; !seen {
			out.columns = append(out.columns, col)
		}
		out.cells[col] = cells
	}
	if _, err := dec.Token(); err != nil {
		return errors.Wrap(err, "read output end")
	}

	*o = *out
	return nil
}

// MarshalJSON encodes the output as {"col": {"idx": v}} in column order.
func (o *Output) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range o.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')

		cells := make(map[string]any, len(o.cells[col]))
		for idx, v := range o.cells[col] {
			cells[strconv.Itoa(idx)] = jsonSafe(v)
		}
		body, err := json.Marshal(cells)
		if err != nil {
			return nil, errors.Wrapf(err, "encode output column %q", col)
		}
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalJSON encodes the dataset with NaN and Inf written as null and
// timestamps as RFC 3339, which is what the module runtimes read.
func (c Columnar) MarshalJSON() ([]byte, error) {
	safe := make(map[string][]any, len(c))
	for name, values := range c {
		col := make([]any, len(values))
		for i, v := range values {
			col[i] = jsonSafe(v)
		}
		safe[name] = col
	}
	return json.Marshal(safe)
}

func decodeColumn(raw json.RawMessage) (map[int]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("empty column")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	switch raw[0] {
	case '[':
		var values []any
		if err := dec.Decode(&values); err != nil {
			return nil, err
		}
		cells := make(map[int]any, len(values))
		for i, v := range values {
			cells[i] = normalize(v)
		}
		return cells, nil
	case '{':
		var byIndex map[string]any
		if err := dec.Decode(&byIndex); err != nil {
			return nil, err
		}
		cells := make(map[int]any, len(byIndex))
		for key, v := range byIndex {
			idx, err := strconv.Atoi(key)
			if err != nil {
				return nil, errors.Newf("row index %q is not an integer", key)
			}
			cells[idx] = normalize(v)
		}
		return cells, nil
	default:
		return nil, errors.Newf("column must be an array or an index object")
	}
}

// normalize turns json.Number into int64 when integral, float64 otherwise.
func normalize(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func jsonSafe(v any) any {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil
		}
	case float32:
		if math.IsNaN(float64(t)) || math.IsInf(float64(t), 0) {
			return nil
		}
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case []byte:
		return string(t)
	}
	return v
}
