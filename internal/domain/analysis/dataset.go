package analysis

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Dataset is an in-memory table: named columns and ordered rows of heterogeneous cells.
//
// Cells hold nil, bool, int64, float64 or string values. A Dataset handed to a
// sandbox is never mutated; engines bind a Clone.
type Dataset struct {
	Columns []string
	Rows    [][]any
}

// Validate reports structural problems: duplicate or empty column names and rows
// whose width differs from the column count.
func (d Dataset) Validate() error {
	seen := make(map[string]struct{}, len(d.Columns))
	for idx, name := range d.Columns {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("dataset: column %d has an empty name", idx)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("dataset: duplicate column %q", name)
		}
		seen[name] = struct{}{}
	}
	for idx, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("dataset: row %d has %d cells, expected %d", idx, len(row), len(d.Columns))
		}
	}
	return nil
}

// Clone returns a deep copy of the dataset.
func (d Dataset) Clone() Dataset {
	clone := Dataset{
		Columns: append([]string(nil), d.Columns...),
		Rows:    make([][]any, len(d.Rows)),
	}
	for idx, row := range d.Rows {
		clone.Rows[idx] = append([]any(nil), row...)
	}
	return clone
}

// Len returns the number of rows.
func (d Dataset) Len() int {
	return len(d.Rows)
}

// Column returns the values of the named column and whether it exists.
func (d Dataset) Column(name string) ([]any, bool) {
	idx := d.columnIndex(name)
	if idx < 0 {
		return nil, false
	}
	values := make([]any, len(d.Rows))
	for r, row := range d.Rows {
		if idx < len(row) {
			values[r] = row[idx]
		}
	}
	return values, true
}

// Records returns each row as a column-name keyed mapping.
func (d Dataset) Records() []map[string]any {
	records := make([]map[string]any, len(d.Rows))
	for r, row := range d.Rows {
		record := make(map[string]any, len(d.Columns))
		for c, name := range d.Columns {
			if c < len(row) {
				record[name] = row[c]
			} else {
				record[name] = nil
			}
		}
		records[r] = record
	}
	return records
}

// Head returns a dataset holding at most the first n rows.
func (d Dataset) Head(n int) Dataset {
	if n < 0 {
		n = 0
	}
	if n > len(d.Rows) {
		n = len(d.Rows)
	}
	head := Dataset{Columns: d.Columns, Rows: d.Rows[:n]}
	return head.Clone()
}

// Preview renders the first n rows as an aligned text table, the way a notebook
// prints a frame head. It is used to describe the data to the code generator.
func (d Dataset) Preview(n int) string {
	head := d.Head(n)
	cells := make([][]string, 0, len(head.Rows)+1)
	cells = append(cells, append([]string{""}, head.Columns...))
	for r, row := range head.Rows {
		line := make([]string, 0, len(row)+1)
		line = append(line, strconv.Itoa(r))
		for _, cell := range row {
			line = append(line, FormatCell(cell))
		}
		cells = append(cells, line)
	}

	widths := make([]int, len(cells[0]))
	for _, line := range cells {
		for c, cell := range line {
			if c < len(widths) && len(cell) > widths[c] {
				widths[c] = len(cell)
			}
		}
	}

	var b strings.Builder
	for _, line := range cells {
		for c, cell := range line {
			if c > 0 {
				b.WriteString("  ")
			}
			b.WriteString(strings.Repeat(" ", widths[c]-len(cell)))
			b.WriteString(cell)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// FormatCell renders a single cell value for previews.
func FormatCell(v any) string {
	switch value := v.(type) {
	case nil:
		return "NaN"
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

func (d Dataset) columnIndex(name string) int {
	for idx, col := range d.Columns {
		if col == name {
			return idx
		}
	}
	return -1
}

// CellFromJSON narrows a value decoded with json.Decoder.UseNumber to a cell
// type. Integral numbers become int64; nested arrays and objects are rejected.
func CellFromJSON(raw any) (any, error) {
	switch value := raw.(type) {
	case nil, bool, string:
		return value, nil
	case json.Number:
		if i, err := value.Int64(); err == nil {
			return i, nil
		}
		f, err := value.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", value)
		}
		return f, nil
	case float64:
		return value, nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", raw)
	}
}
