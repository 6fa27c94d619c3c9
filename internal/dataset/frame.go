package dataset

import (
	"fmt"
)

// Frame is an immutable column-major table of raw string cells. Every
// transformation returns a new Frame; column slices are shared between frames
// and never written after construction.
type Frame struct {
	names   []string
	index   map[string]int
	columns [][]string
	rows    int
}

// NewFrame builds a frame from a header and row-major records.
func NewFrame(header []string, records [][]string) (*Frame, error) {
	columns := make([][]string, len(header))
	for j := range columns {
		columns[j] = make([]string, len(records))
	}
	for i, rec := range records {
		if len(rec) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, header has %d", i+1, len(rec), len(header))
		}
		for j, cell := range rec {
			columns[j][i] = cell
		}
	}
	return newFrame(header, columns, len(records))
}

func newFrame(names []string, columns [][]string, rows int) (*Frame, error) {
	f := &Frame{
		names:   names,
		index:   make(map[string]int, len(names)),
		columns: columns,
		rows:    rows,
	}
	for j, name := range names {
		if _, dup := f.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		f.index[name] = j
	}
	return f, nil
}

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return f.names }

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Has reports whether the frame has the named column.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the cells of the named column.
func (f *Frame) Column(name string) ([]string, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("column %q not found", name)
	}
	return f.columns[j], nil
}

// Row returns row i as a column-name keyed map.
func (f *Frame) Row(i int) map[string]string {
	row := make(map[string]string, len(f.names))
	for j, name := range f.names {
		row[name] = f.columns[j][i]
	}
	return row
}

// Drop returns a frame without the named columns. Unknown names are an error.
func (f *Frame) Drop(names ...string) (*Frame, error) {
	skip := make(map[string]bool, len(names))
	for _, name := range names {
		if !f.Has(name) {
			return nil, fmt.Errorf("drop: column %q not found", name)
		}
		skip[name] = true
	}

	outNames := make([]string, 0, len(f.names)-len(skip))
	outCols := make([][]string, 0, len(f.names)-len(skip))
	for j, name := range f.names {
		if skip[name] {
			continue
		}
		outNames = append(outNames, name)
		outCols = append(outCols, f.columns[j])
	}
	return newFrame(outNames, outCols, f.rows)
}

// Replace returns a frame where the named column holds values.
func (f *Frame) Replace(name string, values []string) (*Frame, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("replace: column %q not found", name)
	}
	if len(values) != f.rows {
		return nil, fmt.Errorf("replace %q: %d values for %d rows", name, len(values), f.rows)
	}
	outCols := make([][]string, len(f.columns))
	copy(outCols, f.columns)
	outCols[j] = values

	outNames := make([]string, len(f.names))
	copy(outNames, f.names)
	return newFrame(outNames, outCols, f.rows)
}

// Expand returns a frame where the named column is replaced in place by the
// given columns, keeping the position of the original.
func (f *Frame) Expand(name string, names []string, columns [][]string) (*Frame, error) {
	j, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("expand: column %q not found", name)
	}

	outNames := make([]string, 0, len(f.names)-1+len(names))
	outCols := make([][]string, 0, len(f.names)-1+len(names))
	outNames = append(outNames, f.names[:j]...)
	outCols = append(outCols, f.columns[:j]...)
	outNames = append(outNames, names...)
	outCols = append(outCols, columns...)
	outNames = append(outNames, f.names[j+1:]...)
	outCols = append(outCols, f.columns[j+1:]...)
	return newFrame(outNames, outCols, f.rows)
}

// Filter returns a frame holding only the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) (bool, error)) (*Frame, error) {
	var rows []int
	for i := 0; i < f.rows; i++ {
		ok, err := keep(i)
		if err != nil {
			return nil, fmt.Errorf("filter row %d: %w", i+1, err)
		}
		if ok {
			rows = append(rows, i)
		}
	}

	outCols := make([][]string, len(f.columns))
	for j, col := range f.columns {
		out := make([]string, len(rows))
		for k, i := range rows {
			out[k] = col[i]
		}
		outCols[j] = out
	}
	outNames := make([]string, len(f.names))
	copy(outNames, f.names)
	return newFrame(outNames, outCols, len(rows))
}
