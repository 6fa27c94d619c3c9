// Package dataset turns a raw collision table into the numeric feature matrix
// consumed by the selectors. It holds the immutable Frame of raw cells, the CSV
// loader, the configuration-driven Recoder and the validated FeatureMatrix.
package dataset

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Construction preconditions for a FeatureMatrix.
const (
	MinSamples  = 300
	MinFeatures = 8
	MinClasses  = 2
)

// ConstructionError reports a violated FeatureMatrix precondition or a cell the
// recoding step could not turn into a number.
type ConstructionError struct {
	Field  string
	Reason string
}

func (e *ConstructionError) Error() string {
	if e.Field == "" {
		return "feature matrix construction: " + e.Reason
	}
	return fmt.Sprintf("feature matrix construction: %s: %s", e.Field, e.Reason)
}

func constructionErr(field, format string, args ...interface{}) *ConstructionError {
	return &ConstructionError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FeatureMatrix is a read-only snapshot of named numeric feature columns and
// the label vector for one analysis run. Slices returned by its accessors are
// shared and must not be modified.
type FeatureMatrix struct {
	names   []string
	index   map[string]int
	columns [][]float64
	labels  []int
	classes []int
}

// NewFeatureMatrix validates and wraps columns and labels. Names must be unique
// and in the same order as columns. The inputs are copied.
func NewFeatureMatrix(names []string, columns [][]float64, labels []int) (*FeatureMatrix, error) {
	if len(names) != len(columns) {
		return nil, constructionErr("features", "%d names for %d columns", len(names), len(columns))
	}
	if len(names) < MinFeatures {
		return nil, constructionErr("features", "need at least %d features, got %d", MinFeatures, len(names))
	}
	n := len(labels)
	if n < MinSamples {
		return nil, constructionErr("labels", "need at least %d samples, got %d", MinSamples, n)
	}

	fm := &FeatureMatrix{
		names:   make([]string, len(names)),
		index:   make(map[string]int, len(names)),
		columns: make([][]float64, len(columns)),
		labels:  make([]int, n),
	}
	copy(fm.names, names)
	copy(fm.labels, labels)

	for j, name := range names {
		if name == "" {
			return nil, constructionErr("features", "column %d has an empty name", j)
		}
		if _, dup := fm.index[name]; dup {
			return nil, constructionErr(name, "duplicate feature name")
		}
		fm.index[name] = j

		col := columns[j]
		if len(col) != n {
			return nil, constructionErr(name, "column has %d values, labels have %d", len(col), n)
		}
		for i, v := range col {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, constructionErr(name, "non-finite value at row %d", i)
			}
		}
		fm.columns[j] = append([]float64(nil), col...)
	}

	seen := make(map[int]struct{})
	for i, l := range labels {
		if l < 0 {
			return nil, constructionErr("labels", "negative class code %d at row %d", l, i)
		}
		if _, ok := seen[l]; !ok {
			seen[l] = struct{}{}
			fm.classes = append(fm.classes, l)
		}
	}
	if len(fm.classes) < MinClasses {
		return nil, constructionErr("labels", "need at least %d distinct classes, got %d", MinClasses, len(fm.classes))
	}
	sort.Ints(fm.classes)

	return fm, nil
}

// Names returns feature names in matrix order.
func (fm *FeatureMatrix) Names() []string { return fm.names }

// NumFeatures returns the number of feature columns.
func (fm *FeatureMatrix) NumFeatures() int { return len(fm.names) }

// NumSamples returns the number of rows.
func (fm *FeatureMatrix) NumSamples() int { return len(fm.labels) }

// Column returns the j-th feature column.
func (fm *FeatureMatrix) Column(j int) []float64 { return fm.columns[j] }

// Columns returns every feature column in matrix order.
func (fm *FeatureMatrix) Columns() [][]float64 { return fm.columns }

// Labels returns the class code of every row.
func (fm *FeatureMatrix) Labels() []int { return fm.labels }

// Classes returns the distinct class codes in ascending order.
func (fm *FeatureMatrix) Classes() []int { return fm.classes }

// Index returns the position of the named feature.
func (fm *FeatureMatrix) Index(name string) (int, bool) {
	j, ok := fm.index[name]
	return j, ok
}

// LabelsFloat returns the labels as float64 values, for statistics that treat
// the ordinal class code as numeric.
func (fm *FeatureMatrix) LabelsFloat() []float64 {
	out := make([]float64, len(fm.labels))
	for i, l := range fm.labels {
		out[i] = float64(l)
	}
	return out
}

// ClassIndex maps every label to its position in Classes().
func (fm *FeatureMatrix) ClassIndex() []int {
	pos := make(map[int]int, len(fm.classes))
	for i, c := range fm.classes {
		pos[c] = i
	}
	out := make([]int, len(fm.labels))
	for i, l := range fm.labels {
		out[i] = pos[l]
	}
	return out
}

// Dense builds a fresh samples-by-features matrix holding the selected columns
// in the given order. A nil cols selects every column.
func (fm *FeatureMatrix) Dense(cols []int) *mat.Dense {
	if cols == nil {
		cols = make([]int, len(fm.columns))
		for j := range cols {
			cols[j] = j
		}
	}
	d := mat.NewDense(fm.NumSamples(), len(cols), nil)
	for c, j := range cols {
		for i, v := range fm.columns[j] {
			d.Set(i, c, v)
		}
	}
	return d
}
