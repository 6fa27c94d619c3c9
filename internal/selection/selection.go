// Package selection implements the feature selectors that vote in the
// consensus ranking. Every selector reads a shared, read-only FeatureMatrix and
// returns a SupportResult; none of them mutates the matrix, so they may run
// concurrently.
package selection

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ksi-rank/internal/dataset"
)

// Selector picks at most k features of a matrix by some relevance criterion.
type Selector interface {
	Name() string
	Select(ctx context.Context, fm *dataset.FeatureMatrix, k int) (SupportResult, error)
}

// SupportResult is the outcome of one selector run.
type SupportResult struct {
	Selector string    `json:"selector"`
	Mask     []bool    `json:"mask"`     // matrix order
	Selected []string  `json:"selected"` // relevance order
	Scores   []float64 `json:"scores"`   // matrix order, meaning depends on the selector
	PValues  []float64 `json:"p_values,omitempty"`
}

// Count returns the number of selected features.
func (r SupportResult) Count() int {
	n := 0
	for _, m := range r.Mask {
		if m {
			n++
		}
	}
	return n
}

// SelectionError reports a selector that could not produce a result.
type SelectionError struct {
	Selector string
	Reason   string
	Err      error
}

func (e *SelectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("selector %s: %s: %v", e.Selector, e.Reason, e.Err)
	}
	return fmt.Sprintf("selector %s: %s", e.Selector, e.Reason)
}

func (e *SelectionError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a selector that ran out of time.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

func selectionErr(selector, reason string, err error) *SelectionError {
	return &SelectionError{Selector: selector, Reason: reason, Err: err}
}

func checkK(selector string, k int) error {
	if k < 1 {
		return selectionErr(selector, fmt.Sprintf("k must be positive, got %d", k), nil)
	}
	return nil
}

// newResult builds a result selecting the columns in order, most relevant
// first.
func newResult(name string, fm *dataset.FeatureMatrix, order []int, scores []float64) SupportResult {
	names := fm.Names()
	res := SupportResult{
		Selector: name,
		Mask:     make([]bool, len(names)),
		Selected: make([]string, 0, len(order)),
		Scores:   scores,
	}
	for _, j := range order {
		res.Mask[j] = true
		res.Selected = append(res.Selected, names[j])
	}
	return res
}

// rankDescending returns column indices by descending score. Equal scores keep
// column order.
func rankDescending(scores []float64) []int {
	order := make([]int, len(scores))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})
	return order
}

// topK returns the first k indices of the descending ranking restricted to
// eligible columns. A nil eligible admits every column.
func topK(scores []float64, k int, eligible []bool) []int {
	out := make([]int, 0, k)
	for _, j := range rankDescending(scores) {
		if len(out) == k {
			break
		}
		if eligible != nil && !eligible[j] {
			continue
		}
		out = append(out, j)
	}
	return out
}

// thresholdTopK keeps columns whose score is at least the mean score, capped at
// k by magnitude.
func thresholdTopK(scores []float64, k int) []int {
	var mean float64
	for _, s := range scores {
		mean += s
	}
	mean /= float64(len(scores))

	eligible := make([]bool, len(scores))
	for j, s := range scores {
		eligible[j] = s >= mean
	}
	return topK(scores, k, eligible)
}

// minMaxColumns rescales every column into [0,1]. Constant columns become all
// zero. The second return value flags the non-constant columns.
func minMaxColumns(fm *dataset.FeatureMatrix) ([][]float64, []bool) {
	cols := fm.Columns()
	out := make([][]float64, len(cols))
	varying := make([]bool, len(cols))
	for j, col := range cols {
		lo, hi := col[0], col[0]
		for _, v := range col {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		scaled := make([]float64, len(col))
		if span := hi - lo; span > 0 {
			varying[j] = true
			for i, v := range col {
				scaled[i] = (v - lo) / span
			}
		}
		out[j] = scaled
	}
	return out, varying
}

func pickColumns(cols [][]float64, subset []int) [][]float64 {
	out := make([][]float64, len(subset))
	for c, j := range subset {
		out[c] = cols[j]
	}
	return out
}

// selectAll selects every column, ordered by descending score.
func selectAll(name string, fm *dataset.FeatureMatrix, scores []float64) SupportResult {
	return newResult(name, fm, rankDescending(scores), scores)
}
