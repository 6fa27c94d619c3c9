package selection

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"ksi-rank/internal/dataset"
)

// Correlation ranks features by the magnitude of their Pearson correlation
// with the numeric label. Degenerate correlations (constant column) score zero
// and rank below every varying column. Scores hold the signed coefficients.
type Correlation struct{}

func NewCorrelation() *Correlation { return &Correlation{} }

func (c *Correlation) Name() string { return CorrelationName }

func (c *Correlation) Select(ctx context.Context, fm *dataset.FeatureMatrix, k int) (SupportResult, error) {
	if err := checkK(c.Name(), k); err != nil {
		return SupportResult{}, err
	}

	y := fm.LabelsFloat()
	scores := make([]float64, fm.NumFeatures())
	degenerate := make([]bool, len(scores))
	for j := range scores {
		if err := ctx.Err(); err != nil {
			return SupportResult{}, selectionErr(c.Name(), "interrupted", err)
		}
		r := stat.Correlation(fm.Column(j), y, nil)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			r = 0
			degenerate[j] = true
		}
		scores[j] = r
	}

	// Ascending stable sort by (varying, magnitude) and keep the tail, so among
	// equal magnitudes the later column wins.
	order := make([]int, len(scores))
	for j := range order {
		order[j] = j
	}
	sort.SliceStable(order, func(a, b int) bool {
		da, db := degenerate[order[a]], degenerate[order[b]]
		if da != db {
			return da
		}
		return math.Abs(scores[order[a]]) < math.Abs(scores[order[b]])
	})
	if k > len(order) {
		k = len(order)
	}
	tail := order[len(order)-k:]
	picked := make([]int, 0, k)
	for i := len(tail) - 1; i >= 0; i-- {
		picked = append(picked, tail[i])
	}
	return newResult(c.Name(), fm, picked, scores), nil
}
