package selection

import (
	"context"

	"gonum.org/v1/gonum/stat/distuv"

	"ksi-rank/internal/dataset"
)

// ChiSquare scores each min-max scaled feature with the chi-square statistic
// of its per-class totals against the totals expected from the class
// frequencies, and keeps the k highest. Constant columns score zero and are
// never selected. Scores hold the statistics and PValues their upper-tail
// probabilities.
type ChiSquare struct{}

func NewChiSquare() *ChiSquare { return &ChiSquare{} }

func (c *ChiSquare) Name() string { return ChiSquareName }

func (c *ChiSquare) Select(ctx context.Context, fm *dataset.FeatureMatrix, k int) (SupportResult, error) {
	if err := checkK(c.Name(), k); err != nil {
		return SupportResult{}, err
	}

	cols, varying := minMaxColumns(fm)
	classes := fm.Classes()
	y := fm.ClassIndex()
	n := float64(fm.NumSamples())

	classCount := make([]float64, len(classes))
	for _, ci := range y {
		classCount[ci]++
	}

	scores := make([]float64, len(cols))
	pvalues := make([]float64, len(cols))
	chi := distuv.ChiSquared{K: float64(len(classes) - 1)}
	anyVarying := false
	for j, col := range cols {
		if err := ctx.Err(); err != nil {
			return SupportResult{}, selectionErr(c.Name(), "interrupted", err)
		}
		pvalues[j] = 1
		if !varying[j] {
			continue
		}
		anyVarying = true

		observed := make([]float64, len(classes))
		var total float64
		for i, v := range col {
			observed[y[i]] += v
			total += v
		}
		var stat float64
		for ci, obs := range observed {
			expected := classCount[ci] / n * total
			if expected > 0 {
				d := obs - expected
				stat += d * d / expected
			}
		}
		scores[j] = stat
		pvalues[j] = chi.Survival(stat)
	}

	if k >= len(cols) {
		res := selectAll(c.Name(), fm, scores)
		res.PValues = pvalues
		return res, nil
	}
	if !anyVarying {
		return SupportResult{}, selectionErr(c.Name(), "every feature column is constant", nil)
	}

	res := newResult(c.Name(), fm, topK(scores, k, varying), scores)
	res.PValues = pvalues
	return res, nil
}
