package selection

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"ksi-rank/internal/dataset"
	"ksi-rank/internal/learn"
)

// EmbeddedLinear fits an L2-regularised softmax regression on the raw
// features and keeps features whose summed absolute coefficient is at least
// the mean, capped at k. Scores hold those coefficient magnitudes.
type EmbeddedLinear struct {
	C       float64
	MaxIter int
}

func NewEmbeddedLinear(c float64, maxIter int) *EmbeddedLinear {
	return &EmbeddedLinear{C: c, MaxIter: maxIter}
}

func (e *EmbeddedLinear) Name() string { return EmbeddedLinearName }

func (e *EmbeddedLinear) Select(ctx context.Context, fm *dataset.FeatureMatrix, k int) (SupportResult, error) {
	if err := checkK(e.Name(), k); err != nil {
		return SupportResult{}, err
	}

	model := learn.NewSoftmaxRegression(e.C, e.MaxIter)
	if err := model.Fit(ctx, fm.Dense(nil), fm.ClassIndex(), len(fm.Classes())); err != nil {
		return SupportResult{}, selectionErr(e.Name(), "model fit failed", err)
	}
	scores := model.Importances()

	if k >= fm.NumFeatures() {
		return selectAll(e.Name(), fm, scores), nil
	}
	return newResult(e.Name(), fm, thresholdTopK(scores, k), scores), nil
}

func toDense(cols [][]float64) *mat.Dense {
	d := mat.NewDense(len(cols[0]), len(cols), nil)
	for j, col := range cols {
		for i, v := range col {
			d.Set(i, j, v)
		}
	}
	return d
}
