// Package learn holds the small classifiers the selectors use as relevance
// oracles: L2-regularised softmax regression, a random forest of CART trees
// and gradient-boosted softmax trees. Each exposes per-feature importances
// rather than a full prediction API.
package learn

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

// SoftmaxRegression is a multinomial logistic regression with an L2 penalty
// on the weights (not the intercepts). The objective is
//
//	C * sum_i -log p(y_i | x_i) + 0.5 * ||W||^2
//
// scaled by 1/(C*n), minimised with L-BFGS from a zero start, so fits are
// deterministic.
type SoftmaxRegression struct {
	C       float64
	MaxIter int

	classes  int
	features int
	weights  *mat.Dense // classes x features
	bias     []float64
}

// NewSoftmaxRegression returns a model with the given inverse regularisation
// strength and iteration cap. Non-positive values select C=1, MaxIter=100.
func NewSoftmaxRegression(c float64, maxIter int) *SoftmaxRegression {
	if c <= 0 {
		c = 1
	}
	if maxIter <= 0 {
		maxIter = 100
	}
	return &SoftmaxRegression{C: c, MaxIter: maxIter}
}

// Fit trains on x (samples x features) and class indices y in [0, classes).
// The optimiser polls ctx between iterations.
func (m *SoftmaxRegression) Fit(ctx context.Context, x *mat.Dense, y []int, classes int) error {
	n, p := x.Dims()
	if n != len(y) {
		return fmt.Errorf("softmax: %d rows but %d labels", n, len(y))
	}
	if classes < 2 {
		return fmt.Errorf("softmax: need at least 2 classes, got %d", classes)
	}
	m.classes, m.features = classes, p

	obj := &softmaxObjective{
		x:       x,
		y:       y,
		classes: classes,
		lambda:  1 / (m.C * float64(n)),
		z:       mat.NewDense(n, classes, nil),
	}

	problem := optimize.Problem{
		Func: func(theta []float64) float64 { return obj.eval(theta, nil) },
		Grad: func(grad, theta []float64) { obj.eval(theta, grad) },
		Status: func() (optimize.Status, error) {
			if err := ctx.Err(); err != nil {
				return optimize.Failure, err
			}
			return optimize.NotTerminated, nil
		},
	}
	settings := &optimize.Settings{
		MajorIterations:   m.MaxIter,
		GradientThreshold: 1e-6,
	}

	init := make([]float64, classes*p+classes)
	result, err := optimize.Minimize(problem, init, settings, &optimize.LBFGS{})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("softmax: %w", ctxErr)
	}
	if result == nil {
		return fmt.Errorf("softmax: optimisation failed: %w", err)
	}
	if !allFinite(result.X) {
		return errors.New("softmax: optimisation diverged")
	}
	if err != nil {
		log.Debug().Err(err).Str("status", result.Status.String()).Msg("Softmax optimiser stopped early")
	}

	m.weights = mat.NewDense(classes, p, append([]float64(nil), result.X[:classes*p]...))
	m.bias = append([]float64(nil), result.X[classes*p:]...)
	return nil
}

// Coefficients returns the classes x features weight matrix.
func (m *SoftmaxRegression) Coefficients() *mat.Dense { return m.weights }

// Importances returns the L1 norm of each feature's weights across classes.
func (m *SoftmaxRegression) Importances() []float64 {
	out := make([]float64, m.features)
	for j := range out {
		for k := 0; k < m.classes; k++ {
			out[j] += math.Abs(m.weights.At(k, j))
		}
	}
	return out
}

// Predict returns the most probable class index for one sample.
func (m *SoftmaxRegression) Predict(sample []float64) int {
	best, bestScore := 0, math.Inf(-1)
	for k := 0; k < m.classes; k++ {
		s := m.bias[k] + floats.Dot(m.weights.RawRowView(k), sample)
		if s > bestScore {
			best, bestScore = k, s
		}
	}
	return best
}

type softmaxObjective struct {
	x       *mat.Dense
	y       []int
	classes int
	lambda  float64
	z       *mat.Dense
}

// eval returns the objective at theta and, when grad is non-nil, writes its
// gradient. theta holds the weights row-major followed by the intercepts.
func (o *softmaxObjective) eval(theta, grad []float64) float64 {
	n, p := o.x.Dims()
	k := o.classes
	w := mat.NewDense(k, p, theta[:k*p])
	b := theta[k*p:]

	o.z.Mul(o.x, w.T())

	var loss float64
	for i := 0; i < n; i++ {
		row := o.z.RawRowView(i)
		floats.Add(row, b)
		lse := floats.LogSumExp(row)
		loss += lse - row[o.y[i]]
		if grad != nil {
			// row becomes p_ik - 1{y_i = k}
			for c := range row {
				row[c] = math.Exp(row[c] - lse)
			}
			row[o.y[i]]--
		}
	}
	loss /= float64(n)
	loss += 0.5 * o.lambda * floats.Dot(theta[:k*p], theta[:k*p])

	if grad != nil {
		gw := mat.NewDense(k, p, grad[:k*p])
		gw.Mul(o.z.T(), o.x)
		gw.Scale(1/float64(n), gw)
		floats.AddScaled(grad[:k*p], o.lambda, theta[:k*p])

		gb := grad[k*p:]
		for c := range gb {
			gb[c] = 0
		}
		for i := 0; i < n; i++ {
			floats.Add(gb, o.z.RawRowView(i))
		}
		floats.Scale(1/float64(n), gb)
	}
	return loss
}

func allFinite(xs []float64) bool {
	for _, v := range xs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
