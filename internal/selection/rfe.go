package selection

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"ksi-rank/internal/dataset"
	"ksi-rank/internal/learn"
)

// RecursiveElimination repeatedly fits a softmax regression on the min-max
// scaled surviving features and drops the Step weakest by summed absolute
// coefficient until k remain. Scores hold the elimination rank: 1 for the
// survivors, larger for features dropped earlier.
type RecursiveElimination struct {
	Step    int
	C       float64
	MaxIter int
}

func NewRecursiveElimination(step int, c float64, maxIter int) *RecursiveElimination {
	if step <= 0 {
		step = 10
	}
	return &RecursiveElimination{Step: step, C: c, MaxIter: maxIter}
}

func (r *RecursiveElimination) Name() string { return RecursiveEliminationName }

func (r *RecursiveElimination) Select(ctx context.Context, fm *dataset.FeatureMatrix, k int) (SupportResult, error) {
	if err := checkK(r.Name(), k); err != nil {
		return SupportResult{}, err
	}
	p := fm.NumFeatures()
	rank := make([]float64, p)
	if k >= p {
		for j := range rank {
			rank[j] = 1
		}
		order := make([]int, p)
		for j := range order {
			order[j] = j
		}
		return newResult(r.Name(), fm, order, rank), nil
	}

	cols, _ := minMaxColumns(fm)
	y := fm.ClassIndex()
	classes := len(fm.Classes())

	active := make([]int, p)
	for j := range active {
		active[j] = j
	}
	// Rounds are counted so earlier eliminations get larger ranks.
	var dropped [][]int
	var importances []float64
	for {
		model := learn.NewSoftmaxRegression(r.C, r.MaxIter)
		if err := model.Fit(ctx, toDense(pickColumns(cols, active)), y, classes); err != nil {
			return SupportResult{}, selectionErr(r.Name(), "model fit failed", err)
		}
		importances = model.Importances()
		if len(active) == k {
			break
		}

		pos := make([]int, len(active))
		for i := range pos {
			pos[i] = i
		}
		sort.SliceStable(pos, func(a, b int) bool {
			return importances[pos[a]] < importances[pos[b]]
		})
		drop := r.Step
		if rest := len(active) - k; drop > rest {
			drop = rest
		}

		gone := make(map[int]bool, drop)
		round := make([]int, 0, drop)
		for _, i := range pos[:drop] {
			gone[i] = true
			round = append(round, active[i])
		}
		dropped = append(dropped, round)

		kept := active[:0:0]
		for i, j := range active {
			if !gone[i] {
				kept = append(kept, j)
			}
		}
		active = kept
		log.Debug().Str("selector", r.Name()).Int("remaining", len(active)).Msg("Elimination round")
	}

	for j := range rank {
		rank[j] = 1
	}
	for i, round := range dropped {
		for _, j := range round {
			rank[j] = float64(len(dropped) - i + 1)
		}
	}

	// Survivors in order of their final importance.
	pos := rankDescending(importances)
	order := make([]int, len(pos))
	for i, a := range pos {
		order[i] = active[a]
	}
	return newResult(r.Name(), fm, order, rank), nil
}
