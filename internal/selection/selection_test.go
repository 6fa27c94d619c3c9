package selection

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ksi-rank/internal/dataset"
)

// signalMatrix builds f1..f8 over 300 rows with two classes, where f1 equals
// the label and the rest is uniform noise.
func signalMatrix(t *testing.T, seed int64) *dataset.FeatureMatrix {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	const rows, features = 300, 8

	labels := make([]int, rows)
	for i := range labels {
		labels[i] = i % 2
	}
	names := make([]string, features)
	cols := make([][]float64, features)
	for j := range cols {
		names[j] = fmt.Sprintf("f%d", j+1)
		cols[j] = make([]float64, rows)
		for i := range cols[j] {
			if j == 0 {
				cols[j][i] = float64(labels[i])
			} else {
				cols[j][i] = rng.Float64()
			}
		}
	}
	fm, err := dataset.NewFeatureMatrix(names, cols, labels)
	require.NoError(t, err)
	return fm
}

func fastSelectors() []Selector {
	return []Selector{
		NewCorrelation(),
		NewChiSquare(),
		NewRecursiveElimination(3, 1, 100),
		NewEmbeddedLinear(1, 100),
		NewEmbeddedTree(25, 42),
		NewBoosted(15, 0.1, 0.5, 42),
	}
}

func TestSelectors_RespectK(t *testing.T) {
	fm := signalMatrix(t, 1)
	ctx := context.Background()

	for _, s := range fastSelectors() {
		for _, k := range []int{1, 3, 5} {
			t.Run(fmt.Sprintf("%s/k=%d", s.Name(), k), func(t *testing.T) {
				res, err := s.Select(ctx, fm, k)
				require.NoError(t, err)
				assert.Equal(t, s.Name(), res.Selector)
				assert.LessOrEqual(t, len(res.Selected), k)
				assert.Equal(t, len(res.Selected), res.Count())
				assert.Len(t, res.Mask, fm.NumFeatures())
				assert.Len(t, res.Scores, fm.NumFeatures())

				for _, name := range res.Selected {
					j, ok := fm.Index(name)
					require.True(t, ok)
					assert.True(t, res.Mask[j], name)
				}
			})
		}
	}
}

func TestSelectors_KAtLeastFeatureCountSelectsAll(t *testing.T) {
	fm := signalMatrix(t, 2)
	ctx := context.Background()

	for _, s := range fastSelectors() {
		for _, k := range []int{8, 20} {
			res, err := s.Select(ctx, fm, k)
			require.NoError(t, err, s.Name())
			assert.Len(t, res.Selected, 8, s.Name())
			for j, m := range res.Mask {
				assert.True(t, m, "%s: feature %d", s.Name(), j)
			}
		}
	}
}

func TestSelectors_RejectNonPositiveK(t *testing.T) {
	fm := signalMatrix(t, 3)
	for _, s := range fastSelectors() {
		_, err := s.Select(context.Background(), fm, 0)
		var se *SelectionError
		require.ErrorAs(t, err, &se, s.Name())
		assert.Equal(t, s.Name(), se.Selector)
	}
}

func TestSelectors_FindSignalFeature(t *testing.T) {
	fm := signalMatrix(t, 4)
	ctx := context.Background()

	for _, s := range []Selector{
		NewCorrelation(),
		NewChiSquare(),
		NewRecursiveElimination(3, 1, 100),
		NewEmbeddedLinear(1, 100),
		NewEmbeddedTree(25, 42),
	} {
		res, err := s.Select(ctx, fm, 3)
		require.NoError(t, err, s.Name())
		assert.Contains(t, res.Selected, "f1", s.Name())
		assert.Equal(t, "f1", res.Selected[0], s.Name())
	}
}

func TestCorrelation_PerfectCorrelationWithKOne(t *testing.T) {
	fm := signalMatrix(t, 5)

	res, err := NewCorrelation().Select(context.Background(), fm, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, res.Selected)
	assert.InDelta(t, 1.0, res.Scores[0], 1e-12)
}

func TestCorrelation_ConstantColumnScoresZero(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e", "f", "g", "const"}
	rng := rand.New(rand.NewSource(6))
	labels := make([]int, 300)
	cols := make([][]float64, len(names))
	for i := range labels {
		labels[i] = i % 3
	}
	for j := range cols {
		cols[j] = make([]float64, 300)
		if names[j] == "const" {
			for i := range cols[j] {
				cols[j][i] = 7
			}
			continue
		}
		for i := range cols[j] {
			cols[j][i] = rng.Float64()
		}
	}
	fm, err := dataset.NewFeatureMatrix(names, cols, labels)
	require.NoError(t, err)

	res, err := NewCorrelation().Select(context.Background(), fm, 7)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Scores[7])
	assert.False(t, res.Mask[7])
}

func TestCorrelation_TiesPreferLaterColumns(t *testing.T) {
	fm := signalMatrix(t, 7)
	cols := fm.Columns()
	names := append([]string(nil), fm.Names()...)
	dup := make([][]float64, len(cols))
	copy(dup, cols)
	// f2 becomes a second exact copy of the label.
	dup[1] = cols[0]
	fm2, err := dataset.NewFeatureMatrix(names, dup, fm.Labels())
	require.NoError(t, err)

	res, err := NewCorrelation().Select(context.Background(), fm2, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, res.Selected)
}

func TestCorrelation_ConstantColumnRanksBelowUncorrelated(t *testing.T) {
	const rows = 300
	names := make([]string, 8)
	cols := make([][]float64, 8)
	labels := make([]int, rows)
	for i := range labels {
		labels[i] = i % 2
	}
	for j := range cols {
		names[j] = fmt.Sprintf("f%d", j+1)
		cols[j] = make([]float64, rows)
		for i := range cols[j] {
			if j == 7 {
				cols[j][i] = 5
			} else {
				cols[j][i] = float64((i / 2) % 2)
			}
		}
	}
	fm, err := dataset.NewFeatureMatrix(names, cols, labels)
	require.NoError(t, err)

	res, err := NewCorrelation().Select(context.Background(), fm, 1)
	require.NoError(t, err)
	require.Len(t, res.Selected, 1)
	assert.NotEqual(t, "f8", res.Selected[0])
	assert.False(t, res.Mask[7])
	assert.Equal(t, 0.0, res.Scores[7])

	res, err = NewCorrelation().Select(context.Background(), fm, 7)
	require.NoError(t, err)
	assert.NotContains(t, res.Selected, "f8")
}

func TestChiSquare_ConstantColumnNeverSelected(t *testing.T) {
	fm := signalMatrix(t, 8)
	cols := append([][]float64(nil), fm.Columns()...)
	constant := make([]float64, fm.NumSamples())
	cols[3] = constant
	fm2, err := dataset.NewFeatureMatrix(fm.Names(), cols, fm.Labels())
	require.NoError(t, err)

	res, err := NewChiSquare().Select(context.Background(), fm2, 7)
	require.NoError(t, err)
	assert.False(t, res.Mask[3])
	assert.Len(t, res.Selected, 7)
	assert.Equal(t, 0.0, res.Scores[3])
	assert.Equal(t, 1.0, res.PValues[3])
	for _, p := range res.PValues {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
	assert.Less(t, res.PValues[0], 1e-6)
}

func TestChiSquare_AllConstantFails(t *testing.T) {
	names := make([]string, 8)
	cols := make([][]float64, 8)
	labels := make([]int, 300)
	for i := range labels {
		labels[i] = i % 2
	}
	for j := range cols {
		names[j] = fmt.Sprintf("c%d", j)
		cols[j] = make([]float64, 300)
	}
	fm, err := dataset.NewFeatureMatrix(names, cols, labels)
	require.NoError(t, err)

	_, err = NewChiSquare().Select(context.Background(), fm, 3)
	var se *SelectionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, ChiSquareName, se.Selector)
}

func TestRecursiveElimination_Ranks(t *testing.T) {
	fm := signalMatrix(t, 9)

	// 8 -> 5 -> 3 features in two rounds.
	res, err := NewRecursiveElimination(3, 1, 100).Select(context.Background(), fm, 3)
	require.NoError(t, err)
	assert.Len(t, res.Selected, 3)

	counts := map[float64]int{}
	for _, r := range res.Scores {
		counts[r]++
	}
	assert.Equal(t, map[float64]int{1: 3, 2: 2, 3: 3}, counts)
	for j, m := range res.Mask {
		assert.Equal(t, m, res.Scores[j] == 1)
	}
}

func TestSelectors_Deterministic(t *testing.T) {
	fm := signalMatrix(t, 10)
	ctx := context.Background()

	for _, s := range fastSelectors() {
		a, err := s.Select(ctx, fm, 4)
		require.NoError(t, err)
		b, err := s.Select(ctx, fm, 4)
		require.NoError(t, err)
		assert.Equal(t, a, b, s.Name())
	}
}

func TestEmbeddedTree_Cancelled(t *testing.T) {
	fm := signalMatrix(t, 11)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbeddedTree(50, 1).Select(ctx, fm, 3)
	var se *SelectionError
	require.ErrorAs(t, err, &se)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, IsTimeout(err))
}

func TestBuild(t *testing.T) {
	sels, err := Build(nil, Options{Seed: 1})
	require.NoError(t, err)
	require.Len(t, sels, len(DefaultNames))
	for i, s := range sels {
		assert.Equal(t, DefaultNames[i], s.Name())
	}

	sels, err = Build([]string{BoostedName, CorrelationName}, Options{ForestTrees: 10})
	require.NoError(t, err)
	assert.Equal(t, BoostedName, sels[0].Name())

	_, err = Build([]string{"lasso"}, Options{})
	assert.Error(t, err)
	_, err = Build([]string{CorrelationName, CorrelationName}, Options{})
	assert.Error(t, err)
}
