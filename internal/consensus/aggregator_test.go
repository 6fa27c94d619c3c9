package consensus

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ksi-rank/internal/dataset"
	"ksi-rank/internal/selection"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu           sync.Mutex
	runs         map[string]int
	failures     map[string]int
	timeouts     map[string]int
	selected     map[string]float64
	aggregations int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		runs:     map[string]int{},
		failures: map[string]int{},
		timeouts: map[string]int{},
		selected: map[string]float64{},
	}
}

func (m *MockMetrics) SelectorRunsInc(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[s]++
}

func (m *MockMetrics) SelectorFailuresInc(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[s]++
}

func (m *MockMetrics) SelectorTimeoutsInc(s string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeouts[s]++
}

func (m *MockMetrics) SelectorDurationObserve(string, float64) {}

func (m *MockMetrics) SelectedFeaturesSet(s string, n float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selected[s] = n
}

func (m *MockMetrics) AggregationsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aggregations++
}

// fixedSelector selects a fixed set of feature names.
type fixedSelector struct {
	name  string
	picks []string
}

func (f fixedSelector) Name() string { return f.name }

func (f fixedSelector) Select(_ context.Context, fm *dataset.FeatureMatrix, k int) (selection.SupportResult, error) {
	res := selection.SupportResult{Selector: f.name, Mask: make([]bool, fm.NumFeatures())}
	for _, p := range f.picks {
		if len(res.Selected) == k {
			break
		}
		j, _ := fm.Index(p)
		res.Mask[j] = true
		res.Selected = append(res.Selected, p)
	}
	return res, nil
}

type failingSelector struct{ name string }

func (f failingSelector) Name() string { return f.name }

func (f failingSelector) Select(context.Context, *dataset.FeatureMatrix, int) (selection.SupportResult, error) {
	return selection.SupportResult{}, errors.New("singular design")
}

// slowSelector ignores its context and sleeps.
type slowSelector struct{ d time.Duration }

func (s slowSelector) Name() string { return "slow" }

func (s slowSelector) Select(context.Context, *dataset.FeatureMatrix, int) (selection.SupportResult, error) {
	time.Sleep(s.d)
	return selection.SupportResult{}, nil
}

type greedySelector struct{}

func (greedySelector) Name() string { return "greedy" }

func (greedySelector) Select(_ context.Context, fm *dataset.FeatureMatrix, _ int) (selection.SupportResult, error) {
	mask := make([]bool, fm.NumFeatures())
	for j := range mask {
		mask[j] = true
	}
	return selection.SupportResult{Mask: mask, Selected: fm.Names()}, nil
}

type panickySelector struct{}

func (panickySelector) Name() string { return "panicky" }

func (panickySelector) Select(context.Context, *dataset.FeatureMatrix, int) (selection.SupportResult, error) {
	panic("index out of range")
}

func testMatrix(t *testing.T) *dataset.FeatureMatrix {
	t.Helper()
	rng := rand.New(rand.NewSource(1))
	names := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	cols := make([][]float64, len(names))
	labels := make([]int, 300)
	for i := range labels {
		labels[i] = i % 2
	}
	for j := range cols {
		cols[j] = make([]float64, len(labels))
		for i := range cols[j] {
			cols[j][i] = rng.Float64()
		}
		if j == 0 {
			for i := range cols[j] {
				cols[j][i] = float64(labels[i])
			}
		}
	}
	fm, err := dataset.NewFeatureMatrix(names, cols, labels)
	require.NoError(t, err)
	return fm
}

func TestAggregate_VotesAndOrder(t *testing.T) {
	fm := testMatrix(t)
	sels := []selection.Selector{
		fixedSelector{"s1", []string{"a", "b", "c"}},
		fixedSelector{"s2", []string{"a", "c", "d"}},
		fixedSelector{"s3", []string{"a", "e", "b"}},
	}

	r, err := NewAggregator(0, 0).Aggregate(context.Background(), fm, sels, 3)
	require.NoError(t, err)

	got := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		got = append(got, fmt.Sprintf("%s=%d", e.Feature, e.Votes))
	}
	assert.Equal(t, []string{"a=3", "c=2", "b=2", "e=1", "d=1", "h=0", "g=0", "f=0"}, got)
	assert.Equal(t, []string{"s1", "s2", "s3"}, r.Entries[0].SelectedBy)
	assert.Equal(t, 2, r.Votes("b"))
	assert.Equal(t, 0, r.Votes("zz"))
	assert.Len(t, r.TopK(3), 3)
	assert.Len(t, r.TopK(100), 8)
	assert.Equal(t, []string{"s1", "s2", "s3"}, r.Selectors)
	assert.Equal(t, 300, r.Samples)
	assert.NotEmpty(t, r.RunID)
	assert.Empty(t, r.Failures)
}

func TestAggregate_TotalOrder(t *testing.T) {
	fm := testMatrix(t)
	r, err := NewAggregator(0, 0).Aggregate(context.Background(), fm, []selection.Selector{
		selection.NewCorrelation(),
		selection.NewChiSquare(),
		fixedSelector{"fixed", []string{"h", "g", "f", "e"}},
	}, 4)
	require.NoError(t, err)

	for i := 1; i < len(r.Entries); i++ {
		prev, cur := r.Entries[i-1], r.Entries[i]
		if prev.Votes == cur.Votes {
			assert.Greater(t, prev.Feature, cur.Feature)
		} else {
			assert.Greater(t, prev.Votes, cur.Votes)
		}
	}
}

func TestAggregate_Idempotent(t *testing.T) {
	fm := testMatrix(t)
	sels := []selection.Selector{
		selection.NewCorrelation(),
		selection.NewChiSquare(),
		selection.NewRecursiveElimination(2, 1, 50),
		selection.NewEmbeddedLinear(1, 50),
		selection.NewEmbeddedTree(20, 42),
		selection.NewBoosted(10, 0.1, 0.5, 42),
	}
	agg := NewAggregator(time.Minute, 2)

	first, err := agg.Aggregate(context.Background(), fm, sels, 3)
	require.NoError(t, err)
	second, err := agg.Aggregate(context.Background(), fm, sels, 3)
	require.NoError(t, err)

	assert.Equal(t, first.Entries, second.Entries)
	assert.Equal(t, first.Results, second.Results)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestAggregate_PartialFailure(t *testing.T) {
	fm := testMatrix(t)
	metrics := NewMockMetrics()
	agg := NewAggregator(0, 0)
	agg.SetMetrics(metrics)

	r, err := agg.Aggregate(context.Background(), fm, []selection.Selector{
		fixedSelector{"ok", []string{"b", "a"}},
		failingSelector{"broken"},
		greedySelector{},
		panickySelector{},
	}, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, r.Succeeded())
	assert.Equal(t, 1, r.Votes("a"))
	assert.Equal(t, 0, r.Votes("c"))
	assert.Contains(t, r.Failures, "broken")
	assert.Contains(t, r.Failures, "greedy")
	assert.Contains(t, r.Failures, "panicky")

	assert.Equal(t, 1, metrics.failures["broken"])
	assert.Equal(t, 1, metrics.failures["greedy"])
	assert.Equal(t, 1, metrics.runs["ok"])
	assert.Equal(t, 2.0, metrics.selected["ok"])
	assert.Equal(t, 1, metrics.aggregations)
}

func TestAggregate_AllFail(t *testing.T) {
	fm := testMatrix(t)
	_, err := NewAggregator(0, 0).Aggregate(context.Background(), fm, []selection.Selector{
		failingSelector{"x"},
		failingSelector{"y"},
	}, 3)

	var af *AggregationFailure
	require.ErrorAs(t, err, &af)
	assert.Len(t, af.Failures, 2)
	assert.Contains(t, err.Error(), "all 2 selectors failed")

	var se *selection.SelectionError
	require.ErrorAs(t, af.Failures["x"], &se)
	assert.Equal(t, "x", se.Selector)
}

func TestAggregate_Timeout(t *testing.T) {
	fm := testMatrix(t)
	metrics := NewMockMetrics()
	agg := NewAggregator(20*time.Millisecond, 0)
	agg.SetMetrics(metrics)

	start := time.Now()
	r, err := agg.Aggregate(context.Background(), fm, []selection.Selector{
		slowSelector{d: time.Second},
		fixedSelector{"fast", []string{"a"}},
	}, 2)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Contains(t, r.Failures, "slow")
	assert.Equal(t, 1, metrics.timeouts["slow"])
	assert.Equal(t, 1, r.Votes("a"))
}

func TestAggregate_NoSelectors(t *testing.T) {
	_, err := NewAggregator(0, 0).Aggregate(context.Background(), testMatrix(t), nil, 3)
	assert.Error(t, err)
}
