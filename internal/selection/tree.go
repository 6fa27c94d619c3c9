package selection

import (
	"context"

	"ksi-rank/internal/dataset"
	"ksi-rank/internal/learn"
)

// EmbeddedTree fits a seeded random forest on the raw features and keeps the
// features whose mean decrease in impurity is at least the mean, capped at k.
// Scores hold the normalised importances.
type EmbeddedTree struct {
	Trees    int
	MaxDepth int
	Seed     int64
	Workers  int
}

func NewEmbeddedTree(trees int, seed int64) *EmbeddedTree {
	if trees <= 0 {
		trees = 500
	}
	return &EmbeddedTree{Trees: trees, Seed: seed}
}

func (e *EmbeddedTree) Name() string { return EmbeddedTreeName }

func (e *EmbeddedTree) Select(ctx context.Context, fm *dataset.FeatureMatrix, k int) (SupportResult, error) {
	if err := checkK(e.Name(), k); err != nil {
		return SupportResult{}, err
	}

	rf := learn.NewRandomForest(e.Trees, e.Seed)
	rf.MaxDepth = e.MaxDepth
	rf.Workers = e.Workers
	if err := rf.Fit(ctx, fm.Columns(), fm.ClassIndex(), len(fm.Classes())); err != nil {
		return SupportResult{}, selectionErr(e.Name(), "forest training failed", err)
	}
	scores := rf.Importances()

	if k >= fm.NumFeatures() {
		return selectAll(e.Name(), fm, scores), nil
	}
	return newResult(e.Name(), fm, thresholdTopK(scores, k), scores), nil
}

// Boosted fits seeded gradient-boosted trees and keeps the features used in at
// least the mean number of splits, capped at k. Scores hold the split counts.
type Boosted struct {
	Rounds       int
	LearningRate float64
	Colsample    float64
	Seed         int64
}

func NewBoosted(rounds int, learningRate, colsample float64, seed int64) *Boosted {
	return &Boosted{Rounds: rounds, LearningRate: learningRate, Colsample: colsample, Seed: seed}
}

func (b *Boosted) Name() string { return BoostedName }

func (b *Boosted) Select(ctx context.Context, fm *dataset.FeatureMatrix, k int) (SupportResult, error) {
	if err := checkK(b.Name(), k); err != nil {
		return SupportResult{}, err
	}

	gb := learn.NewGradientBoosting(b.Rounds, b.Seed)
	if b.LearningRate > 0 {
		gb.LearningRate = b.LearningRate
	}
	if b.Colsample > 0 {
		gb.Colsample = b.Colsample
	}
	if err := gb.Fit(ctx, fm.Columns(), fm.ClassIndex(), len(fm.Classes())); err != nil {
		return SupportResult{}, selectionErr(b.Name(), "boosting failed", err)
	}
	scores := gb.Importances()

	if k >= fm.NumFeatures() {
		return selectAll(b.Name(), fm, scores), nil
	}
	return newResult(b.Name(), fm, thresholdTopK(scores, k), scores), nil
}
