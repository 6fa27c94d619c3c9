package selection

import (
	"fmt"
)

// Selector names accepted by Build.
const (
	CorrelationName          = "correlation"
	ChiSquareName            = "chi_square"
	RecursiveEliminationName = "recursive_elimination"
	EmbeddedLinearName       = "embedded_linear"
	EmbeddedTreeName         = "embedded_tree"
	BoostedName              = "boosted"
)

// DefaultNames lists every selector in the order they are built by default.
var DefaultNames = []string{
	CorrelationName,
	ChiSquareName,
	RecursiveEliminationName,
	EmbeddedLinearName,
	EmbeddedTreeName,
	BoostedName,
}

// Options carries the tuning knobs of all selectors.
type Options struct {
	RFEStep           int
	LogisticC         float64
	LogisticMaxIter   int
	ForestTrees       int
	ForestMaxDepth    int
	BoostRounds       int
	BoostLearningRate float64
	BoostColsample    float64
	Seed              int64
}

// Build returns the named selectors in the given order. An empty list builds
// DefaultNames.
func Build(names []string, opts Options) ([]Selector, error) {
	if len(names) == 0 {
		names = DefaultNames
	}
	seen := make(map[string]bool, len(names))
	out := make([]Selector, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, fmt.Errorf("selector %q listed twice", name)
		}
		seen[name] = true

		switch name {
		case CorrelationName:
			out = append(out, NewCorrelation())
		case ChiSquareName:
			out = append(out, NewChiSquare())
		case RecursiveEliminationName:
			out = append(out, NewRecursiveElimination(opts.RFEStep, opts.LogisticC, opts.LogisticMaxIter))
		case EmbeddedLinearName:
			out = append(out, NewEmbeddedLinear(opts.LogisticC, opts.LogisticMaxIter))
		case EmbeddedTreeName:
			t := NewEmbeddedTree(opts.ForestTrees, opts.Seed)
			t.MaxDepth = opts.ForestMaxDepth
			out = append(out, t)
		case BoostedName:
			out = append(out, NewBoosted(opts.BoostRounds, opts.BoostLearningRate, opts.BoostColsample, opts.Seed))
		default:
			return nil, fmt.Errorf("unknown selector %q", name)
		}
	}
	return out, nil
}
