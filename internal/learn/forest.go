package learn

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// RandomForest is a bagged ensemble of gini CART trees grown on binned
// features. Importance is the mean decrease in impurity, normalised per tree
// and across the ensemble. Tree t draws from its own source seeded with
// Seed+t, so the result is independent of scheduling.
type RandomForest struct {
	Trees           int
	MaxDepth        int // 0 = grow until pure
	MinSamplesSplit int
	MaxFeatures     int // 0 = floor(sqrt(features))
	Seed            int64
	Workers         int // 0 = GOMAXPROCS

	classes     int
	trees       []*classTree
	importances []float64
}

// NewRandomForest returns a forest with the given ensemble size and seed.
func NewRandomForest(trees int, seed int64) *RandomForest {
	if trees <= 0 {
		trees = 500
	}
	return &RandomForest{Trees: trees, MinSamplesSplit: 2, Seed: seed}
}

// Fit grows the ensemble on feature columns and class indices y in [0, classes).
// Cancelling ctx stops training between trees.
func (rf *RandomForest) Fit(ctx context.Context, columns [][]float64, y []int, classes int) error {
	if len(columns) == 0 {
		return fmt.Errorf("forest: no features")
	}
	if classes < 2 {
		return fmt.Errorf("forest: need at least 2 classes, got %d", classes)
	}

	data := binColumns(columns)
	p := len(columns)
	mtry := rf.MaxFeatures
	if mtry <= 0 || mtry > p {
		mtry = int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))
	}
	minSplit := rf.MinSamplesSplit
	if minSplit < 2 {
		minSplit = 2
	}
	workers := rf.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	rf.classes = classes
	rf.trees = make([]*classTree, rf.Trees)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for t := 0; t < rf.Trees; t++ {
		t := t
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			g := &treeGrower{
				data:     data,
				y:        y,
				classes:  classes,
				mtry:     mtry,
				maxDepth: rf.MaxDepth,
				minSplit: minSplit,
				rng:      rand.New(rand.NewSource(rf.Seed + int64(t))),
				imp:      make([]float64, p),
				ctx:      ctx,
			}
			tree, err := g.grow(bootstrap(g.rng, len(y)))
			if err != nil {
				return err
			}
			rf.trees[t] = tree
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return fmt.Errorf("forest: %w", err)
	}

	rf.importances = make([]float64, p)
	for _, tree := range rf.trees {
		normalizeInto(rf.importances, tree.importances)
	}
	normalize(rf.importances)

	log.Debug().Int("trees", rf.Trees).Int("mtry", mtry).Msg("Random forest trained")
	return nil
}

// Importances returns the normalised mean decrease in impurity per feature.
func (rf *RandomForest) Importances() []float64 { return rf.importances }

// Predict returns the class index with the highest mean leaf probability for
// a sample given as one value per feature.
func (rf *RandomForest) Predict(sample []float64) int {
	proba := make([]float64, rf.classes)
	for _, tree := range rf.trees {
		for k, v := range tree.leafProba(sample) {
			proba[k] += v
		}
	}
	return argmax(proba)
}

func bootstrap(rng *rand.Rand, n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = rng.Intn(n)
	}
	return idx
}

type treeNode struct {
	feature   int
	threshold float64
	left      int
	right     int
	proba     []float64 // non-nil on leaves
}

type classTree struct {
	nodes       []treeNode
	importances []float64
}

func (t *classTree) leafProba(sample []float64) []float64 {
	n := &t.nodes[0]
	for n.proba == nil {
		if sample[n.feature] <= n.threshold {
			n = &t.nodes[n.left]
		} else {
			n = &t.nodes[n.right]
		}
	}
	return n.proba
}

type treeGrower struct {
	data     *binned
	y        []int
	classes  int
	mtry     int
	maxDepth int
	minSplit int
	rng      *rand.Rand
	imp      []float64
	nodes    []treeNode
	ctx      context.Context
}

func (g *treeGrower) grow(idx []int) (*classTree, error) {
	if err := g.node(idx, 0); err != nil {
		return nil, err
	}
	return &classTree{nodes: g.nodes, importances: g.imp}, nil
}

// node appends the subtree for idx and returns once it is complete.
func (g *treeGrower) node(idx []int, depth int) error {
	if err := g.ctx.Err(); err != nil {
		return err
	}

	counts := make([]float64, g.classes)
	for _, i := range idx {
		counts[g.y[i]]++
	}
	m := float64(len(idx))
	impurity := gini(counts, m)

	self := len(g.nodes)
	g.nodes = append(g.nodes, treeNode{})

	leaf := impurity == 0 || len(idx) < g.minSplit || (g.maxDepth > 0 && depth >= g.maxDepth)
	var s split
	if !leaf {
		s = g.bestSplit(idx, m)
		leaf = s.feature < 0
	}
	if leaf {
		proba := make([]float64, g.classes)
		for k, c := range counts {
			proba[k] = c / m
		}
		g.nodes[self].proba = proba
		return nil
	}

	g.imp[s.feature] += m*impurity - s.weighted
	nl := partition(idx, g.data.bins[s.feature], s.bin)

	g.nodes[self].feature = s.feature
	g.nodes[self].threshold = g.data.upper[s.feature][s.bin]

	g.nodes[self].left = len(g.nodes)
	if err := g.node(idx[:nl], depth+1); err != nil {
		return err
	}
	g.nodes[self].right = len(g.nodes)
	return g.node(idx[nl:], depth+1)
}

type split struct {
	feature  int
	bin      int
	weighted float64 // nL*giniL + nR*giniR
}

// bestSplit draws features at random until mtry non-constant ones have been
// evaluated and returns the split with the lowest weighted child impurity.
func (g *treeGrower) bestSplit(idx []int, m float64) split {
	best := split{feature: -1, weighted: math.Inf(1)}
	visited := 0

	for _, f := range g.rng.Perm(g.data.numFeatures()) {
		if visited >= g.mtry {
			break
		}
		nb := g.data.numBins(f)
		if nb < 2 {
			continue
		}
		hist := make([]float64, nb*g.classes)
		bins := g.data.bins[f]
		for _, i := range idx {
			hist[int(bins[i])*g.classes+g.y[i]]++
		}

		left := make([]float64, g.classes)
		right := make([]float64, g.classes)
		for b := 0; b < nb; b++ {
			for k := 0; k < g.classes; k++ {
				right[k] += hist[b*g.classes+k]
			}
		}

		var nl float64
		constant := true
		for b := 0; b < nb-1; b++ {
			var moved float64
			for k := 0; k < g.classes; k++ {
				c := hist[b*g.classes+k]
				left[k] += c
				right[k] -= c
				moved += c
			}
			if moved == 0 {
				continue
			}
			nl += moved
			nr := m - nl
			if nl == 0 || nr == 0 {
				continue
			}
			constant = false
			w := nl*gini(left, nl) + nr*gini(right, nr)
			if w < best.weighted {
				best = split{feature: f, bin: b, weighted: w}
			}
		}
		if !constant {
			visited++
		}
	}
	return best
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	s := 1.0
	for _, c := range counts {
		p := c / n
		s -= p * p
	}
	return s
}

func normalizeInto(dst, src []float64) {
	var total float64
	for _, v := range src {
		total += v
	}
	if total == 0 {
		return
	}
	for j, v := range src {
		dst[j] += v / total
	}
}

func normalize(xs []float64) {
	var total float64
	for _, v := range xs {
		total += v
	}
	if total == 0 {
		return
	}
	for j := range xs {
		xs[j] /= total
	}
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}
