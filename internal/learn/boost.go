package learn

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/rs/zerolog/log"
)

// GradientBoosting fits softmax gradient-boosted regression trees on binned
// features, one leaf-wise tree per class per round. Importances count how
// often each feature was used to split. Leaf gradients are soft-thresholded by
// Alpha and every child must carry at least MinChildWeight hessian.
type GradientBoosting struct {
	Rounds         int
	LearningRate   float64
	MaxLeaves      int
	MinSamplesLeaf int
	MinChildWeight float64 // minimum hessian sum per child
	Colsample      float64 // fraction of features drawn per tree
	Alpha          float64 // L1 regularisation on leaf values
	Lambda         float64 // L2 regularisation on leaf values
	MinSplitGain   float64
	Seed           int64

	splits []float64
	gains  []float64
}

// NewGradientBoosting returns a booster with the given rounds and seed and
// defaults for the remaining parameters.
func NewGradientBoosting(rounds int, seed int64) *GradientBoosting {
	if rounds <= 0 {
		rounds = 500
	}
	return &GradientBoosting{
		Rounds:         rounds,
		LearningRate:   0.05,
		MaxLeaves:      32,
		MinSamplesLeaf: 20,
		MinChildWeight: 40,
		Colsample:      0.2,
		Alpha:          3,
		Lambda:         1,
		MinSplitGain:   0.01,
		Seed:           seed,
	}
}

// Fit trains on feature columns and class indices y in [0, classes).
// Cancelling ctx stops training between rounds.
func (gb *GradientBoosting) Fit(ctx context.Context, columns [][]float64, y []int, classes int) error {
	if len(columns) == 0 {
		return fmt.Errorf("boosting: no features")
	}
	if classes < 2 {
		return fmt.Errorf("boosting: need at least 2 classes, got %d", classes)
	}

	n, p := len(y), len(columns)
	data := binColumns(columns)
	rng := rand.New(rand.NewSource(gb.Seed))
	ncol := int(math.Ceil(gb.Colsample * float64(p)))
	if ncol < 1 || ncol > p {
		ncol = p
	}
	maxLeaves := gb.MaxLeaves
	if maxLeaves < 2 {
		maxLeaves = 2
	}
	minLeaf := gb.MinSamplesLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	gb.splits = make([]float64, p)
	gb.gains = make([]float64, p)

	// Raw scores start at the log class priors.
	prior := make([]float64, classes)
	for _, c := range y {
		prior[c]++
	}
	score := make([][]float64, n)
	for i := range score {
		score[i] = make([]float64, classes)
		for k := range prior {
			score[i][k] = math.Log(math.Max(prior[k], 1) / float64(n))
		}
	}

	proba := make([][]float64, n)
	for i := range proba {
		proba[i] = make([]float64, classes)
	}
	grad := make([]float64, n)
	hess := make([]float64, n)
	all := make([]int, n)

	b := &leafBuilder{
		data:      data,
		grad:      grad,
		hess:      hess,
		alpha:     gb.Alpha,
		lambda:    gb.Lambda,
		minLeaf:   minLeaf,
		minHess:   gb.MinChildWeight,
		minGain:   gb.MinSplitGain,
		maxLeaves: maxLeaves,
	}

	for round := 0; round < gb.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("boosting: round %d: %w", round, err)
		}

		for i := range score {
			softmaxInto(proba[i], score[i])
		}
		for k := 0; k < classes; k++ {
			for i := 0; i < n; i++ {
				pk := proba[i][k]
				target := 0.0
				if y[i] == k {
					target = 1
				}
				grad[i] = pk - target
				hess[i] = math.Max(pk*(1-pk), 1e-16)
			}
			for i := range all {
				all[i] = i
			}

			b.features = sampleFeatures(rng, p, ncol)
			for _, leaf := range b.build(all) {
				value := -gb.LearningRate * thresholdL1(leaf.g, gb.Alpha) / (leaf.h + gb.Lambda)
				for _, i := range leaf.idx {
					score[i][k] += value
				}
			}
			for _, s := range b.used {
				gb.splits[s.feature]++
				gb.gains[s.feature] += s.gain
			}
		}

		if (round+1)%100 == 0 {
			log.Debug().Int("round", round+1).Msg("Boosting progress")
		}
	}
	return nil
}

// Importances returns the number of splits made on each feature.
func (gb *GradientBoosting) Importances() []float64 { return gb.splits }

// thresholdL1 shrinks a gradient sum towards zero by alpha.
func thresholdL1(g, alpha float64) float64 {
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	}
	return 0
}

func softmaxInto(dst, z []float64) {
	hi := math.Inf(-1)
	for _, v := range z {
		if v > hi {
			hi = v
		}
	}
	var sum float64
	for k, v := range z {
		dst[k] = math.Exp(v - hi)
		sum += dst[k]
	}
	for k := range dst {
		dst[k] /= sum
	}
}

func sampleFeatures(rng *rand.Rand, p, n int) []int {
	feats := rng.Perm(p)[:n]
	sort.Ints(feats)
	return feats
}

type boostLeaf struct {
	idx  []int
	g, h float64
	best boostSplit
}

type boostSplit struct {
	feature int
	bin     int
	gain    float64
}

// leafBuilder grows one regression tree best-first: the leaf with the largest
// gain is split until maxLeaves is reached or no split clears minGain.
type leafBuilder struct {
	data      *binned
	grad      []float64
	hess      []float64
	alpha     float64
	lambda    float64
	minLeaf   int
	minHess   float64
	minGain   float64
	maxLeaves int
	features  []int
	used      []boostSplit
}

func (b *leafBuilder) build(idx []int) []*boostLeaf {
	b.used = b.used[:0]
	leaves := []*boostLeaf{b.newLeaf(idx)}

	for len(leaves) < b.maxLeaves {
		pick := -1
		for i, l := range leaves {
			if l.best.feature >= 0 && (pick < 0 || l.best.gain > leaves[pick].best.gain) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}

		l := leaves[pick]
		s := l.best
		nl := partition(l.idx, b.data.bins[s.feature], s.bin)
		b.used = append(b.used, s)
		leaves[pick] = b.newLeaf(l.idx[:nl])
		leaves = append(leaves, b.newLeaf(l.idx[nl:]))
	}
	return leaves
}

func (b *leafBuilder) newLeaf(idx []int) *boostLeaf {
	l := &boostLeaf{idx: idx, best: boostSplit{feature: -1}}
	for _, i := range idx {
		l.g += b.grad[i]
		l.h += b.hess[i]
	}
	if len(idx) < 2*b.minLeaf || l.h < 2*b.minHess {
		return l
	}

	parent := b.score(l.g, l.h)
	for _, f := range b.features {
		nb := b.data.numBins(f)
		if nb < 2 {
			continue
		}
		hg := make([]float64, nb)
		hh := make([]float64, nb)
		hc := make([]int, nb)
		bins := b.data.bins[f]
		for _, i := range idx {
			k := bins[i]
			hg[k] += b.grad[i]
			hh[k] += b.hess[i]
			hc[k]++
		}

		var gl, hl float64
		var cl int
		for k := 0; k < nb-1; k++ {
			gl += hg[k]
			hl += hh[k]
			cl += hc[k]
			cr := len(idx) - cl
			if cl < b.minLeaf {
				continue
			}
			if cr < b.minLeaf {
				break
			}
			gr, hr := l.g-gl, l.h-hl
			if hl < b.minHess || hr < b.minHess {
				continue
			}
			gain := b.score(gl, hl) + b.score(gr, hr) - parent
			if gain > b.minGain && gain > l.best.gain {
				l.best = boostSplit{feature: f, bin: k, gain: gain}
			}
		}
	}
	return l
}

// score is the regularised objective reduction of a leaf with gradient sum g
// and hessian sum h.
func (b *leafBuilder) score(g, h float64) float64 {
	t := thresholdL1(g, b.alpha)
	return t * t / (h + b.lambda)
}
