package learn

import (
	"sort"
)

// MaxBins is the largest number of histogram bins per feature.
const MaxBins = 255

// binned holds every feature column discretised into at most MaxBins ordered
// bins. A split "bin <= b" is equivalent to "value <= upper[b]".
type binned struct {
	bins  [][]uint8
	upper [][]float64
}

func (b *binned) numFeatures() int { return len(b.bins) }

func (b *binned) numBins(j int) int { return len(b.upper[j]) }

// binColumns discretises columns. Columns with few distinct values get one bin
// per value; the rest are cut at quantiles.
func binColumns(columns [][]float64) *binned {
	b := &binned{
		bins:  make([][]uint8, len(columns)),
		upper: make([][]float64, len(columns)),
	}
	for j, col := range columns {
		b.upper[j] = binEdges(col)
		b.bins[j] = assignBins(col, b.upper[j])
	}
	return b
}

func binEdges(col []float64) []float64 {
	sorted := append([]float64(nil), col...)
	sort.Float64s(sorted)

	distinct := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}

	if len(distinct) <= MaxBins {
		upper := make([]float64, len(distinct))
		for i := range distinct {
			if i == len(distinct)-1 {
				upper[i] = distinct[i]
				continue
			}
			upper[i] = distinct[i] + (distinct[i+1]-distinct[i])/2
		}
		return upper
	}

	upper := make([]float64, 0, MaxBins)
	for q := 1; q < MaxBins; q++ {
		v := sorted[q*len(sorted)/MaxBins]
		if len(upper) == 0 || v > upper[len(upper)-1] {
			upper = append(upper, v)
		}
	}
	if last := sorted[len(sorted)-1]; last > upper[len(upper)-1] {
		upper = append(upper, last)
	}
	return upper
}

func assignBins(col []float64, upper []float64) []uint8 {
	out := make([]uint8, len(col))
	for i, v := range col {
		k := sort.SearchFloat64s(upper, v)
		if k >= len(upper) {
			k = len(upper) - 1
		}
		out[i] = uint8(k)
	}
	return out
}

// partition reorders idx so rows with bin <= split come first and returns the
// size of that left part.
func partition(idx []int, bins []uint8, split int) int {
	lo, hi := 0, len(idx)-1
	for lo <= hi {
		if int(bins[idx[lo]]) <= split {
			lo++
			continue
		}
		idx[lo], idx[hi] = idx[hi], idx[lo]
		hi--
	}
	return lo
}
