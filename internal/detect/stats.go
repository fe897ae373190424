package detect

import (
	"math"
	"sort"
)

// median returns the median of x. x is not modified.
func median(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// stdAbs returns the population standard deviation of the absolute sample
// values, the stacking quality measure for a correlation trace.
func stdAbs(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var mean float64
	for _, v := range x {
		mean += math.Abs(v)
	}
	mean /= float64(len(x))
	var ss float64
	for _, v := range x {
		d := math.Abs(v) - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(x)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
