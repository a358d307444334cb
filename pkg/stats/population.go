package stats

import (
	"fmt"
	"math"
	"sort"
)

// Aggregations accepted by Reduce.
const (
	AggMean   = "mean"
	AggSum    = "sum"
	AggMedian = "median"
)

// Percentile returns the share of population values at or below value, in
// 0..100. A population of fewer than two values, or a NaN value, gives 0.
func Percentile(population []float64, value float64) float64 {
	if len(population) < 2 || math.IsNaN(value) {
		return 0
	}
	below := 0
	for _, v := range population {
		if v <= value {
			below++
		}
	}
	return float64(below) / float64(len(population)) * 100
}

// Mean of values; 0 for none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median of values; 0 for none. values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Reduce folds values with one of AggMean, AggSum or AggMedian.
func Reduce(values []float64, agg string) (float64, error) {
	switch agg {
	case AggMean:
		return Mean(values), nil
	case AggSum:
		sum := 0.0
		for _, v := range values {
			sum += v
		}
		return sum, nil
	case AggMedian:
		return Median(values), nil
	}
	return 0, fmt.Errorf("unknown aggregation %q", agg)
}

// Pearson returns the correlation coefficient of paired samples. ok is false
// when there are fewer than two pairs, the lengths differ, or either side is
// constant.
func Pearson(xs, ys []float64) (r float64, ok bool) {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0, false
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx, syy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, false
	}
	return sxy / math.Sqrt(sxx*syy), true
}

// LinearFit is the least-squares line y = Slope*x + Intercept.
type LinearFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
}

// FitLine fits paired samples by ordinary least squares. ok is false when
// there are fewer than two pairs or every x is equal.
func FitLine(xs, ys []float64) (LinearFit, bool) {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return LinearFit{}, false
	}
	mx, my := Mean(xs), Mean(ys)
	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - mx
		sxy += dx * (ys[i] - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return LinearFit{}, false
	}
	slope := sxy / sxx
	return LinearFit{Slope: slope, Intercept: my - slope*mx}, true
}
