// Package mathx provides small numerical helpers shared by the analysis packages
package mathx

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Percentile returns the value below which pct percent of the samples fall.
// pct is in [0, 100] and is clamped into that range.  The result is always
// one of the samples (the inverse of the empirical distribution function).
// x is not modified.  An empty slice returns 0.
func Percentile(x []float64, pct float64) float64 {
	if len(x) == 0 {
		return 0
	}
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	return stat.Quantile(Clamp(pct, 0, 100)/100, stat.Empirical, sorted, nil)
}

// PercentileInt32 is Percentile for integer samples
func PercentileInt32(x []int32, pct float64) float64 {
	f := make([]float64, len(x))
	for i, v := range x {
		f[i] = float64(v)
	}
	return Percentile(f, pct)
}

// Clamp restricts x to [low, high]
func Clamp(x, low, high float64) float64 {
	return math.Max(low, math.Min(high, x))
}

// ClampInt restricts x to [low, high]
func ClampInt(x, low, high int) int {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// Sign returns -1, 0, or 1 matching the sign of x
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// Round rounds a float to the nearest "unit" (0.1 for tenth, 0.01 for hundredth, and so on).
func Round(x, unit float64) float64 {
	return math.Round(x/unit) * unit
}
