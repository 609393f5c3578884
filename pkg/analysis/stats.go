package analysis

import (
	"math"
	"sort"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// mean returns the arithmetic mean, or 0 for an empty slice.
func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stddev returns the sample standard deviation (n-1). Fewer than two values yield 0.
func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// slope fits y = a + b*i by ordinary least squares over the sample index and returns b.
func slope(ys []float64) float64 {
	n := len(ys)
	if n < 2 {
		return 0
	}
	xm := float64(n-1) / 2
	ym := mean(ys)
	var num, den float64
	for i, y := range ys {
		dx := float64(i) - xm
		num += dx * (y - ym)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// median returns the middle value of xs, or 0 for an empty slice.
func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// winsorize returns a copy of xs clipped to the median plus or minus k scaled
// median absolute deviations. A zero MAD or non-positive k leaves xs unchanged.
func winsorize(xs []float64, k float64) []float64 {
	out := append([]float64(nil), xs...)
	if k <= 0 || len(xs) == 0 {
		return out
	}
	med := median(xs)
	dev := make([]float64, len(xs))
	for i, x := range xs {
		dev[i] = math.Abs(x - med)
	}
	mad := 1.4826 * median(dev)
	if mad == 0 {
		return out
	}
	lo, hi := med-k*mad, med+k*mad
	for i, x := range out {
		out[i] = math.Max(lo, math.Min(hi, x))
	}
	return out
}

// minMax returns the smallest and largest value of a non-empty slice.
func minMax(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, x := range xs[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	return lo, hi
}

// series extracts the values of one metric across the window, skipping readings
// where it is absent.
func series(window []model.Reading, metric string) []float64 {
	out := make([]float64, 0, len(window))
	for _, r := range window {
		if v, ok := r.Metrics[metric]; ok {
			out = append(out, v)
		}
	}
	return out
}

// windowMetrics returns every metric name that appears anywhere in the window, sorted.
func windowMetrics(window []model.Reading) []string {
	seen := make(map[string]struct{})
	for _, r := range window {
		for name := range r.Metrics {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
