package analysis

import (
	"math"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// FeatureMatrix is a row-per-reading, column-per-feature table.
type FeatureMatrix struct {
	Columns []string
	Rows    [][]float64
}

// BuildFeatures derives, for every metric seen in the window, the raw value, the
// rolling mean and rolling sample std over lag readings, and the first difference.
// Missing cells are forward-filled then back-filled, and every column is z-scored.
func BuildFeatures(window []model.Reading, lag int) FeatureMatrix {
	n := len(window)
	if lag < 1 {
		lag = 1
	}
	var fm FeatureMatrix
	var cols [][]float64
	for _, metric := range windowMetrics(window) {
		raw := make([]float64, n)
		for i, r := range window {
			if v, ok := r.Metrics[metric]; ok {
				raw[i] = v
			} else {
				raw[i] = math.NaN()
			}
		}
		fill(raw)

		rollMean := make([]float64, n)
		rollStd := make([]float64, n)
		diff := make([]float64, n)
		for i := range raw {
			if i+1 >= lag {
				w := raw[i+1-lag : i+1]
				rollMean[i] = mean(w)
				if lag > 1 {
					rollStd[i] = stddev(w)
				}
			} else {
				rollMean[i] = math.NaN()
				rollStd[i] = math.NaN()
			}
			if i == 0 {
				diff[i] = math.NaN()
			} else {
				diff[i] = raw[i] - raw[i-1]
			}
		}
		fill(rollMean)
		fill(rollStd)
		fill(diff)

		fm.Columns = append(fm.Columns, metric, metric+"_rolling_mean", metric+"_rolling_std", metric+"_diff")
		cols = append(cols, raw, rollMean, rollStd, diff)
	}
	for _, c := range cols {
		standardize(c)
	}
	fm.Rows = make([][]float64, n)
	for i := range fm.Rows {
		row := make([]float64, len(cols))
		for j, c := range cols {
			row[j] = c[i]
		}
		fm.Rows[i] = row
	}
	return fm
}

// fill forward-fills then back-fills NaN cells. A column with no values becomes zeros.
func fill(xs []float64) {
	last := math.NaN()
	for i, x := range xs {
		if math.IsNaN(x) {
			xs[i] = last
		} else {
			last = x
		}
	}
	next := math.NaN()
	for i := len(xs) - 1; i >= 0; i-- {
		if math.IsNaN(xs[i]) {
			xs[i] = next
		} else {
			next = xs[i]
		}
	}
	for i, x := range xs {
		if math.IsNaN(x) {
			xs[i] = 0
		}
	}
}

// standardize rescales a column to zero mean and unit population variance.
// Constant columns become zeros.
func standardize(xs []float64) {
	if len(xs) == 0 {
		return
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	sd := math.Sqrt(ss / float64(len(xs)))
	for i, x := range xs {
		if sd == 0 {
			xs[i] = 0
		} else {
			xs[i] = (x - m) / sd
		}
	}
}
