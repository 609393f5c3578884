package analysis

import (
	"fmt"
	"math"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// ForecastEngine fits a small autoregressive ridge regression per metric on the
// current window and rolls it forward. Nothing is kept between calls.
//
// History is winsorized at OutlierMAD scaled median absolute deviations before
// fitting, features are standardized so Lambda acts on a unit scale, and every
// predicted step is held within the observed range widened by the fitted
// slope over the horizon.
type ForecastEngine struct {
	Horizon       int
	ThresholdPct  float64
	Lag           int
	MinPopulation int
	Lambda        float64
	OutlierMAD    float64
}

// NewForecastEngine returns an engine with the standard lag and population settings.
func NewForecastEngine(horizon int, thresholdPct float64) *ForecastEngine {
	return &ForecastEngine{
		Horizon:       horizon,
		ThresholdPct:  thresholdPct,
		Lag:           5,
		MinPopulation: DefaultMinPopulation,
		Lambda:        0.1,
		OutlierMAD:    3,
	}
}

// Prediction is the forecast path of one metric.
type Prediction struct {
	Metric        string
	Values        []float64
	PercentChange float64
}

// ForecastResult holds per-metric predictions and the insights they produced.
type ForecastResult struct {
	Predictions  []Prediction
	Insights     []model.Insight
	Insufficient bool
}

// Forecast predicts Horizon steps ahead for each metric, feeding every prediction
// back as history for the next step.
func (e *ForecastEngine) Forecast(window []model.Reading) ForecastResult {
	if len(window) < e.MinPopulation || len(window) == 0 || e.Horizon < 1 {
		return ForecastResult{Insufficient: true}
	}
	lag := e.Lag
	if lag < 2 {
		lag = 2
	}
	latest := window[len(window)-1].Timestamp

	var res ForecastResult
	for _, name := range windowMetrics(window) {
		hist := winsorize(series(window, name), e.OutlierMAD)
		if len(hist) < e.MinPopulation || len(hist) < lag+2 {
			continue
		}
		lo, hi := minMax(hist)
		reach := math.Abs(slope(hist)) * float64(e.Horizon)
		lo, hi = lo-reach, hi+reach
		var xs [][]float64
		var ys []float64
		for t := lag; t < len(hist); t++ {
			xs = append(xs, arFeatures(hist, t, lag))
			ys = append(ys, hist[t])
		}
		fit, err := ridgeFit(xs, ys, e.Lambda)
		if err != nil {
			continue
		}

		path := make([]float64, 0, e.Horizon)
		for k := 0; k < e.Horizon; k++ {
			p := fit.predict(arFeatures(hist, len(hist), lag))
			p = math.Max(lo, math.Min(hi, p))
			path = append(path, p)
			hist = append(hist, p)
		}
		pred := Prediction{Metric: name, Values: path}
		first, last := path[0], path[len(path)-1]
		if first != 0 {
			pred.PercentChange = (last - first) / math.Abs(first) * 100
		}
		res.Predictions = append(res.Predictions, pred)

		if first == 0 || math.Abs(pred.PercentChange) <= e.ThresholdPct {
			continue
		}
		word, direction := "increase", model.DirectionIncreasing
		if pred.PercentChange < 0 {
			word, direction = "decrease", model.DirectionDecreasing
		}
		res.Insights = append(res.Insights, model.Insight{
			Kind:          model.KindForecast,
			Metric:        name,
			Message:       fmt.Sprintf("Predicted %.1f%% %s in %s over next %d readings", math.Abs(pred.PercentChange), word, humanMetric(name), len(path)),
			Timestamp:     latest,
			Direction:     direction,
			Value:         last,
			PercentChange: pred.PercentChange,
		})
	}
	return res
}

// arFeatures describes the history before index t: last value, rolling mean over
// lag values, and last first difference.
func arFeatures(hist []float64, t, lag int) []float64 {
	prev := hist[t-1]
	return []float64{
		prev,
		mean(hist[t-lag : t]),
		prev - hist[t-2],
	}
}

type linearFit struct {
	intercept float64
	xMean     []float64
	xScale    []float64
	coef      []float64
}

// predict ignores columns that were constant in training.
func (f linearFit) predict(x []float64) float64 {
	y := f.intercept
	for j, c := range f.coef {
		if f.xScale[j] == 0 {
			continue
		}
		y += c * (x[j] - f.xMean[j]) / f.xScale[j]
	}
	return y
}

// ridgeFit solves ridge regression on standardized features. Constant columns
// are left out of the system; the intercept is the target mean.
func ridgeFit(xs [][]float64, ys []float64, lambda float64) (linearFit, error) {
	n := len(xs)
	if n == 0 {
		return linearFit{}, fmt.Errorf("no training rows")
	}
	k := len(xs[0])
	fit := linearFit{
		intercept: mean(ys),
		xMean:     make([]float64, k),
		xScale:    make([]float64, k),
		coef:      make([]float64, k),
	}
	col := make([]float64, n)
	var active []int
	for j := 0; j < k; j++ {
		for r, row := range xs {
			col[r] = row[j]
		}
		fit.xMean[j] = mean(col)
		var ss float64
		for _, v := range col {
			ss += (v - fit.xMean[j]) * (v - fit.xMean[j])
		}
		if sd := math.Sqrt(ss / float64(n)); sd > 1e-12 {
			fit.xScale[j] = sd
			active = append(active, j)
		}
	}
	if len(active) == 0 {
		return fit, nil
	}

	m := len(active)
	a := make([][]float64, m)
	b := make([]float64, m)
	for i := range a {
		a[i] = make([]float64, m)
		a[i][i] = lambda
	}
	z := make([]float64, m)
	for r, row := range xs {
		for i, j := range active {
			z[i] = (row[j] - fit.xMean[j]) / fit.xScale[j]
		}
		yc := ys[r] - fit.intercept
		for i := 0; i < m; i++ {
			b[i] += z[i] * yc
			for c := 0; c < m; c++ {
				a[i][c] += z[i] * z[c]
			}
		}
	}
	coef, err := solve(a, b)
	if err != nil {
		return linearFit{}, err
	}
	for i, j := range active {
		fit.coef[j] = coef[i]
	}
	return fit, nil
}

// solve runs Gaussian elimination with partial pivoting on a small dense system.
func solve(a [][]float64, b []float64) ([]float64, error) {
	k := len(b)
	for col := 0; col < k; col++ {
		pivot := col
		for r := col + 1; r < k; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if a[pivot][col] == 0 {
			return nil, fmt.Errorf("singular system")
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < k; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < k; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	x := make([]float64, k)
	for r := k - 1; r >= 0; r-- {
		sum := b[r]
		for c := r + 1; c < k; c++ {
			sum -= a[r][c] * x[c]
		}
		x[r] = sum / a[r][r]
	}
	return x, nil
}
