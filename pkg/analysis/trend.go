package analysis

import (
	"fmt"
	"math"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// TrendAnalyzer reports metrics whose least-squares slope over the window exceeds
// a threshold in native units per sample.
type TrendAnalyzer struct {
	Threshold     float64
	MinPopulation int
}

// NewTrendAnalyzer returns an analyzer with the given slope threshold.
func NewTrendAnalyzer(threshold float64) *TrendAnalyzer {
	return &TrendAnalyzer{Threshold: threshold, MinPopulation: DefaultMinPopulation}
}

// TrendResult holds trend insights for a window.
type TrendResult struct {
	Insights     []model.Insight
	Insufficient bool
}

// Analyze fits a slope per metric. Metrics with fewer than MinPopulation samples
// are skipped.
func (a *TrendAnalyzer) Analyze(window []model.Reading) TrendResult {
	if len(window) < a.MinPopulation || len(window) == 0 {
		return TrendResult{Insufficient: true}
	}
	latest := window[len(window)-1].Timestamp
	var res TrendResult
	for _, name := range windowMetrics(window) {
		s := series(window, name)
		if len(s) < a.MinPopulation {
			continue
		}
		b := slope(s)
		if math.Abs(b) <= a.Threshold {
			continue
		}
		direction := model.DirectionIncreasing
		if b < 0 {
			direction = model.DirectionDecreasing
		}
		res.Insights = append(res.Insights, model.Insight{
			Kind:      model.KindTrend,
			Metric:    name,
			Message:   fmt.Sprintf("%s is %s", humanMetric(name), direction),
			Timestamp: latest,
			Direction: direction,
			Slope:     b,
		})
	}
	return res
}
