package analysis

import (
	"fmt"
	"math"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// DefaultMinPopulation is the smallest window any statistical analysis runs on.
const DefaultMinPopulation = 10

// AnomalyDetector flags the most recent reading when the outlier model labels it
// anomalous, and reports each of its metrics that deviates from the window.
type AnomalyDetector struct {
	Model         OutlierDetector
	Contamination float64
	Lag           int
	MinPopulation int
	// Deviations is how many standard deviations from the window mean a metric
	// must be to be reported.
	Deviations float64
}

// NewAnomalyDetector returns a detector with the standard lag, population and
// deviation settings.
func NewAnomalyDetector(m OutlierDetector, contamination float64) *AnomalyDetector {
	return &AnomalyDetector{
		Model:         m,
		Contamination: contamination,
		Lag:           5,
		MinPopulation: DefaultMinPopulation,
		Deviations:    2,
	}
}

// AnomalyResult holds per-reading labels and insights for the latest reading.
type AnomalyResult struct {
	Labels       []bool
	Insights     []model.Insight
	Insufficient bool
}

// Detect runs the outlier model over the window's feature matrix.
func (d *AnomalyDetector) Detect(window []model.Reading) (AnomalyResult, error) {
	if len(window) < d.MinPopulation || len(window) == 0 {
		return AnomalyResult{Insufficient: true}, nil
	}
	features := BuildFeatures(window, d.Lag)
	labels, err := d.Model.Detect(features.Rows, d.Contamination)
	if err != nil {
		return AnomalyResult{}, fmt.Errorf("detect outliers: %w", err)
	}
	res := AnomalyResult{Labels: labels}
	if !labels[len(labels)-1] {
		return res, nil
	}

	latest := window[len(window)-1]
	for _, name := range latest.MetricNames() {
		v := latest.Metrics[name]
		s := series(window, name)
		m, sd := mean(s), stddev(s)
		if sd == 0 || math.Abs(v-m) <= d.Deviations*sd {
			continue
		}
		res.Insights = append(res.Insights, model.Insight{
			Kind:         model.KindAnomaly,
			Metric:       name,
			Message:      fmt.Sprintf("Unusual %s detected: %.1f (Expected range: %.1f - %.1f)", humanMetric(name), v, m-sd, m+sd),
			Timestamp:    latest.Timestamp,
			Value:        v,
			ExpectedLow:  m - sd,
			ExpectedHigh: m + sd,
		})
	}
	return res, nil
}
