package analysis_test

import (
	"time"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

var base = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

// windowOf builds one reading per value of metric, a minute apart.
func windowOf(metric string, values ...float64) []model.Reading {
	out := make([]model.Reading, len(values))
	for i, v := range values {
		out[i] = model.Reading{
			ID:        "r",
			SubjectID: "s1",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Metrics:   map[string]float64{metric: v},
		}
	}
	return out
}

func linear(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + step*float64(i)
	}
	return out
}

// alternating returns center+amp, center-amp, ... for n samples.
func alternating(n int, center, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		if i%2 == 0 {
			out[i] = center + amp
		} else {
			out[i] = center - amp
		}
	}
	return out
}
