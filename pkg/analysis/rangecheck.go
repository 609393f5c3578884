package analysis

import (
	"fmt"
	"strings"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// CheckRanges compares every present metric of r against its normal range and
// returns one range insight per violation, ordered by metric name. Metrics that
// are absent or have no range entry are skipped. Severity is left for the
// classifier to assign.
func CheckRanges(r model.Reading, table RangeTable) []model.Insight {
	var out []model.Insight
	for _, name := range r.MetricNames() {
		bounds, ok := table[name]
		if !ok {
			continue
		}
		v := r.Metrics[name]
		var direction string
		var bound float64
		switch {
		case v < bounds.Min:
			direction, bound = model.DirectionLow, bounds.Min
		case v > bounds.Max:
			direction, bound = model.DirectionHigh, bounds.Max
		default:
			continue
		}
		out = append(out, model.Insight{
			Kind:      model.KindRange,
			Metric:    name,
			Message:   fmt.Sprintf("%s %s: %g", titleDirection(direction), humanMetric(name), v),
			Timestamp: r.Timestamp,
			Direction: direction,
			Value:     v,
			Bound:     bound,
		})
	}
	return out
}

func humanMetric(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}

func titleDirection(d string) string {
	if d == "" {
		return d
	}
	return strings.ToUpper(d[:1]) + d[1:]
}
