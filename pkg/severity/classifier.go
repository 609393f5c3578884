package severity

import (
	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

// Classifier assigns a tier to every insight and derives the overall status.
type Classifier struct {
	critical map[string]bool
}

// NewClassifier returns a classifier that treats range and anomaly findings on
// the given metrics as critical. With no metrics, heart rate and oxygen
// saturation are used.
func NewClassifier(criticalMetrics ...string) *Classifier {
	if len(criticalMetrics) == 0 {
		criticalMetrics = []string{model.MetricHeartRate, model.MetricOxygenSaturation}
	}
	c := &Classifier{critical: make(map[string]bool, len(criticalMetrics))}
	for _, m := range criticalMetrics {
		c.critical[m] = true
	}
	return c
}

// Assessment is the classified outcome of one evaluation.
type Assessment struct {
	Status   model.Status
	Overall  model.Severity
	Insights []model.Insight
}

// Classify returns a copy of the insights with Severity set, and the overall
// tier. Every insight is kept.
func (c *Classifier) Classify(insights []model.Insight) Assessment {
	out := make([]model.Insight, len(insights))
	overall := model.SeverityNone
	for i, in := range insights {
		in.Severity = c.Tier(in)
		out[i] = in
		overall = model.MaxSeverity(overall, in.Severity)
	}
	return Assessment{Status: model.StatusFor(overall), Overall: overall, Insights: out}
}

// Tier returns the severity of a single insight.
func (c *Classifier) Tier(in model.Insight) model.Severity {
	switch in.Kind {
	case model.KindRange, model.KindAnomaly:
		if c.critical[in.Metric] {
			return model.SeverityCritical
		}
		return model.SeverityWarning
	case model.KindSOS:
		return model.SeverityCritical
	case model.KindTrend:
		if in.Direction == model.DirectionDecreasing {
			return model.SeverityWarning
		}
		return model.SeverityInfo
	default:
		return model.SeverityInfo
	}
}
