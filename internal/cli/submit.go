package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ogulcanaydogan/vitalwatch/pkg/model"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a vital-signs reading",
	Long: `Evaluate a single reading for a subject and print the evaluation result.
Only the metrics given on the command line are recorded.`,
	RunE: runSubmit,
}

// metricFlags maps shorthand flags to metric names.
var metricFlags = []struct {
	flag, metric, usage string
}{
	{"hr", model.MetricHeartRate, "Heart rate (bpm)"},
	{"systolic", model.MetricSystolic, "Systolic blood pressure (mmHg)"},
	{"diastolic", model.MetricDiastolic, "Diastolic blood pressure (mmHg)"},
	{"temp", model.MetricTemperature, "Body temperature (°C)"},
	{"spo2", model.MetricOxygenSaturation, "Oxygen saturation (%)"},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringP("subject", "s", "", "Subject id")
	for _, m := range metricFlags {
		submitCmd.Flags().Float64(m.flag, 0, m.usage)
	}
	submitCmd.Flags().StringArrayP("metric", "m", nil, "Additional metric as name=value (repeatable)")
	submitCmd.Flags().String("at", "", "Reading time in RFC3339 (default now)")
	_ = submitCmd.MarkFlagRequired("subject")
}

func runSubmit(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	subject, _ := cmd.Flags().GetString("subject")
	extra, _ := cmd.Flags().GetStringArray("metric")
	at, _ := cmd.Flags().GetString("at")

	metrics := make(map[string]*float64)
	for _, m := range metricFlags {
		if !cmd.Flags().Changed(m.flag) {
			continue
		}
		v, _ := cmd.Flags().GetFloat64(m.flag)
		metrics[m.metric] = &v
	}
	for _, kv := range extra {
		name, v, err := parseMetric(kv)
		if err != nil {
			return err
		}
		metrics[name] = &v
	}
	if len(metrics) == 0 {
		return fmt.Errorf("at least one metric is required")
	}

	var ts time.Time
	if at != "" {
		ts, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at: %w", err)
		}
	}

	a, err := initApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Engine.SubmitReading(cmd.Context(), subject, metrics, ts)
	if err != nil {
		return fmt.Errorf("submit reading: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

func parseMetric(kv string) (string, float64, error) {
	name, raw, ok := strings.Cut(kv, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", 0, fmt.Errorf("invalid metric %q: want name=value", kv)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", 0, fmt.Errorf("invalid metric %q: %w", kv, err)
	}
	return name, v, nil
}
