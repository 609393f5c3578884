package analysis

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Range is the inclusive normal interval for one metric.
type Range struct {
	Metric string  `yaml:"metric" json:"metric"`
	Min    float64 `yaml:"min" json:"min"`
	Max    float64 `yaml:"max" json:"max"`
	Unit   string  `yaml:"unit,omitempty" json:"unit,omitempty"`
}

// RangeTable maps a metric name to its normal range. It is read-only once built.
type RangeTable map[string]Range

type rangeFile struct {
	Ranges []Range `yaml:"ranges"`
}

// LoadRangeTable reads a YAML range table file and validates it.
func LoadRangeTable(path string) (RangeTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read range file %s: %w", path, err)
	}
	table, err := ParseRangeTable(data)
	if err != nil {
		return nil, fmt.Errorf("range file %s: %w", path, err)
	}
	return table, nil
}

// ParseRangeTable parses YAML range table data from raw bytes.
func ParseRangeTable(data []byte) (RangeTable, error) {
	var f rangeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse range data: %w", err)
	}
	table := make(RangeTable, len(f.Ranges))
	for _, r := range f.Ranges {
		if _, dup := table[r.Metric]; dup {
			return nil, fmt.Errorf("duplicate range for metric %q", r.Metric)
		}
		table[r.Metric] = r
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate reports every malformed entry. An empty table is invalid.
func (t RangeTable) Validate() error {
	if len(t) == 0 {
		return errors.New("no ranges defined")
	}
	var errs []error
	for _, name := range t.Metrics() {
		r := t[name]
		switch {
		case name == "":
			errs = append(errs, errors.New("range with empty metric name"))
		case math.IsNaN(r.Min) || math.IsNaN(r.Max) || math.IsInf(r.Min, 0) || math.IsInf(r.Max, 0):
			errs = append(errs, fmt.Errorf("range %q: bounds must be finite", name))
		case r.Min >= r.Max:
			errs = append(errs, fmt.Errorf("range %q: min %g must be below max %g", name, r.Min, r.Max))
		}
	}
	return errors.Join(errs...)
}

// Metrics returns the metric names in sorted order.
func (t RangeTable) Metrics() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
