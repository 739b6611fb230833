package hdr

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/openconfig/goyang/pkg/indent"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/stressbench/stressbench/internal/common/util"
)

// MetricReport is the serialisable outcome of processing one metric.
type MetricReport struct {
	Directory string         `yaml:"directory" json:"directory"`
	Metric    MetricName     `yaml:"metric" json:"metric"`
	Summary   ProfileSummary `yaml:"summary" json:"summary"`
}

// Formatter serialises a report.
type Formatter func(r *MetricReport) ([]byte, error)

// YamlFormatter goes through the json tags, so both formats carry the same keys.
func YamlFormatter(r *MetricReport) ([]byte, error) {
	out, err := yaml.Marshal(r)
	return out, errors.WithStack(err)
}

func JsonFormatter(r *MetricReport) ([]byte, error) {
	out, err := json.MarshalIndent(r, "", "  ")
	return out, errors.WithStack(err)
}

// FormatterFor returns the formatter for a named output format: "yaml", "json" or "" for none.
func FormatterFor(format string) (Formatter, error) {
	switch format {
	case "yaml":
		return YamlFormatter, nil
	case "json":
		return JsonFormatter, nil
	case "", "table":
		return nil, nil
	}
	return nil, errors.Errorf("unknown output format %q; valid formats are table, yaml and json", format)
}

// Generate serialises r with formatter, defaulting to YAML.
func (r *MetricReport) Generate(formatter Formatter) ([]byte, error) {
	if formatter == nil {
		formatter = YamlFormatter
	}
	return formatter(r)
}

// String renders r as a table, one row per tag.
func (r *MetricReport) String() string {
	b := util.NewTabbedStringBuilder(1, 1, 2, ' ', tabwriter.AlignRight)
	b.Row("tag", "ops", "time (s)", "ops/s", "mean (ms)", "p50", "p90", "p99", "p99.9", "p99.99", "p99.999")
	for _, tag := range r.Summary.Tags() {
		s := r.Summary[tag]
		b.Writef(
			"%s\t%d\t%.1f\t%.1f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t%.3f\t\n",
			tag, s.OpsCount, s.StressTimeSeconds, s.ThroughputPerSecond, s.MeanLatencyMs,
			s.MedianLatencyMs, s.P90LatencyMs, s.P99LatencyMs, s.P99_9LatencyMs, s.P99_99LatencyMs, s.P99_999LatencyMs,
		)
	}
	return b.String()
}

// Print writes a titled, indented table of r to out.
func (r *MetricReport) Print(out io.Writer) {
	_, _ = fmt.Fprintf(out, "\nSummary of %s in %s:\n", r.Metric, r.Directory)
	_, _ = fmt.Fprint(out, indent.String("  ", r.String()))
}
