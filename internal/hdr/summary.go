package hdr

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/util"
)

// Keys of the textual summary, each prefixed by "<tag>.".
const (
	fieldTotalCount = "TotalCount"
	fieldPeriod     = "Period(ms)"
	fieldThroughput = "Throughput(ops/sec)"
	fieldMean       = "Mean"
	fieldP50        = "50.000ptile"
	fieldP90        = "90.000ptile"
	fieldP99        = "99.000ptile"
	fieldP999       = "99.900ptile"
	fieldP9999      = "99.990ptile"
	fieldP99999     = "99.999ptile"
)

const (
	nanosPerMilli   = 1_000_000
	millisPerSecond = 1_000
)

// SummaryEntries is the parsed content of a textual summary: key -> raw value.
type SummaryEntries map[string]string

// ProfileSummaryResult summarises one tag of a metric. Latencies are in milliseconds.
type ProfileSummaryResult struct {
	OpsCount            int64   `yaml:"ops_count" json:"ops_count"`
	StressTimeSeconds   float64 `yaml:"stress_time_s" json:"stress_time_s"`
	ThroughputPerSecond float64 `yaml:"throughput_per_second" json:"throughput_per_second"`
	MeanLatencyMs       float64 `yaml:"mean_latency_ms" json:"mean_latency_ms"`
	MedianLatencyMs     float64 `yaml:"median_latency_ms" json:"median_latency_ms"`
	P90LatencyMs        float64 `yaml:"p90_latency_ms" json:"p90_latency_ms"`
	P99LatencyMs        float64 `yaml:"p99_latency_ms" json:"p99_latency_ms"`
	P99_9LatencyMs      float64 `yaml:"p99_9_latency_ms" json:"p99_9_latency_ms"`
	P99_99LatencyMs     float64 `yaml:"p99_99_latency_ms" json:"p99_99_latency_ms"`
	P99_999LatencyMs    float64 `yaml:"p99_999_latency_ms" json:"p99_999_latency_ms"`
}

// ProfileSummary holds the result of every tag of a metric.
type ProfileSummary map[Tag]*ProfileSummaryResult

// Tags returns the tags of s, sorted.
func (s ProfileSummary) Tags() []Tag {
	tags := maps.Keys(s)
	slices.Sort(tags)
	return tags
}

// ReadSummaryEntries parses the summary file at path.
func ReadSummaryEntries(path string) (SummaryEntries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer util.CloseResource(path, f)
	return ParseSummaryEntries(f, path)
}

// ParseSummaryEntries parses one key=value pair per line; the first '=' separates key from value.
// Blank lines are skipped. path is only used in error messages.
func ParseSummaryEntries(r io.Reader, path string) (SummaryEntries, error) {
	entries := make(SummaryEntries)
	scanner := bufio.NewScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		i := strings.Index(line, "=")
		if i < 0 {
			return nil, malformed(path, lineNumber, fmt.Sprintf("expected key=value, got %q", line))
		}
		entries[strings.TrimSpace(line[:i])] = strings.TrimSpace(line[i+1:])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.WithMessagef(err, "error reading %s", path)
	}
	return entries, nil
}

// ReadProfileSummaryFile parses the summary file at path into per-tag results.
func ReadProfileSummaryFile(path string) (ProfileSummary, error) {
	entries, err := ReadSummaryEntries(path)
	if err != nil {
		return nil, err
	}
	return ParseProfileSummary(entries, path)
}

// ParseProfileSummary converts entries into per-tag results. The tags are the distinct key
// prefixes before the first '.'; every tag must have all required fields.
func ParseProfileSummary(entries SummaryEntries, path string) (ProfileSummary, error) {
	tags := make(map[Tag]bool)
	for key := range entries {
		tag, _, _ := strings.Cut(key, ".")
		tags[Tag(tag)] = true
	}

	sorted := maps.Keys(tags)
	slices.Sort(sorted)
	rv := make(ProfileSummary, len(tags))
	for _, tag := range sorted {
		p := &fieldParser{entries: entries, path: path, tag: tag}
		result := &ProfileSummaryResult{
			OpsCount:            p.int(fieldTotalCount),
			StressTimeSeconds:   p.float(fieldPeriod) / millisPerSecond,
			ThroughputPerSecond: p.float(fieldThroughput),
			MeanLatencyMs:       p.float(fieldMean) / nanosPerMilli,
			MedianLatencyMs:     p.float(fieldP50) / nanosPerMilli,
			P90LatencyMs:        p.float(fieldP90) / nanosPerMilli,
			P99LatencyMs:        p.float(fieldP99) / nanosPerMilli,
			P99_9LatencyMs:      p.float(fieldP999) / nanosPerMilli,
			P99_99LatencyMs:     p.float(fieldP9999) / nanosPerMilli,
			P99_999LatencyMs:    p.float(fieldP99999) / nanosPerMilli,
		}
		if p.err != nil {
			return nil, p.err
		}
		rv[tag] = result
	}
	return rv, nil
}

// fieldParser looks up "<tag>.<field>" keys, remembering the first error.
type fieldParser struct {
	entries SummaryEntries
	path    string
	tag     Tag
	err     error
}

func (p *fieldParser) lookup(field string) (string, bool) {
	if p.err != nil {
		return "", false
	}
	value, ok := p.entries[string(p.tag)+"."+field]
	if !ok {
		p.err = errors.WithStack(&bencherrors.ErrMissingField{Path: p.path, Tag: string(p.tag), Field: field})
	}
	return value, ok
}

func (p *fieldParser) int(field string) int64 {
	value, ok := p.lookup(field)
	if !ok {
		return 0
	}
	v, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		p.err = malformed(p.path, 0, fmt.Sprintf("%s.%s: %q is not an integer", p.tag, field, value))
	}
	return v
}

func (p *fieldParser) float(field string) float64 {
	value, ok := p.lookup(field)
	if !ok {
		return 0
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		p.err = malformed(p.path, 0, fmt.Sprintf("%s.%s: %q is not a number", p.tag, field, value))
	}
	return v
}
