package hdr

import (
	"bufio"
	"encoding/csv"
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

// Histogram log layout, as written by HdrHistogram's HistogramLogWriter:
//
//	#[Logged with ...]
//	#[Histogram log format version 1.3]
//	#[StartTime: 1441812279.474 (seconds since epoch), ...]
//	"StartTimestamp","Interval_Length","Interval_Max","Interval_Compressed_Histogram"
//	Tag=WRITE-st,0.127,1.007,2.769,HISTFAAAAEV42pNpmSz...
const (
	commentPrefix       = "#"
	formatVersionPrefix = "#[Histogram log format version "
	legendPrefix        = `"StartTimestamp"`
	tagColumnPrefix     = "Tag="

	untaggedColumns = 4
	taggedColumns   = 5

	maxLogLineBytes = 64 * 1024 * 1024
)

var supportedFormatVersions = map[string]bool{
	"1.01": true,
	"1.02": true,
	"1.1":  true,
	"1.2":  true,
	"1.3":  true,
}

// LogHeader holds the non-interval lines of a histogram log.
type LogHeader struct {
	// Empty if the log doesn't declare a version.
	FormatVersion string
	Comments      []string
	Legend        []string
}

// IntervalRow is one histogram interval. The compressed histogram itself is kept opaque.
type IntervalRow struct {
	// Empty for untagged rows.
	Tag            Tag
	StartTimestamp float64
	IntervalLength float64
	IntervalMax    float64
	Histogram      string
}

// ReadLog reads a histogram log from r, calling fn for every interval row in order.
// Rows that are neither tagged (5 columns, "Tag=" prefix) nor untagged (4 columns) are rejected.
// path is only used in error messages.
func ReadLog(r io.Reader, path string, fn func(IntervalRow) error) (LogHeader, error) {
	header := LogHeader{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineBytes)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, commentPrefix):
			header.Comments = append(header.Comments, line)
			if strings.HasPrefix(line, formatVersionPrefix) {
				version := strings.TrimSuffix(strings.TrimPrefix(line, formatVersionPrefix), "]")
				if !supportedFormatVersions[version] {
					return header, malformed(path, lineNumber, fmt.Sprintf("unsupported log format version %q", version))
				}
				header.FormatVersion = version
			}
		case strings.HasPrefix(line, legendPrefix):
			fields, err := splitRow(line)
			if err != nil {
				return header, malformed(path, lineNumber, err.Error())
			}
			header.Legend = fields
		default:
			fields, err := splitRow(line)
			if err != nil {
				return header, malformed(path, lineNumber, err.Error())
			}
			row, err := parseIntervalRow(fields)
			if err != nil {
				return header, malformed(path, lineNumber, err.Error())
			}
			if err := fn(row); err != nil {
				return header, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return header, errors.WithMessagef(err, "error reading %s", path)
	}
	return header, nil
}

// DiscoverTags returns the distinct tags of the interval rows in the log at path, sorted.
// Untagged rows are ignored.
func DiscoverTags(path string) ([]Tag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer util.CloseResource(path, f)

	tags := make(map[Tag]bool)
	_, err = ReadLog(f, path, func(row IntervalRow) error {
		if row.Tag != "" {
			tags[row.Tag] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rv := maps.Keys(tags)
	slices.Sort(rv)
	return rv, nil
}

func splitRow(line string) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.FieldsPerRecord = -1
	fields, err := reader.Read()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return fields, nil
}

func parseIntervalRow(fields []string) (IntervalRow, error) {
	row := IntervalRow{}
	switch {
	case len(fields) == taggedColumns && strings.HasPrefix(fields[0], tagColumnPrefix):
		row.Tag = Tag(strings.TrimPrefix(fields[0], tagColumnPrefix))
		if row.Tag == "" {
			return row, errors.New("empty tag")
		}
		fields = fields[1:]
	case len(fields) == untaggedColumns && !strings.HasPrefix(fields[0], tagColumnPrefix):
	default:
		return row, errors.Errorf(
			"expected %d columns with a %q prefix or %d untagged columns, got %d",
			taggedColumns, tagColumnPrefix, untaggedColumns, len(fields),
		)
	}

	values := make([]float64, 3)
	for i, name := range []string{"StartTimestamp", "Interval_Length", "Interval_Max"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return row, errors.Errorf("column %s: %q is not a number", name, fields[i])
		}
		values[i] = v
	}
	row.StartTimestamp = values[0]
	row.IntervalLength = values[1]
	row.IntervalMax = values[2]
	row.Histogram = fields[3]
	return row, nil
}

func malformed(path string, line int, message string) error {
	return errors.WithStack(&bencherrors.ErrMalformedLog{Path: path, Line: line, Message: message})
}
