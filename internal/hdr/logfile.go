package hdr

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-zglob"
	"github.com/pkg/errors"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

const (
	// DefaultExtension is the extension of histogram logs written by the load generator.
	DefaultExtension = ".hdr"
	// Marker inserted before the extension of every file derived by trimming or merging.
	trimmedMarker = ".trimmed"
	// Suffix replacing the extension of a trimmed file to name its textual summary.
	summarySuffix = "-summary.txt"
)

// MetricName identifies a logical measurement stream, e.g. "log" for every log.hdr under a trial directory.
// Files sharing a MetricName in different host directories are shards of the same measurement.
type MetricName string

// Tag labels one operation type multiplexed into a single histogram log, e.g. "WRITE-st".
type Tag string

// FileState says how a LogFile came to exist.
type FileState int

const (
	// Raw files are written by the load generator and are never modified.
	Raw FileState = iota
	// Trimmed files are the time-windowed copy of a single raw shard.
	Trimmed
	// Aggregate is the union of every trimmed shard of a metric.
	Aggregate
)

func (s FileState) String() string {
	switch s {
	case Raw:
		return "raw"
	case Trimmed:
		return "trimmed"
	case Aggregate:
		return "aggregate"
	}
	return "unknown"
}

// LogFile is a handle on one histogram log. Stages hand these to each other rather than
// re-discovering their inputs on disk.
type LogFile struct {
	Path   string
	Metric MetricName
	// Directory of the file relative to the tree root, normally the name of the host it was
	// collected from. Empty for the aggregate.
	Host  string
	State FileState
	// Configured extension of the log, e.g. ".hdr". If empty, the last extension of Path is used.
	Ext string
}

// trimmed returns the handle of the trimmed sibling of a raw file.
func (f LogFile) trimmed() LogFile {
	return LogFile{
		Path:   f.stem() + trimmedMarker + f.ext(),
		Metric: f.Metric,
		Host:   f.Host,
		State:  Trimmed,
		Ext:    f.Ext,
	}
}

// SummaryPath is where the textual summary of f is written.
func (f LogFile) SummaryPath() string {
	return f.stem() + summarySuffix
}

// DecomposedPath is the output prefix of the per-tag series extracted from f.
func (f LogFile) DecomposedPath(tag Tag) string {
	return f.stem() + "_" + string(tag)
}

func (f LogFile) ext() string {
	if f.Ext != "" {
		return f.Ext
	}
	return filepath.Ext(f.Path)
}

// stem is Path without its extension.
func (f LogFile) stem() string {
	return strings.TrimSuffix(f.Path, f.ext())
}

// aggregateFile returns the handle of the merged log of metric in dir.
func aggregateFile(dir string, metric MetricName, ext string) LogFile {
	return LogFile{
		Path:   filepath.Join(dir, string(metric)+trimmedMarker+ext),
		Metric: metric,
		State:  Aggregate,
		Ext:    ext,
	}
}

// FindRawShards returns every raw log of metric below dir, sorted by path.
// Raw logs must live in a subdirectory of dir: a raw log directly in dir would be trimmed onto
// the path reserved for the aggregate.
func FindRawShards(dir string, metric MetricName, ext string) ([]LogFile, error) {
	if err := validateMetricName(metric); err != nil {
		return nil, err
	}
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	root := filepath.Clean(dir)
	rootLevel := filepath.Join(root, string(metric)+ext)
	if _, err := os.Stat(rootLevel); err == nil {
		return nil, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "dir",
			Value:   dir,
			Message: "raw log " + rootLevel + " collides with the merged output; raw logs must be in host subdirectories",
		})
	}

	paths, err := zglob.Glob(filepath.Join(root, "**", string(metric)+ext))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	var shards []LogFile
	for _, path := range paths {
		path = filepath.Clean(path)
		if filepath.Base(path) != string(metric)+ext || filepath.Dir(path) == root {
			continue
		}
		host, err := filepath.Rel(root, filepath.Dir(path))
		if err != nil {
			return nil, errors.WithStack(err)
		}
		shards = append(shards, LogFile{Path: path, Metric: metric, Host: host, State: Raw, Ext: ext})
	}
	slices.SortFunc(shards, func(a, b LogFile) bool { return a.Path < b.Path })
	return shards, nil
}

// FindMetricNames returns the distinct metric names of all raw logs below dir, sorted.
func FindMetricNames(dir string, ext string) ([]MetricName, error) {
	if err := checkDir(dir); err != nil {
		return nil, err
	}
	paths, err := zglob.Glob(filepath.Join(filepath.Clean(dir), "**", "*"+ext))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	names := make(map[MetricName]bool)
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ext)
		if name == "" || strings.HasSuffix(name, trimmedMarker) {
			continue
		}
		names[MetricName(name)] = true
	}
	rv := maps.Keys(names)
	slices.Sort(rv)
	return rv, nil
}

func validateMetricName(metric MetricName) error {
	name := string(metric)
	if name == "" || strings.ContainsAny(name, `/\*?[`) || strings.HasSuffix(name, trimmedMarker) {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "metric",
			Value:   name,
			Message: "must be the base name of a raw log without extension",
		})
	}
	return nil
}

func checkDir(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return errors.WithStack(&bencherrors.ErrNotFound{Type: "directory", Value: dir})
	} else if err != nil {
		return errors.WithStack(err)
	}
	if !info.IsDir() {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{Name: "dir", Value: dir, Message: "not a directory"})
	}
	return nil
}
