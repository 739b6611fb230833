package hdr

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/process"
)

// DecomposeMode controls how per-tag decomposition relates to the summary path.
type DecomposeMode string

const (
	// DecomposeBackground runs decomposition without holding up the summary. Failures are logged
	// and returned by Processor.WaitDiagnostics.
	DecomposeBackground DecomposeMode = "background"
	// DecomposeAwait makes ProcessMetric wait for decomposition and fail if it fails.
	DecomposeAwait DecomposeMode = "await"
	// DecomposeDisabled skips decomposition.
	DecomposeDisabled DecomposeMode = "disabled"
)

const DefaultJava = "java"

// TimeWindow bounds the intervals kept by trimming, in seconds relative to the start of the log.
// A nil bound is unbounded on that side.
type TimeWindow struct {
	Start *float64
	End   *float64
}

type Config struct {
	// Runs the trim, union and summarize operations.
	Processor process.Command
	// Runs per-tag decomposition.
	LogProcessor process.Command
	// Extension of raw histogram logs, including the dot.
	Extension string
	Window    TimeWindow
	// Maximum number of concurrent tool invocations. Zero means DefaultConcurrency.
	Concurrency int
	Decompose   DecomposeMode
}

// DefaultConfig returns a Config that runs the tools from ./lib with the given java executable.
func DefaultConfig(java string) Config {
	if java == "" {
		java = DefaultJava
	}
	return Config{
		Processor: process.Command{
			Path: java,
			Args: []string{"-cp", "lib/processor.jar", "CommandDispatcherMain"},
		},
		LogProcessor: process.Command{
			Path: java,
			Args: []string{"-cp", "lib/HdrHistogram-2.1.12.jar", "org.HdrHistogram.HistogramLogProcessor"},
		},
		Extension: DefaultExtension,
		Decompose: DecomposeBackground,
	}
}

func (c Config) Validate() error {
	if c.Processor.IsZero() {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "Processor",
			Value:   c.Processor.String(),
			Message: "not provided",
		})
	}
	switch c.Decompose {
	case DecomposeBackground, DecomposeAwait:
		if c.LogProcessor.IsZero() {
			return errors.WithStack(&bencherrors.ErrInvalidArgument{
				Name:    "LogProcessor",
				Value:   c.LogProcessor.String(),
				Message: "required unless decomposition is disabled",
			})
		}
	case DecomposeDisabled:
	default:
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "Decompose",
			Value:   c.Decompose,
			Message: "must be one of background, await or disabled",
		})
	}
	if !strings.HasPrefix(c.Extension, ".") || len(c.Extension) < 2 {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "Extension",
			Value:   c.Extension,
			Message: "must start with a dot",
		})
	}
	if c.Concurrency < 0 {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "Concurrency",
			Value:   c.Concurrency,
			Message: "must not be negative",
		})
	}
	return c.Window.Validate()
}

func (w TimeWindow) Validate() error {
	if w.Start != nil && *w.Start < 0 {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "Window.Start",
			Value:   *w.Start,
			Message: "must not be negative",
		})
	}
	if w.Start != nil && w.End != nil && *w.End < *w.Start {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "Window.End",
			Value:   *w.End,
			Message: "must not be before Window.Start",
		})
	}
	return nil
}
