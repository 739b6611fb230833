package hdr

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/process"
)

// Operation names, used in logs and metrics.
const (
	opTrim      = "trim"
	opUnion     = "union"
	opSummarize = "summarize"
	opDecompose = "decompose"
)

// Runner starts external commands. *process.Exec is the production implementation.
type Runner interface {
	Run(ctx context.Context, c process.Command) error
	RunToFile(ctx context.Context, c process.Command, path string) error
}

// Tool invokes the external histogram processing programs. Every invocation holds a Limiter slot
// for its whole lifetime. Failures are returned as-is and never retried.
type Tool struct {
	processor    process.Command
	logProcessor process.Command
	runner       Runner
	limiter      *Limiter
	metrics      *Metrics
}

func NewTool(config Config, runner Runner, limiter *Limiter, metrics *Metrics) *Tool {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Tool{
		processor:    config.Processor,
		logProcessor: config.LogProcessor,
		runner:       runner,
		limiter:      limiter,
		metrics:      metrics,
	}
}

// Trim writes the intervals of in that fall within window to its ".trimmed" sibling.
// The processor has no dedicated trim command; a single-input union with bounds does the job.
func (t *Tool) Trim(ctx context.Context, in LogFile, window TimeWindow) (LogFile, error) {
	out := in.trimmed()
	args := []string{"union", "-ifp", in.Path, "-of", out.Path}
	if window.Start != nil {
		args = append(args, "-start", formatSeconds(*window.Start))
	}
	if window.End != nil {
		args = append(args, "-end", formatSeconds(*window.End))
	}
	err := t.invoke(ctx, opTrim, func() error {
		return t.runner.Run(ctx, t.processor.With(args...))
	})
	if err != nil {
		return LogFile{}, errors.WithMessagef(err, "failed to trim %s", in.Path)
	}
	return out, nil
}

// Union writes the union of the intervals of inputs to out.
func (t *Tool) Union(ctx context.Context, inputs []LogFile, out LogFile) (LogFile, error) {
	if len(inputs) == 0 {
		return LogFile{}, errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "inputs",
			Value:   out.Path,
			Message: "union needs at least one input",
		})
	}
	args := []string{"union"}
	for _, in := range inputs {
		args = append(args, "-ifp", in.Path)
	}
	args = append(args, "-of", out.Path)
	err := t.invoke(ctx, opUnion, func() error {
		return t.runner.Run(ctx, t.processor.With(args...))
	})
	if err != nil {
		return LogFile{}, errors.WithMessagef(err, "failed to merge %d logs into %s", len(inputs), out.Path)
	}
	return out, nil
}

// Summarize writes the key=value summary of in to in.SummaryPath() and returns that path.
func (t *Tool) Summarize(ctx context.Context, in LogFile) (string, error) {
	path := in.SummaryPath()
	err := t.invoke(ctx, opSummarize, func() error {
		return t.runner.RunToFile(ctx, t.processor.With("summarize", "-ifp", in.Path), path)
	})
	if err != nil {
		return "", errors.WithMessagef(err, "failed to summarize %s", in.Path)
	}
	return path, nil
}

// Decompose extracts the series of tag from in, writing outputs prefixed by in.DecomposedPath(tag).
func (t *Tool) Decompose(ctx context.Context, in LogFile, tag Tag) (string, error) {
	out := in.DecomposedPath(tag)
	err := t.invoke(ctx, opDecompose, func() error {
		return t.runner.Run(ctx, t.logProcessor.With("-i", in.Path, "-o", out, "-tag", string(tag)))
	})
	if err != nil {
		return "", errors.WithMessagef(err, "failed to decompose tag %s of %s", tag, in.Path)
	}
	return out, nil
}

func (t *Tool) invoke(ctx context.Context, operation string, fn func() error) error {
	return t.limiter.Do(ctx, func() error {
		start := time.Now()
		err := fn()
		t.metrics.observe(operation, time.Since(start), err)
		return err
	})
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}
