package hdr

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
)

// Processor turns the per-host histogram logs of a trial directory into per-tag summaries.
//
// For one metric the stages run strictly in order: every raw shard is trimmed, the trimmed shards
// are merged into one aggregate, then every trimmed file is summarized and the aggregate's summary
// is parsed. Per-tag decomposition of the trimmed files is started after the merge but, unless
// configured otherwise, doesn't hold up the summary.
//
// A Processor is safe for concurrent use.
type Processor struct {
	config      Config
	tool        *Tool
	diagnostics *diagnostics
}

// NewProcessor returns a Processor running tools through runner.
// limiter bounds the tool invocations of this Processor and of anything else sharing it.
func NewProcessor(config Config, runner Runner, limiter *Limiter, metrics *Metrics) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if limiter == nil {
		limiter = NewLimiter(config.Concurrency, metrics)
	}
	return &Processor{
		config:      config,
		tool:        NewTool(config, runner, limiter, metrics),
		diagnostics: &diagnostics{},
	}, nil
}

// ProcessMetric runs the whole pipeline for metric below dir and returns the summary of the
// merged log, keyed by tag. The result is all-or-nothing.
func (p *Processor) ProcessMetric(ctx context.Context, dir string, metric MetricName) (ProfileSummary, error) {
	logger := log.WithFields(log.Fields{"dir": dir, "metric": metric})

	shards, err := FindRawShards(dir, metric, p.config.Extension)
	if err != nil {
		return nil, err
	}
	if len(shards) == 0 {
		return nil, errors.WithStack(&bencherrors.ErrNotFound{
			Type:    "metric",
			Value:   string(metric),
			Message: "no raw " + p.config.Extension + " logs below " + dir,
		})
	}
	logger.Infof("processing %d shards", len(shards))

	trimmed, err := p.trim(ctx, shards)
	if err != nil {
		return nil, err
	}
	aggregate, err := p.merge(ctx, dir, metric, trimmed)
	if err != nil {
		return nil, err
	}

	tags, err := discoverTags(shards)
	if err != nil {
		return nil, err
	}
	logger.WithField("tags", tags).Debug("discovered tags")
	batch := p.decompose(ctx, metric, append(append([]LogFile{}, trimmed...), aggregate), tags)

	summary, err := p.summarize(ctx, trimmed, aggregate)
	if err != nil {
		return nil, err
	}
	for _, tag := range tags {
		if _, ok := summary[tag]; !ok {
			return nil, errors.WithStack(&bencherrors.ErrMissingField{
				Path:  aggregate.SummaryPath(),
				Tag:   string(tag),
				Field: fieldTotalCount,
			})
		}
	}

	if batch != nil && p.config.Decompose == DecomposeAwait {
		if err := batch.Wait(ctx); err != nil {
			return nil, err
		}
	}
	logger.Info("processing finished")
	return summary, nil
}

// ProcessDirectory runs ProcessMetric for every metric found below dir, all concurrently.
// A failing metric doesn't stop the others; the summaries of the metrics that succeeded are
// returned along with the combined errors of those that didn't.
func (p *Processor) ProcessDirectory(ctx context.Context, dir string) (map[MetricName]ProfileSummary, error) {
	metrics, err := FindMetricNames(dir, p.config.Extension)
	if err != nil {
		return nil, err
	}
	if len(metrics) == 0 {
		log.WithField("dir", dir).Warnf("no %s logs found", p.config.Extension)
	}

	var mu sync.Mutex
	rv := make(map[MetricName]ProfileSummary, len(metrics))
	var g multierror.Group
	for _, metric := range metrics {
		metric := metric
		g.Go(func() error {
			summary, err := p.ProcessMetric(ctx, dir, metric)
			if err != nil {
				log.WithError(err).WithField("metric", metric).Error("processing failed")
				return errors.WithMessagef(err, "metric %s", metric)
			}
			mu.Lock()
			defer mu.Unlock()
			rv[metric] = summary
			return nil
		})
	}
	return rv, g.Wait().ErrorOrNil()
}

// WaitDiagnostics waits for every background decomposition started so far and returns their
// combined failures. Batches still running when ctx is done stay pending.
func (p *Processor) WaitDiagnostics(ctx context.Context) error {
	return p.diagnostics.wait(ctx)
}

// trim trims every shard concurrently. The first failure cancels the others.
func (p *Processor) trim(ctx context.Context, shards []LogFile) ([]LogFile, error) {
	trimmed := make([]LogFile, len(shards))
	g, ctx := errgroup.WithContext(ctx)
	for i, shard := range shards {
		i, shard := i, shard
		g.Go(func() error {
			out, err := p.tool.Trim(ctx, shard, p.config.Window)
			if err != nil {
				return err
			}
			trimmed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.WithMessage(err, "trim stage failed")
	}
	return trimmed, nil
}

func (p *Processor) merge(ctx context.Context, dir string, metric MetricName, trimmed []LogFile) (LogFile, error) {
	aggregate, err := p.tool.Union(ctx, trimmed, aggregateFile(dir, metric, p.config.Extension))
	if err != nil {
		return LogFile{}, errors.WithMessage(err, "merge stage failed")
	}
	return aggregate, nil
}

// decompose starts decomposing every (file, tag) pair and returns without waiting.
// Returns nil if decomposition is disabled or there's nothing to do.
// Background batches are handed to the diagnostics; awaited ones belong to the caller.
func (p *Processor) decompose(ctx context.Context, metric MetricName, files []LogFile, tags []Tag) *DecomposeBatch {
	if p.config.Decompose == DecomposeDisabled || len(tags) == 0 {
		return nil
	}
	batch := newDecomposeBatch(metric)
	if p.config.Decompose == DecomposeBackground {
		p.diagnostics.add(batch)
	}

	var g multierror.Group
	for _, file := range files {
		for _, tag := range tags {
			file, tag := file, tag
			g.Go(func() error {
				_, err := p.tool.Decompose(ctx, file, tag)
				if err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).WithFields(log.Fields{"file": file.Path, "tag": tag}).Warn("decomposition failed")
				}
				return err
			})
		}
	}
	go func() {
		batch.finish(g.Wait().ErrorOrNil())
	}()
	return batch
}

// summarize summarizes every trimmed file and the aggregate, then parses the aggregate's summary.
func (p *Processor) summarize(ctx context.Context, trimmed []LogFile, aggregate LogFile) (ProfileSummary, error) {
	files := append(append([]LogFile{}, trimmed...), aggregate)
	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		file := file
		g.Go(func() error {
			path, err := p.tool.Summarize(ctx, file)
			if err != nil {
				return err
			}
			entries, err := ReadSummaryEntries(path)
			if err != nil {
				return err
			}
			log.WithFields(log.Fields{"file": path, "entries": len(entries)}).Debug("summary written")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.WithMessage(err, "summarize stage failed")
	}
	return ReadProfileSummaryFile(aggregate.SummaryPath())
}

// discoverTags returns the union of the tags of every shard, sorted.
func discoverTags(shards []LogFile) ([]Tag, error) {
	seen := make(map[Tag]bool)
	var rv []Tag
	for _, shard := range shards {
		tags, err := DiscoverTags(shard.Path)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			if !seen[tag] {
				seen[tag] = true
				rv = append(rv, tag)
			}
		}
	}
	slices.Sort(rv)
	return rv, nil
}
