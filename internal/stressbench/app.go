package stressbench

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/stressbench/stressbench/internal/archive"
	"github.com/stressbench/stressbench/internal/benchmark"
	"github.com/stressbench/stressbench/internal/common/process"
	"github.com/stressbench/stressbench/internal/deployment"
	"github.com/stressbench/stressbench/internal/hdr"
	"github.com/stressbench/stressbench/internal/stressbench/build"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out receives reports. Defaults to standard out.
	Out io.Writer
	// Runs every external command. Tests replace it with a fake.
	Runner *process.Exec
	// Registry the tool metrics are registered with.
	Registry *prometheus.Registry
}

// Params holds every user-customizable parameter. Flags and the config file both decode into it.
type Params struct {
	// Java runtime running the default histogram tools.
	Java string
	// Trim window in seconds; negative means unbounded.
	TimeStart float64
	TimeEnd   float64
	// Maximum number of concurrent tool invocations; 0 means twice the number of CPUs.
	Concurrency int
	Decompose   hdr.DecomposeMode
	// Output format of reports: table, yaml or json.
	Output string
	// If set, tool metrics are written here in the node exporter textfile format on exit.
	MetricsFile string
	// Directory of the deployment wrappers (ssh, ansible-inventory).
	BinDir string
}

func New() *App {
	runner := process.New()
	return &App{
		Params: &Params{
			Java:      hdr.DefaultJava,
			TimeStart: -1,
			TimeEnd:   -1,
			Decompose: hdr.DecomposeBackground,
			Output:    "table",
			BinDir:    deployment.DefaultOptions().BinDir,
		},
		Out:      os.Stdout,
		Runner:   runner,
		Registry: prometheus.NewRegistry(),
	}
}

// Version prints build information to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

// HdrConfig returns the histogram processing config described by the params.
func (a *App) HdrConfig() (hdr.Config, error) {
	config := hdr.DefaultConfig(a.Params.Java)
	config.Concurrency = a.Params.Concurrency
	config.Decompose = a.Params.Decompose
	if a.Params.TimeStart >= 0 {
		start := a.Params.TimeStart
		config.Window.Start = &start
	}
	if a.Params.TimeEnd >= 0 {
		end := a.Params.TimeEnd
		config.Window.End = &end
	}
	return config, config.Validate()
}

func (a *App) newProcessor(config hdr.Config) (*hdr.Processor, error) {
	metrics := hdr.NewMetrics(a.Registry)
	return hdr.NewProcessor(config, a.Runner, hdr.NewLimiter(config.Concurrency, metrics), metrics)
}

// ProcessMetric processes one metric of dir and prints its summary.
func (a *App) ProcessMetric(ctx context.Context, dir string, metric hdr.MetricName) error {
	config, err := a.HdrConfig()
	if err != nil {
		return err
	}
	processor, err := a.newProcessor(config)
	if err != nil {
		return err
	}
	summary, err := processor.ProcessMetric(ctx, dir, metric)
	if err != nil {
		return err
	}
	if err := a.report(&hdr.MetricReport{Directory: dir, Metric: metric, Summary: summary}); err != nil {
		return err
	}
	return a.waitDiagnostics(ctx, processor)
}

// ProcessDirectory processes every metric of dir and prints the summaries of those that succeed.
func (a *App) ProcessDirectory(ctx context.Context, dir string) error {
	config, err := a.HdrConfig()
	if err != nil {
		return err
	}
	processor, err := a.newProcessor(config)
	if err != nil {
		return err
	}
	summaries, processErr := processor.ProcessDirectory(ctx, dir)

	var result *multierror.Error
	if processErr != nil {
		result = multierror.Append(result, processErr)
	}
	if err := a.reportAll(dir, summaries); err != nil {
		result = multierror.Append(result, err)
	}
	if err := a.waitDiagnostics(ctx, processor); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Benchmark runs a latency/throughput trial against the named deployment.
func (a *App) Benchmark(ctx context.Context, name, configPath string) error {
	config, err := benchmark.LoadConfig(configPath)
	if err != nil {
		return err
	}
	hdrConfig, err := config.HdrProcessing()
	if err != nil {
		return err
	}
	processor, err := a.newProcessor(hdrConfig)
	if err != nil {
		return err
	}
	options := deployment.DefaultOptions()
	options.BinDir = a.Params.BinDir
	d, err := deployment.Load(ctx, name, a.Runner, options)
	if err != nil {
		return err
	}
	var archiver benchmark.Archiver
	if config.Archive.IsConfigured() {
		uploader, err := archive.New(*config.Archive)
		if err != nil {
			return err
		}
		archiver = uploader
	}

	report, err := benchmark.NewTrial(name, config, d, processor, archiver, nil).Run(ctx)
	if report != nil {
		for _, phase := range report.Phases {
			if reportErr := a.report(&hdr.MetricReport{Directory: phase.Directory, Metric: "log", Summary: phase.Summary}); reportErr != nil {
				log.WithError(reportErr).Error("failed to print phase report")
			}
		}
	}
	if err != nil {
		return err
	}
	return a.waitDiagnostics(ctx, processor)
}

var logHookOnce sync.Once

// CountLogMessages counts log messages per level when a metrics file is requested.
// The counters live in the default registry, which can only hold them once per process.
func (a *App) CountLogMessages() {
	if a.Params.MetricsFile == "" {
		return
	}
	logHookOnce.Do(func() {
		hook, err := promrus.NewPrometheusHook()
		if err != nil {
			log.WithError(err).Warn("log messages won't be counted")
			return
		}
		log.AddHook(hook)
	})
}

// WriteMetrics writes the collected tool metrics, and the log message counters, to
// Params.MetricsFile, if set.
func (a *App) WriteMetrics() error {
	if a.Params.MetricsFile == "" {
		return nil
	}
	gatherers := prometheus.Gatherers{a.Registry, prometheus.DefaultGatherer}
	return errors.WithStack(prometheus.WriteToTextfile(a.Params.MetricsFile, gatherers))
}

// reportAll reports the summaries of dir ordered by metric name.
func (a *App) reportAll(dir string, summaries map[hdr.MetricName]hdr.ProfileSummary) error {
	metrics := maps.Keys(summaries)
	slices.Sort(metrics)
	var result *multierror.Error
	for _, metric := range metrics {
		if err := a.report(&hdr.MetricReport{Directory: dir, Metric: metric, Summary: summaries[metric]}); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (a *App) report(r *hdr.MetricReport) error {
	formatter, err := hdr.FormatterFor(a.Params.Output)
	if err != nil {
		return err
	}
	if formatter == nil {
		r.Print(a.Out)
		return nil
	}
	out, err := r.Generate(formatter)
	if err != nil {
		return err
	}
	if a.Params.Output == "yaml" {
		out = append([]byte("---\n"), out...)
	}
	_, err = a.Out.Write(out)
	return errors.WithStack(err)
}

// waitDiagnostics reports, without failing, decompositions that didn't succeed.
func (a *App) waitDiagnostics(ctx context.Context, processor *hdr.Processor) error {
	if err := processor.WaitDiagnostics(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		log.WithError(err).Warn("some per-tag series could not be extracted")
	}
	return nil
}
