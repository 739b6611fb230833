// Package benchmark runs latency/throughput trials: every read/write mix is first run unthrottled
// to find the maximum throughput, then at fractions of it, and the latencies of every run are
// summarised from the histogram logs of the clients.
package benchmark

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/util"
	"github.com/stressbench/stressbench/internal/deployment"
	"github.com/stressbench/stressbench/internal/hdr"
)

const (
	writeTag = hdr.Tag("WRITE-st")
	readTag  = hdr.Tag("READ-st")

	// Name of the report written in every phase directory and, for the whole trial, in the trial directory.
	SummaryFile = "summary.yaml"
	ReportFile  = "report.yaml"

	saturatingThreads = 500
	throttledThreads  = 200
	trialTimeFormat   = "2006-01-02T15-04-05"
)

// Mix is the write:read ratio of a phase.
type Mix struct {
	Write int `yaml:"write"`
	Read  int `yaml:"read"`
}

func (m Mix) String() string {
	return fmt.Sprintf("W%d-R%d", m.Write, m.Read)
}

// Mixes run by every trial, in order.
var Mixes = []Mix{{Write: 0, Read: 1}, {Write: 1, Read: 0}, {Write: 1, Read: 1}}

// Deployment is what a trial needs from the machines under test.
type Deployment interface {
	ServerNames() []string
	ClientNames() []string
	Collect(ctx context.Context, hosts []string, src, destDir string) error
	Populate(ctx context.Context, o deployment.PopulateOptions) error
	Quiesce(ctx context.Context) error
	CassandraStress(ctx context.Context, o deployment.StressOptions) error
}

// Processor summarises the histogram logs of a phase.
type Processor interface {
	ProcessMetric(ctx context.Context, dir string, metric hdr.MetricName) (hdr.ProfileSummary, error)
}

// Archiver uploads a finished trial.
type Archiver interface {
	UploadDirectory(ctx context.Context, dir, name string) (int, error)
}

// PhaseResult is the outcome of one stress run.
type PhaseResult struct {
	Mix          Mix                `yaml:"mix"`
	RateFraction float64            `yaml:"rate_fraction"`
	Rate         string             `yaml:"rate"`
	Directory    string             `yaml:"directory"`
	Summary      hdr.ProfileSummary `yaml:"summary"`
}

// Report is the outcome of a whole trial.
type Report struct {
	Deployment string    `yaml:"deployment"`
	Directory  string    `yaml:"directory"`
	Started    time.Time `yaml:"started"`
	Rows       int64     `yaml:"rows"`
	// Unthrottled throughput of every mix, in operations per second.
	MaxRates map[string]float64 `yaml:"max_rates"`
	Phases   []PhaseResult      `yaml:"phases"`
}

// Trial runs one latency/throughput trial against a deployment.
type Trial struct {
	name       string
	config     Config
	deployment Deployment
	processor  Processor
	archiver   Archiver
	clock      util.Clock
}

// NewTrial returns a Trial of the named deployment. archiver may be nil.
func NewTrial(name string, config Config, d Deployment, processor Processor, archiver Archiver, clock util.Clock) *Trial {
	if clock == nil {
		clock = &util.DefaultClock{}
	}
	return &Trial{
		name:       name,
		config:     config,
		deployment: d,
		processor:  processor,
		archiver:   archiver,
		clock:      clock,
	}
}

// Run populates the dataset, then runs every mix at full and at every configured fraction of
// full throughput, summarising each run. The report is written to the trial directory.
func (t *Trial) Run(ctx context.Context) (*Report, error) {
	started := t.clock.Now()
	dir := filepath.Join(t.config.TrialsDir, t.name, started.Format(trialTimeFormat))
	report := &Report{
		Deployment: t.name,
		Directory:  dir,
		Started:    started,
		Rows:       t.config.Rows(),
		MaxRates:   map[string]float64{},
	}
	logger := log.WithFields(log.Fields{"deployment": t.name, "trial": dir})
	logger.Infof("starting trial with %d rows", report.Rows)

	for _, path := range t.config.ServerConfigPaths {
		if err := t.deployment.Collect(ctx, t.deployment.ServerNames(), path, dir); err != nil {
			return nil, errors.WithMessagef(err, "failed to collect %s", path)
		}
	}
	err := t.deployment.Populate(ctx, deployment.PopulateOptions{
		Rows:              report.Rows,
		ReplicationFactor: t.config.ReplicationFactor,
		Executable:        t.config.CassandraStress,
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to populate")
	}
	if err := t.deployment.Quiesce(ctx); err != nil {
		return nil, err
	}

	fractions := append([]float64{1.0}, t.config.RateFractions...)
	for _, mix := range Mixes {
		var maxRate float64
		for _, fraction := range fractions {
			phase, err := t.runPhase(ctx, dir, mix, fraction, maxRate)
			if err != nil {
				return nil, errors.WithMessagef(err, "phase %s at %.2f", mix, fraction)
			}
			report.Phases = append(report.Phases, *phase)
			if fraction == 1.0 {
				maxRate, err = throughput(phase.Summary, mix)
				if err != nil {
					return nil, err
				}
				report.MaxRates[mix.String()] = maxRate
				logger.Infof("maximum throughput of %s: %.1f ops/s", mix, maxRate)
			}
			if mix.Write > 0 {
				if err := t.deployment.Quiesce(ctx); err != nil {
					return nil, err
				}
			}
		}
	}

	if err := writeYaml(filepath.Join(dir, ReportFile), report); err != nil {
		return nil, err
	}
	if t.archiver != nil {
		if _, err := t.archiver.UploadDirectory(ctx, dir, filepath.ToSlash(filepath.Join(t.name, filepath.Base(dir)))); err != nil {
			return report, errors.WithMessage(err, "trial finished but could not be archived")
		}
	}
	logger.Info("trial finished")
	return report, nil
}

func (t *Trial) runPhase(ctx context.Context, trialDir string, mix Mix, fraction, maxRate float64) (*PhaseResult, error) {
	rate := fmt.Sprintf("threads=%d", saturatingThreads)
	if fraction != 1.0 {
		perClient := int64(fraction * maxRate / float64(len(t.deployment.ClientNames())))
		rate = fmt.Sprintf("threads=%d fixed=%d/s", throttledThreads, perClient)
	}
	log.WithFields(log.Fields{"mix": mix, "rate": rate}).Info("starting phase")

	err := t.deployment.CassandraStress(ctx, deployment.StressOptions{
		Operation: fmt.Sprintf(
			`mixed ratio\(write=%d,read=%d\) duration=%ds cl=%s`,
			mix.Write, mix.Read, int64(t.config.PhaseDuration.Seconds()), t.config.ConsistencyLevel,
		),
		Population: fmt.Sprintf("dist=UNIFORM(1..%d)", t.config.Rows()),
		Rate:       rate,
		Executable: t.config.CassandraStress,
	})
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(trialDir, mix.String(), fmt.Sprintf("cassandra-stress-%.2f", fraction))
	if err := t.deployment.Collect(ctx, t.deployment.ClientNames(), deployment.StressLogFile, dir); err != nil {
		return nil, err
	}
	summary, err := t.processor.ProcessMetric(ctx, dir, hdr.MetricName(trimExtension(deployment.StressLogFile)))
	if err != nil {
		return nil, err
	}
	phase := &PhaseResult{Mix: mix, RateFraction: fraction, Rate: rate, Directory: dir, Summary: summary}
	if err := writeYaml(filepath.Join(dir, SummaryFile), phase); err != nil {
		return nil, err
	}
	return phase, nil
}

// throughput returns the combined throughput of the operations mix performs.
func throughput(summary hdr.ProfileSummary, mix Mix) (float64, error) {
	var rv float64
	for _, op := range []struct {
		active bool
		tag    hdr.Tag
	}{{mix.Write > 0, writeTag}, {mix.Read > 0, readTag}} {
		if !op.active {
			continue
		}
		result, ok := summary[op.tag]
		if !ok {
			return 0, errors.WithStack(&bencherrors.ErrMissingField{Path: mix.String(), Tag: string(op.tag), Field: "Throughput(ops/sec)"})
		}
		rv += result.ThroughputPerSecond
	}
	return rv, nil
}

func trimExtension(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}

func writeYaml(path string, v interface{}) error {
	out, err := yaml.Marshal(v)
	if err != nil {
		return errors.WithStack(err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(path, out, 0o644))
}
