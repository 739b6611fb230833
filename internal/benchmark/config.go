package benchmark

import (
	"time"

	"github.com/pkg/errors"

	"github.com/stressbench/stressbench/internal/archive"
	"github.com/stressbench/stressbench/internal/common"
	"github.com/stressbench/stressbench/internal/common/bencherrors"
	commonconfig "github.com/stressbench/stressbench/internal/common/config"
	"github.com/stressbench/stressbench/internal/common/process"
	"github.com/stressbench/stressbench/internal/hdr"
)

// Config of a latency/throughput trial.
type Config struct {
	// Fractions of the measured maximum throughput to run each mix at, after the unthrottled run.
	RateFractions []float64 `validate:"dive,gt=0"`
	// Length of each load phase.
	PhaseDuration time.Duration `validate:"gt=0"`
	// Excluded from the start and the end of every phase's measurements.
	Warmup   time.Duration `validate:"gte=0"`
	Cooldown time.Duration `validate:"gte=0"`
	// Consistency level of the stress operations.
	ConsistencyLevel string `validate:"oneof=ANY ONE TWO THREE QUORUM ALL LOCAL_QUORUM EACH_QUORUM LOCAL_ONE"`
	// cassandra-stress executable on the clients.
	CassandraStress     string  `validate:"required"`
	ReplicationFactor   int     `validate:"gt=0"`
	TargetDatasetSizeGb float64 `validate:"gt=0"`
	// Local directory trials are written under.
	TrialsDir string `validate:"required"`
	// Configuration directories copied from every server at the start of a trial.
	ServerConfigPaths []string
	Hdr               HdrConfig
	// Optional upload of the finished trial. Validated when present.
	Archive *archive.Config
}

// HdrConfig selects the histogram tools. Zero fields keep the defaults of hdr.DefaultConfig.
type HdrConfig struct {
	Java         string
	Processor    process.Command
	LogProcessor process.Command
	Extension    string
	Concurrency  int `validate:"gte=0"`
	Decompose    hdr.DecomposeMode
}

func DefaultConfig() Config {
	return Config{
		RateFractions:     []float64{0.5},
		PhaseDuration:     300 * time.Second,
		Warmup:            15 * time.Second,
		Cooldown:          15 * time.Second,
		ConsistencyLevel:  "QUORUM",
		CassandraStress:   "cassandra-stress",
		ReplicationFactor: 3,
		TrialsDir:         "trials",
		ServerConfigPaths: []string{"/etc/scylla", "/etc/scylla.d"},
		Hdr:               HdrConfig{Java: hdr.DefaultJava},
	}
}

// LoadConfig reads a trial config file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if _, err := common.LoadConfig(&config, []string{path}); err != nil {
		return Config{}, err
	}
	return config, config.Validate()
}

func (c Config) Validate() error {
	if err := commonconfig.Validate(c); err != nil {
		return err
	}
	if c.Warmup+c.Cooldown >= c.PhaseDuration {
		return errors.WithStack(&bencherrors.ErrInvalidArgument{
			Name:    "PhaseDuration",
			Value:   c.PhaseDuration.String(),
			Message: "must be longer than Warmup plus Cooldown",
		})
	}
	_, err := c.HdrProcessing()
	return err
}

// HdrProcessing returns the histogram processing config of every phase: the configured tools,
// with measurements trimmed to [Warmup, PhaseDuration-Cooldown].
func (c Config) HdrProcessing() (hdr.Config, error) {
	rv := hdr.DefaultConfig(c.Hdr.Java)
	if !c.Hdr.Processor.IsZero() {
		rv.Processor = c.Hdr.Processor
	}
	if !c.Hdr.LogProcessor.IsZero() {
		rv.LogProcessor = c.Hdr.LogProcessor
	}
	if c.Hdr.Extension != "" {
		rv.Extension = c.Hdr.Extension
	}
	if c.Hdr.Decompose != "" {
		rv.Decompose = c.Hdr.Decompose
	}
	rv.Concurrency = c.Hdr.Concurrency
	start := c.Warmup.Seconds()
	end := (c.PhaseDuration - c.Cooldown).Seconds()
	rv.Window = hdr.TimeWindow{Start: &start, End: &end}
	return rv, rv.Validate()
}

// Rows returns the number of rows that make up the target dataset size, using the average
// size of a cassandra-stress row.
func (c Config) Rows() int64 {
	return int64(c.TargetDatasetSizeGb * bytesPerGb / defaultRowSize)
}

const (
	bytesPerGb = 1024 * 1024 * 1024
	// 720M default cassandra-stress rows take up 210GB.
	defaultRowSize = 210 * bytesPerGb / 720_000_000.0
)
