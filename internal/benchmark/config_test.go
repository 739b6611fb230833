package benchmark

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/process"
	"github.com/stressbench/stressbench/internal/hdr"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "trial.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
targetDatasetSizeGb: 10
rateFractions: [0.25, 0.5, 0.75]
phaseDuration: 10m
consistencyLevel: ONE
hdr:
  java: /opt/jdk/bin/java
  logProcessor: /usr/local/bin/HistogramLogProcessor
  concurrency: 8
  decompose: await
archive:
  endpoint: localhost:9000
  bucket: trials
`)
	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 10.0, config.TargetDatasetSizeGb)
	assert.Equal(t, []float64{0.25, 0.5, 0.75}, config.RateFractions)
	assert.Equal(t, 10*time.Minute, config.PhaseDuration)
	assert.Equal(t, 15*time.Second, config.Warmup)
	assert.Equal(t, "ONE", config.ConsistencyLevel)
	assert.Equal(t, 3, config.ReplicationFactor)
	require.NotNil(t, config.Archive)
	assert.Equal(t, "trials", config.Archive.Bucket)

	processing, err := config.HdrProcessing()
	require.NoError(t, err)
	assert.Equal(t, "/opt/jdk/bin/java", processing.Processor.Path)
	assert.Equal(t, process.Command{Path: "/usr/local/bin/HistogramLogProcessor", Args: []string{}}, processing.LogProcessor)
	assert.Equal(t, 8, processing.Concurrency)
	assert.Equal(t, hdr.DecomposeAwait, processing.Decompose)
	assert.Equal(t, 15.0, *processing.Window.Start)
	assert.Equal(t, 585.0, *processing.Window.End)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string]struct {
		content string
		field   string
	}{
		"missing dataset size": {content: "phaseDuration: 5m\n", field: "TargetDatasetSizeGb"},
		"unknown consistency":  {content: "targetDatasetSizeGb: 1\nconsistencyLevel: SOME\n", field: "ConsistencyLevel"},
		"negative fraction":    {content: "targetDatasetSizeGb: 1\nrateFractions: [0.5, -1]\n", field: "RateFractions[1]"},
		"phase too short":      {content: "targetDatasetSizeGb: 1\nphaseDuration: 30s\n", field: "PhaseDuration"},
		"bad decompose mode":   {content: "targetDatasetSizeGb: 1\nhdr:\n  decompose: sometimes\n", field: "Decompose"},
		"incomplete archive":   {content: "targetDatasetSizeGb: 1\narchive:\n  endpoint: localhost:9000\n", field: "Archive.Bucket"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			var invalid *bencherrors.ErrInvalidArgument
			require.True(t, errors.As(err, &invalid), "expected invalid argument, got %v", err)
			assert.Equal(t, tc.field, invalid.Name)
		})
	}
}

func TestConfig_Rows(t *testing.T) {
	config := DefaultConfig()
	config.TargetDatasetSizeGb = 210
	assert.Equal(t, int64(720_000_000), config.Rows())
}
