package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressbench/stressbench/internal/common/bencherrors"
	"github.com/stressbench/stressbench/internal/common/logging"
	"github.com/stressbench/stressbench/internal/common/process"
)

type testConfig struct {
	PhaseDuration time.Duration
	Java          process.Command
	Hdr           struct {
		Concurrency int
		Extension   string
	}
}

func writeFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_LaterFilesOverride(t *testing.T) {
	base := writeFile(t, "phaseDuration: 5m\njava: java -Xmx1g\nhdr:\n  concurrency: 4\n  extension: .hdr\n")
	override := writeFile(t, "hdr:\n  concurrency: 8\n")

	var config testConfig
	_, err := LoadConfig(&config, []string{base, override})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, config.PhaseDuration)
	assert.Equal(t, process.Command{Path: "java", Args: []string{"-Xmx1g"}}, config.Java)
	assert.Equal(t, 8, config.Hdr.Concurrency)
	assert.Equal(t, ".hdr", config.Hdr.Extension)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	path := writeFile(t, "hdr:\n  concurrency: 4\n")
	t.Setenv("STRESSBENCH_HDR_CONCURRENCY", "16")

	var config testConfig
	_, err := LoadConfig(&config, []string{path})
	require.NoError(t, err)
	assert.Equal(t, 16, config.Hdr.Concurrency)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	var config testConfig
	_, err := LoadConfig(&config, []string{filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestSetLogLevel(t *testing.T) {
	assert.NoError(t, SetLogLevel("debug"))
	assert.Error(t, SetLogLevel("loud"))
	assert.NoError(t, SetLogLevel("info"))
}

func TestSetLogFormat(t *testing.T) {
	t.Cleanup(ConfigureCommandLineLogging)

	require.NoError(t, SetLogFormat(LogFormatText))
	formatter, ok := log.StandardLogger().Formatter.(*log.TextFormatter)
	require.True(t, ok, "expected a text formatter, got %T", log.StandardLogger().Formatter)
	assert.True(t, formatter.FullTimestamp)
	assert.Equal(t, os.Stderr, log.StandardLogger().Out)

	require.NoError(t, SetLogFormat(LogFormatCommandLine))
	assert.IsType(t, &logging.CommandLineFormatter{}, log.StandardLogger().Formatter)

	err := SetLogFormat("json")
	var invalid *bencherrors.ErrInvalidArgument
	require.True(t, errors.As(err, &invalid), "expected invalid argument, got %v", err)
	assert.Equal(t, "logFormat", invalid.Name)
}
