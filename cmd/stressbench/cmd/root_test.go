package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stressbench/stressbench/internal/common"
	"github.com/stressbench/stressbench/internal/hdr"
	"github.com/stressbench/stressbench/internal/stressbench"
)

func TestRootCmd_Commands(t *testing.T) {
	root := RootCmd()
	for _, path := range [][]string{{"version"}, {"hdr", "process"}, {"hdr", "process-dir"}, {"benchmark"}} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestInitParams(t *testing.T) {
	config := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(config, []byte("java: /opt/jdk/bin/java\nconcurrency: 3\noutput: yaml\n"), 0o644))

	app := stressbench.New()
	cmd := RootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", config, "--concurrency", "5", "--timeStart", "15", "--decompose", "disabled"}))
	require.NoError(t, initParams(cmd, app))

	assert.Equal(t, "/opt/jdk/bin/java", app.Params.Java)
	assert.Equal(t, 5, app.Params.Concurrency)
	assert.Equal(t, "yaml", app.Params.Output)
	assert.Equal(t, 15.0, app.Params.TimeStart)
	assert.Equal(t, -1.0, app.Params.TimeEnd)
	assert.Equal(t, hdr.DecomposeDisabled, app.Params.Decompose)
}

func TestInitParams_DebugDumpsParameters(t *testing.T) {
	hook := test.NewGlobal()
	t.Cleanup(func() {
		log.StandardLogger().ReplaceHooks(make(log.LevelHooks))
		log.SetLevel(log.InfoLevel)
	})

	cmd := RootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", writeConfig(t, "java: /opt/jdk/bin/java\n"), "--logLevel", "debug"}))
	require.NoError(t, initParams(cmd, stressbench.New()))

	var dump string
	for _, entry := range hook.AllEntries() {
		if strings.HasPrefix(entry.Message, "parameters:") {
			dump = entry.Message
		}
	}
	assert.Contains(t, dump, `Java: "/opt/jdk/bin/java"`)
	assert.Contains(t, dump, "TimeEnd: -1")
}

func TestInitParams_MissingConfig(t *testing.T) {
	cmd := RootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Error(t, initParams(cmd, stressbench.New()))
}

func TestInitParams_LogFormat(t *testing.T) {
	t.Cleanup(common.ConfigureCommandLineLogging)

	cmd := RootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", writeConfig(t, "logLevel: info\n"), "--logFormat", "text"}))
	require.NoError(t, initParams(cmd, stressbench.New()))
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)

	cmd = RootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--config", writeConfig(t, "logLevel: info\n"), "--logFormat", "json"}))
	assert.Error(t, initParams(cmd, stressbench.New()))
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestVersionCmd(t *testing.T) {
	app := stressbench.New()
	out := &bytes.Buffer{}
	app.Out = out
	cmd := versionCmd(app)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Commit:")
}
