package cmd

import (
	"github.com/spf13/cobra"

	"github.com/stressbench/stressbench/internal/stressbench"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	app := stressbench.New()
	cmd := &cobra.Command{
		Use:   "stressbench",
		Short: "stressbench runs Scylla/Cassandra benchmarks and summarises their latency histograms.",
		Long: `stressbench runs Scylla/Cassandra benchmarks and summarises their latency histograms.

Persistent config can be saved in a config file so it doesn't have to be specified every command.

Example structure:
java: /usr/lib/jvm/java-11/bin/java
concurrency: 8
output: yaml

The location of this file can be passed in using the --config argument.
If not provided, $HOME/.stressbench.yaml is used.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
	}

	addParamFlags(cmd)

	cmd.AddCommand(
		versionCmd(app),
		hdrCmd(app),
		benchmarkCmd(app),
	)

	return cmd
}

// Print version info and exit.
func versionCmd(app *stressbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Version()
		},
	}
	return cmd
}
