package cmd

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/stressbench/stressbench/internal/common/app"
	"github.com/stressbench/stressbench/internal/common/logging"
	"github.com/stressbench/stressbench/internal/hdr"
	"github.com/stressbench/stressbench/internal/stressbench"
)

func hdrCmd(a *stressbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hdr",
		Short: "Trim, merge and summarise the HdrHistogram logs of a trial directory.",
	}
	cmd.AddCommand(
		hdrProcessCmd(a),
		hdrProcessDirCmd(a),
	)
	return cmd
}

// Process one metric, e.g. every log.hdr below the directory.
func hdrProcessCmd(a *stressbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <dir> <metric>",
		Short: "Process the raw logs of one metric, e.g. 'log' for every log.hdr below <dir>.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithShutdown(a, func(ctx context.Context) error {
				return a.ProcessMetric(ctx, args[0], hdr.MetricName(args[1]))
			})
		},
	}
	return cmd
}

// Process every metric found below a directory.
func hdrProcessDirCmd(a *stressbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process-dir <dir>",
		Short: "Process every metric with raw logs below <dir>. A failing metric doesn't stop the others.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithShutdown(a, func(ctx context.Context) error {
				return a.ProcessDirectory(ctx, args[0])
			})
		},
	}
	return cmd
}

// runWithShutdown runs fn with a context cancelled on SIGINT/SIGTERM, so that running tools are
// terminated on ctrl-C, then writes the metrics file.
func runWithShutdown(a *stressbench.App, fn func(ctx context.Context) error) error {
	ctx, cancel := app.CreateContextWithShutdown()
	defer cancel()
	a.CountLogMessages()

	err := fn(ctx)
	if metricsErr := a.WriteMetrics(); metricsErr != nil {
		log.WithError(metricsErr).Error("failed to write metrics")
	}
	if err != nil {
		logging.WithStacktrace(log.NewEntry(log.StandardLogger()), err).Debug("command failed")
	}
	return err
}
