package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/stressbench/stressbench/internal/stressbench"
)

// Run a latency/throughput trial against a deployment.
func benchmarkCmd(a *stressbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "benchmark <deployment> <config.yaml>",
		Short: "Run a latency/throughput trial against a deployment and summarise every phase.",
		Long: `Run a latency/throughput trial against a deployment.

The dataset is populated first. Then every read/write mix is run at full throughput and at each
configured fraction of it. Histogram logs, summaries and the report of the trial are written
under trials/<deployment>/<timestamp>.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithShutdown(a, func(ctx context.Context) error {
				return a.Benchmark(ctx, args[0], args[1])
			})
		},
	}
	return cmd
}
