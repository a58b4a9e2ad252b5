package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/manet-simulator/broadcast"
	"github.com/signalsfoundry/manet-simulator/internal/export"
	"github.com/signalsfoundry/manet-simulator/internal/sweep"
	"github.com/signalsfoundry/manet-simulator/timectrl"
)

type sweepFlags struct {
	configPath  string
	algorithms  []string
	delays      []int
	minNodes    int
	maxNodes    int
	step        int
	repetitions int
	parallel    int
	timeout     int
	outDir      string
	compress    bool
	storePath   string
}

func newSweepCmd(root *rootOptions) *cobra.Command {
	f := &sweepFlags{}
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run every algorithm over a range of node counts and delays",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			base, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("timeout") {
				base.Termination.Timeout = timectrl.Steps(f.timeout)
			}
			if f.outDir == "" && f.storePath == "" {
				return fmt.Errorf("sweep needs --out or --store")
			}

			var sinks []sweep.Sink
			if f.outDir != "" {
				sinks = append(sinks, sweep.ExportSink{
					Root:    f.outDir,
					Options: export.Options{Compress: f.compress, ConnectedOnly: base.ConnectedOnly},
				})
			}
			store, err := openStore(f.storePath)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				sinks = append(sinks, sweep.StoreSink{Store: store, ConnectedOnly: base.ConnectedOnly})
			}

			runner, err := sweep.NewRunner(sweep.Plan{
				Base:        base,
				Algorithms:  f.algorithms,
				Delays:      f.delays,
				MinNodes:    f.minNodes,
				MaxNodes:    f.maxNodes,
				NodeStep:    f.step,
				Repetitions: f.repetitions,
				Parallelism: f.parallel,
			}, sweep.WithLogger(root.log), sweep.WithSinks(sinks...))
			if err != nil {
				return err
			}
			report, err := runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}

	all := make([]string, 0, len(broadcast.Strategies()))
	for _, s := range broadcast.Strategies() {
		all = append(all, string(s))
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML base configuration")
	cmd.Flags().StringSliceVarP(&f.algorithms, "algorithms", "a", all, "relay strategies to run")
	cmd.Flags().IntSliceVar(&f.delays, "delays", []int{5}, "relay delays to run")
	cmd.Flags().IntVar(&f.minNodes, "min-nodes", 10, "smallest node count")
	cmd.Flags().IntVar(&f.maxNodes, "max-nodes", 50, "largest node count")
	cmd.Flags().IntVar(&f.step, "step", 10, "node count increment")
	cmd.Flags().IntVarP(&f.repetitions, "repetitions", "r", 10, "runs per grid point")
	cmd.Flags().IntVarP(&f.parallel, "parallel", "p", 0, "concurrent runs, 0 for GOMAXPROCS")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0, "stop each run after this step, overrides the config")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "write result documents under this directory")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "zstd-compress result documents")
	cmd.Flags().StringVar(&f.storePath, "store", "", "SQLite result store to record summaries in")
	return cmd
}
