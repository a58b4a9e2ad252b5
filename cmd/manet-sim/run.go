package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/manet-simulator/broadcast"
	"github.com/signalsfoundry/manet-simulator/internal/config"
	"github.com/signalsfoundry/manet-simulator/internal/export"
	"github.com/signalsfoundry/manet-simulator/timectrl"
)

type runFlags struct {
	configPath string
	algorithm  string
	nodes      int
	delay      int
	seed       uint64
	timeout    int
	outDir     string
	compress   bool
	storePath  string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single broadcast and print its summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f.configPath)
			if err != nil {
				return err
			}
			applyRunOverrides(cmd, f, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			sim, err := broadcast.NewSimulator(cfg, broadcast.WithLogger(root.log))
			if err != nil {
				return err
			}
			if err := sim.Run(cmd.Context()); err != nil {
				return err
			}
			res := sim.Result()

			if f.outDir != "" {
				dir, err := export.Save(f.outDir, res, export.Options{Compress: f.compress, ConnectedOnly: cfg.ConnectedOnly})
				switch {
				case errors.Is(err, export.ErrSkipped):
					fmt.Fprintln(cmd.ErrOrStderr(), "connectivity lost; result not saved")
				case err != nil:
					return err
				default:
					fmt.Fprintln(cmd.ErrOrStderr(), "saved", dir)
				}
			}
			store, err := openStore(f.storePath)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				if !cfg.ConnectedOnly || res.Whole.Connectivity {
					if err := store.Insert(cmd.Context(), res.Whole); err != nil {
						return err
					}
				}
			}
			return writeJSON(cmd.OutOrStdout(), res.Whole)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "YAML run configuration")
	cmd.Flags().StringVarP(&f.algorithm, "algorithm", "a", "", "relay strategy, overrides the config")
	cmd.Flags().IntVarP(&f.nodes, "nodes", "n", 0, "node count, overrides the config")
	cmd.Flags().IntVar(&f.delay, "delay", 0, "relay delay in steps, overrides the config")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "placement seed, overrides the config")
	cmd.Flags().IntVar(&f.timeout, "timeout", 0, "stop after this step, overrides the config")
	cmd.Flags().StringVarP(&f.outDir, "out", "o", "", "write result documents under this directory")
	cmd.Flags().BoolVar(&f.compress, "compress", false, "zstd-compress result documents")
	cmd.Flags().StringVar(&f.storePath, "store", "", "SQLite result store to record the summary in")
	return cmd
}

func applyRunOverrides(cmd *cobra.Command, f *runFlags, cfg *config.RunConfig) {
	flags := cmd.Flags()
	if flags.Changed("algorithm") {
		cfg.Algorithm = f.algorithm
	}
	if flags.Changed("nodes") {
		cfg.Nodes = f.nodes
	}
	if flags.Changed("delay") {
		cfg.Delay = f.delay
	}
	if flags.Changed("seed") {
		cfg.Seed = f.seed
	}
	if flags.Changed("timeout") {
		cfg.Termination.Timeout = timectrl.Steps(f.timeout)
	}
}
