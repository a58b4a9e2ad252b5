package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/manet-simulator/broadcast"
	"github.com/signalsfoundry/manet-simulator/internal/logging"
)

func newAggregateCmd(root *rootOptions) *cobra.Command {
	var (
		storePath string
		importDir string
	)
	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Average stored runs per delay, algorithm and node count",
		Long:  `Aggregate prints the mean outcome of the connected runs in a result store, grouped by delay, algorithm and node count. Runs exported as result directories can be imported first with --import.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if storePath == "" {
				return fmt.Errorf("aggregate needs --store")
			}
			store, err := openStore(storePath)
			if err != nil {
				return err
			}
			defer store.Close()

			if importDir != "" {
				n, err := store.ImportDir(cmd.Context(), importDir)
				if err != nil {
					return err
				}
				root.log.Info(cmd.Context(), "imported runs", logging.String("dir", importDir), logging.Int("runs", n))
			}
			aggs, err := store.Aggregates(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), aggs)
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "SQLite result store")
	cmd.Flags().StringVar(&importDir, "import", "", "import exported result directories first")
	return cmd
}

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List the relay strategies",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, s := range broadcast.Strategies() {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
		},
	}
}
