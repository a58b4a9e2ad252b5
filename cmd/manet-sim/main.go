// Package main provides the manet-sim CLI: single broadcast runs, parameter
// sweeps, and aggregation of stored results.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/manet-simulator/internal/config"
	"github.com/signalsfoundry/manet-simulator/internal/logging"
	"github.com/signalsfoundry/manet-simulator/internal/observability"
	"github.com/signalsfoundry/manet-simulator/internal/resultstore"
)

// Version is the current manet-sim version.
var Version = "0.3.0"

type rootOptions struct {
	logLevel  string
	logFormat string

	log      logging.Logger
	shutdown func(context.Context) error
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "manet-sim",
		Short:         "Oracle broadcast simulator for mobile ad-hoc networks",
		Long:          `manet-sim floods a message from node 0 across a field of mobile nodes, using an oracle relay strategy, and reports how many messages it took and whether every node was reached.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			opts.log = logging.New(logging.Config{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				Output: cmd.ErrOrStderr(),
			})
			tracing := observability.TracingConfigFromEnv(cmd.Name())
			tracing.Version = Version
			tracing.Output = cmd.ErrOrStderr()
			shutdown, err := observability.InitTracing(cmd.Context(), tracing, opts.log)
			if err != nil {
				return fmt.Errorf("initialising tracing: %w", err)
			}
			opts.shutdown = shutdown
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if opts.shutdown != nil {
				observability.ShutdownWithTimeout(cmd.Context(), opts.shutdown, opts.log)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(newRunCmd(opts), newSweepCmd(opts), newAggregateCmd(opts), newStrategiesCmd())
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads path, or returns the defaults when path is empty.
func loadConfig(path string) (config.RunConfig, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func openStore(path string) (*resultstore.Store, error) {
	if path == "" {
		return nil, nil
	}
	return resultstore.Open(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(v)
}
