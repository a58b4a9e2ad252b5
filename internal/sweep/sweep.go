// Package sweep runs a grid of broadcast simulations in parallel and hands
// each result to a set of sinks.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/manet-simulator/broadcast"
	"github.com/signalsfoundry/manet-simulator/internal/config"
	"github.com/signalsfoundry/manet-simulator/internal/export"
	"github.com/signalsfoundry/manet-simulator/internal/logging"
	"github.com/signalsfoundry/manet-simulator/internal/observability"
	"github.com/signalsfoundry/manet-simulator/model"
)

// ErrInvalidPlan is returned for plans that describe no runs.
var ErrInvalidPlan = errors.New("invalid sweep plan")

// Plan is the grid of runs: every delay, algorithm and node count, repeated.
// All other settings come from Base.
type Plan struct {
	Base        config.RunConfig
	Algorithms  []string
	Delays      []int
	MinNodes    int
	MaxNodes    int // inclusive
	NodeStep    int
	Repetitions int
	// Parallelism bounds concurrent runs; zero means GOMAXPROCS.
	Parallelism int
}

// Validate checks the grid shape and that every algorithm is known.
func (p Plan) Validate() error {
	switch {
	case len(p.Algorithms) == 0:
		return fmt.Errorf("%w: no algorithms", ErrInvalidPlan)
	case len(p.Delays) == 0:
		return fmt.Errorf("%w: no delays", ErrInvalidPlan)
	case p.MinNodes < 1 || p.MaxNodes < p.MinNodes:
		return fmt.Errorf("%w: node range [%d, %d]", ErrInvalidPlan, p.MinNodes, p.MaxNodes)
	case p.NodeStep < 1:
		return fmt.Errorf("%w: node step %d", ErrInvalidPlan, p.NodeStep)
	case p.Repetitions < 1:
		return fmt.Errorf("%w: repetitions %d", ErrInvalidPlan, p.Repetitions)
	case p.Parallelism < 0:
		return fmt.Errorf("%w: parallelism %d", ErrInvalidPlan, p.Parallelism)
	}
	for _, alg := range p.Algorithms {
		if _, err := broadcast.ParseStrategy(alg); err != nil {
			return err
		}
	}
	return nil
}

// Configs expands the plan into one config per run. Seeds advance from the
// base seed so that a plan always reproduces the same runs.
func (p Plan) Configs() []config.RunConfig {
	var out []config.RunConfig
	seed := p.Base.Seed
	for _, delay := range p.Delays {
		for _, alg := range p.Algorithms {
			for n := p.MinNodes; n <= p.MaxNodes; n += p.NodeStep {
				for range p.Repetitions {
					cfg := p.Base
					cfg.Algorithm = alg
					cfg.Delay = delay
					cfg.Nodes = n
					cfg.Seed = seed
					seed++
					out = append(out, cfg)
				}
			}
		}
	}
	return out
}

// Sink receives finished runs. Implementations must be safe for concurrent
// use.
type Sink interface {
	Put(ctx context.Context, res model.RunResult) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res model.RunResult) error

func (f SinkFunc) Put(ctx context.Context, res model.RunResult) error { return f(ctx, res) }

// ExportSink writes each run as a result directory under Root.
type ExportSink struct {
	Root    string
	Options export.Options
}

func (s ExportSink) Put(_ context.Context, res model.RunResult) error {
	_, err := export.Save(s.Root, res, s.Options)
	return err
}

// SummaryInserter stores run summaries; *resultstore.Store satisfies it.
type SummaryInserter interface {
	Insert(ctx context.Context, sum model.RunSummary) error
}

// StoreSink inserts each run summary into a result store. With
// ConnectedOnly set, runs that lost connectivity are skipped.
type StoreSink struct {
	Store         SummaryInserter
	ConnectedOnly bool
}

func (s StoreSink) Put(ctx context.Context, res model.RunResult) error {
	if s.ConnectedOnly && !res.Whole.Connectivity {
		return export.ErrSkipped
	}
	return s.Store.Insert(ctx, res.Whole)
}

// Report counts the outcomes of a sweep.
type Report struct {
	Runs         int
	Succeeded    int
	Disconnected int
	Skipped      int
}

// Option customises a Runner.
type Option func(*Runner)

// WithLogger sets the sweep logger; runs log through it with their run ID.
func WithLogger(l logging.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithCollector reports every run to c.
func WithCollector(c *observability.SimulationCollector) Option {
	return func(r *Runner) { r.collector = c }
}

// WithSinks adds result sinks.
func WithSinks(sinks ...Sink) Option {
	return func(r *Runner) { r.sinks = append(r.sinks, sinks...) }
}

// Runner executes a Plan.
type Runner struct {
	plan      Plan
	sinks     []Sink
	logger    logging.Logger
	collector *observability.SimulationCollector
}

// NewRunner validates the plan and returns a runner for it.
func NewRunner(plan Plan, opts ...Option) (*Runner, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{plan: plan, logger: logging.Noop()}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run executes every run of the plan, at most Parallelism at a time. The
// first failing run or sink cancels the rest. Each run owns its own
// simulator, so runs share nothing but the sinks and the collector.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	configs := r.plan.Configs()
	limit := r.plan.Parallelism
	if limit == 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	var (
		mu     sync.Mutex
		report Report
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	r.logger.Info(ctx, "sweep started", logging.Int("runs", len(configs)), logging.Int("parallelism", limit))
	for _, cfg := range configs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			sum, skipped, err := r.runOne(gctx, cfg)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			report.Runs++
			if sum.Success {
				report.Succeeded++
			}
			if !sum.Connectivity {
				report.Disconnected++
			}
			if skipped {
				report.Skipped++
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	r.logger.Info(ctx, "sweep finished",
		logging.Int("runs", report.Runs),
		logging.Int("succeeded", report.Succeeded),
		logging.Int("skipped", report.Skipped),
	)
	return report, err
}

func (r *Runner) runOne(ctx context.Context, cfg config.RunConfig) (model.RunSummary, bool, error) {
	runID := logging.NewRunID()
	ctx = logging.ContextWithRunID(ctx, runID)

	sim, err := broadcast.NewSimulator(cfg,
		broadcast.WithRunID(runID),
		broadcast.WithLogger(r.logger),
		broadcast.WithCollector(r.collector),
	)
	if err != nil {
		return model.RunSummary{}, false, fmt.Errorf("%s with %d nodes, seed %d: %w", cfg.Algorithm, cfg.Nodes, cfg.Seed, err)
	}
	if err := sim.Run(ctx); err != nil {
		return model.RunSummary{}, false, err
	}

	res := sim.Result()
	skipped := false
	for _, sink := range r.sinks {
		if err := sink.Put(ctx, res); err != nil {
			if errors.Is(err, export.ErrSkipped) {
				skipped = true
				continue
			}
			return res.Whole, false, fmt.Errorf("storing run %s: %w", runID, err)
		}
	}
	return res.Whole, skipped, nil
}
