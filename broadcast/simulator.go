package broadcast

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/signalsfoundry/manet-simulator/core"
	"github.com/signalsfoundry/manet-simulator/internal/config"
	"github.com/signalsfoundry/manet-simulator/internal/logging"
	"github.com/signalsfoundry/manet-simulator/internal/observability"
	"github.com/signalsfoundry/manet-simulator/timectrl"
)

const tracerName = "github.com/signalsfoundry/manet-simulator/broadcast"

// RootID identifies the node that originates the broadcast.
var RootID = core.IntNodeID(0)

// Option customises a Simulator.
type Option func(*options)

type options struct {
	logger    logging.Logger
	collector *observability.SimulationCollector
	rng       *rand.Rand
	pos       []core.Vec2
	vel       []core.Vec2
	runID     string
}

// WithLogger sets the run logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCollector reports steps, relays and the run outcome to c.
func WithCollector(c *observability.SimulationCollector) Option {
	return func(o *options) { o.collector = c }
}

// WithRand overrides the placement RNG, which is otherwise seeded from the
// config seed.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithPlacement fixes the initial node positions instead of placing nodes
// at random. vel may be nil for nodes at rest. The node count follows
// len(pos).
func WithPlacement(pos, vel []core.Vec2) Option {
	return func(o *options) {
		o.pos = pos
		o.vel = vel
	}
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// Simulator runs one oracle broadcast over a freshly built field.
type Simulator struct {
	cfg      config.RunConfig
	strategy Strategy
	runID    string

	field      *core.Field
	engine     *core.SimulationEngine
	behaviors  []*Behavior
	relays     RelaySets
	controller *timectrl.StepController

	logger    logging.Logger
	collector *observability.SimulationCollector
	tracer    trace.Tracer

	next int
}

// NewSimulator validates cfg, builds the field, and computes the relay sets
// of the configured strategy. Configuration and geometry errors are
// reported here, before any step runs.
func NewSimulator(cfg config.RunConfig, opts ...Option) (*Simulator, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.pos != nil {
		cfg.Nodes = len(o.pos)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	strategy, err := ParseStrategy(cfg.Algorithm)
	if err != nil {
		return nil, err
	}
	provider, err := strategy.Provider()
	if err != nil {
		return nil, err
	}
	if o.logger == nil {
		o.logger = logging.Noop()
	}
	if o.runID == "" {
		o.runID = logging.NewRunID()
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}

	s := &Simulator{
		cfg:       cfg,
		strategy:  strategy,
		runID:     o.runID,
		logger:    o.logger.With(logging.String("run_id", o.runID), logging.String("strategy", string(strategy))),
		collector: o.collector,
		tracer:    observability.Tracer(tracerName),
	}

	field, err := s.buildField(o)
	if err != nil {
		return nil, err
	}
	s.field = field
	s.behaviors[0].Root = true

	snap, err := NewSnapshot(field, RootID)
	if err != nil {
		return nil, err
	}
	_, span := s.tracer.Start(context.Background(), "broadcast.Oracle", trace.WithAttributes(
		attribute.String("manet.strategy", string(strategy)),
		attribute.Int("manet.nodes", snap.Len()),
	))
	relays, err := provider(snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		s.logger.Error(context.Background(), "oracle computation failed", logging.Err(err))
		return nil, fmt.Errorf("%s oracle: %w", strategy, err)
	}
	span.End()
	s.relays = relays
	for i, n := range field.Nodes {
		if set, ok := relays[n.ID]; ok {
			s.behaviors[i].Relays = set
		}
	}

	s.engine = core.NewSimulationEngine(field)
	s.engine.RegisterTickListener(func(st core.StepStats) {
		s.collector.ObserveStep(st.Delivered, st.InFlight, st.EdgesAdded, st.EdgesRemoved, st.Connected)
	})

	s.controller, err = timectrl.NewStepController(cfg.Policy(func() bool {
		return s.Convergence() || !s.Connectivity()
	}))
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Simulator) buildField(o options) (*core.Field, error) {
	cfg := s.cfg
	m := cfg.Mobility
	fieldOpts := []core.FieldOption{
		core.WithOrigin(core.Vec2{X: cfg.Origin.X, Y: cfg.Origin.Y}),
		core.WithLinkWeight(cfg.LinkWeight),
		core.WithPhysics(core.Physics{
			WallCoefficient: m.Wall.Coefficient,
			WallPower:       m.Wall.Power,
			WallReflection:  m.Reflection,
			MinSpeed:        m.MinSpeed,
			MaxSpeed:        m.MaxSpeed,
		}),
	}
	if m.Enabled {
		fieldOpts = append(fieldOpts, core.WithMotionModel(&core.MolecularMotionModel{
			AttractionCoefficient: m.Attraction.Coefficient,
			AttractionPower:       m.Attraction.Power,
			RepulsionCoefficient:  m.Repulsion.Coefficient,
			RepulsionPower:        m.Repulsion.Power,
		}))
	}

	s.behaviors = make([]*Behavior, cfg.Nodes)
	newBehavior := func(i int, id core.NodeID) *Behavior {
		b := NewBehavior(id, cfg.Delay)
		b.OnRelay = s.observeRelay
		s.behaviors[i] = b
		return b
	}

	if o.pos == nil {
		i := 0
		return core.InitRandom(o.rng, cfg.Nodes, cfg.Width, cfg.Height, m.NodeSize, m.ComRadius,
			m.VelocityMin, m.VelocityMax, func(id core.NodeID) core.NodeBehavior {
				b := newBehavior(i, id)
				i++
				return b
			}, fieldOpts...)
	}

	g := core.NewGraph(core.Undirected)
	nodes := make([]*core.Node, len(o.pos))
	for i := range o.pos {
		id := core.IntNodeID(i)
		nodes[i] = core.NewNode(id, newBehavior(i, id))
		if err := g.AddNode(nodes[i]); err != nil {
			return nil, err
		}
	}
	vel := o.vel
	if vel == nil {
		vel = make([]core.Vec2, len(o.pos))
	}
	pos := append([]core.Vec2(nil), o.pos...)
	return core.NewField(g, nodes, core.NewColliderSet(m.NodeSize, m.ComRadius, pos, vel), cfg.Width, cfg.Height, fieldOpts...)
}

func (s *Simulator) observeRelay(n *core.Node, to []core.NodeID) {
	s.collector.IncRelays(string(s.strategy))
	s.logger.Debug(context.Background(), "node relayed",
		logging.String("node", string(n.ID)),
		logging.Int("recipients", len(to)),
		logging.Int("frame", s.next),
	)
}

// Step runs the next step of the run.
func (s *Simulator) Step() error { return s.step(s.next) }

func (s *Simulator) step(t int) error {
	if err := s.engine.Step(t); err != nil {
		return err
	}
	s.next = t + 1
	for _, b := range s.behaviors {
		if err := b.Err(); err != nil {
			return fmt.Errorf("relay at step %d: %w", t, err)
		}
	}
	return nil
}

// Run steps the simulation until its termination policy ends it or ctx is
// cancelled. It resumes after any steps already taken with Step.
func (s *Simulator) Run(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "broadcast.Run", trace.WithAttributes(
		attribute.String("manet.run_id", s.runID),
		attribute.String("manet.strategy", string(s.strategy)),
		attribute.Int("manet.nodes", s.cfg.Nodes),
		attribute.Int("manet.delay", s.cfg.Delay),
	))
	defer span.End()

	s.logger.Info(ctx, "broadcast run started",
		logging.Int("nodes", s.cfg.Nodes),
		logging.Int("delay", s.cfg.Delay),
	)
	start := time.Now()
	last, err := s.controller.RunFrom(ctx, s.next, s.step)
	elapsed := time.Since(start)

	outcome := s.outcome()
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error(ctx, "broadcast run failed", logging.Int("frame", last), logging.Err(err))
	}
	s.collector.ObserveRun(string(s.strategy), outcome, elapsed)
	span.SetAttributes(
		attribute.Int("manet.frames", last),
		attribute.String("manet.outcome", outcome),
	)
	if err != nil {
		return err
	}
	s.logger.Info(ctx, "broadcast run finished",
		logging.Int("frame", last),
		logging.String("outcome", outcome),
		logging.Bool("connectivity", s.Connectivity()),
		logging.Int("sent_messages", s.SentMessages()),
	)
	return nil
}

func (s *Simulator) outcome() string {
	switch {
	case s.Success():
		return "success"
	case s.Failed():
		return "failed"
	case !s.Connectivity():
		return "disconnected"
	default:
		return "unfinished"
	}
}

// RunID returns the run identifier.
func (s *Simulator) RunID() string { return s.runID }

// Strategy returns the oracle strategy of the run.
func (s *Simulator) Strategy() Strategy { return s.strategy }

// Config returns the effective run configuration.
func (s *Simulator) Config() config.RunConfig { return s.cfg }

// Field returns the simulated field.
func (s *Simulator) Field() *core.Field { return s.field }

// Nodes returns the nodes in field order.
func (s *Simulator) Nodes() []*core.Node { return s.field.Nodes }

// Behaviors returns the node behaviors in field order.
func (s *Simulator) Behaviors() []*Behavior { return s.behaviors }

// Messages returns the messages currently in flight.
func (s *Simulator) Messages() []*core.Message { return s.field.Graph.Messages() }

// RelaySets returns the relay sets computed for the run.
func (s *Simulator) RelaySets() RelaySets { return s.relays }

// Frame returns the last step run, or -1 before the first.
func (s *Simulator) Frame() int { return s.next - 1 }
