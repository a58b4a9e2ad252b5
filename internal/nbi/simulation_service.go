package nbi

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/manet-simulator/broadcast"
	"github.com/signalsfoundry/manet-simulator/internal/logging"
	"github.com/signalsfoundry/manet-simulator/internal/observability"
	"github.com/signalsfoundry/manet-simulator/internal/sweep"
)

// SimulationServiceName is the fully qualified gRPC service name.
const SimulationServiceName = "manet.v1.SimulationService"

// Full method names of the simulation service.
const (
	StartRunMethod = "/" + SimulationServiceName + "/StartRun"
	GetRunMethod   = "/" + SimulationServiceName + "/GetRun"
	ListRunsMethod = "/" + SimulationServiceName + "/ListRuns"
)

// SimulationServiceServer is the server API of the simulation service.
// Requests and responses are Struct messages so that the run config keeps
// the schema of the YAML config file.
type SimulationServiceServer interface {
	StartRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// RegisterSimulationServiceServer registers srv on s.
func RegisterSimulationServiceServer(s grpc.ServiceRegistrar, srv SimulationServiceServer) {
	s.RegisterService(&simulationServiceDesc, srv)
}

var simulationServiceDesc = grpc.ServiceDesc{
	ServiceName: SimulationServiceName,
	HandlerType: (*SimulationServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "StartRun", Handler: startRunHandler},
		{MethodName: "GetRun", Handler: getRunHandler},
		{MethodName: "ListRuns", Handler: listRunsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "manet/v1/simulation.proto",
}

func startRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServiceServer).StartRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StartRunMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SimulationServiceServer).StartRun(ctx, req.(*structpb.Struct))
	})
}

func getRunHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServiceServer).GetRun(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetRunMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SimulationServiceServer).GetRun(ctx, req.(*structpb.Struct))
	})
}

func listRunsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SimulationServiceServer).ListRuns(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: ListRunsMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(SimulationServiceServer).ListRuns(ctx, req.(*emptypb.Empty))
	})
}

// SimulationServiceClient calls the simulation service.
type SimulationServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSimulationServiceClient returns a client on cc.
func NewSimulationServiceClient(cc grpc.ClientConnInterface) *SimulationServiceClient {
	return &SimulationServiceClient{cc: cc}
}

func (c *SimulationServiceClient) StartRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StartRunMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SimulationServiceClient) GetRun(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, GetRunMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SimulationServiceClient) ListRuns(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ListRunsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ServiceOption customises a SimulationService.
type ServiceOption func(*SimulationService)

// WithServiceLogger sets the service logger.
func WithServiceLogger(l logging.Logger) ServiceOption {
	return func(s *SimulationService) { s.log = l }
}

// WithServerCollector reports run counts to c.
func WithServerCollector(c *observability.ServerCollector) ServiceOption {
	return func(s *SimulationService) { s.collector = c }
}

// WithSimulationCollector reports each run's steps and outcome to c.
func WithSimulationCollector(c *observability.SimulationCollector) ServiceOption {
	return func(s *SimulationService) { s.simCollector = c }
}

// WithResultSinks hands every finished run to sinks.
func WithResultSinks(sinks ...sweep.Sink) ServiceOption {
	return func(s *SimulationService) { s.sinks = append(s.sinks, sinks...) }
}

// SimulationService runs broadcast simulations on request and keeps their
// outcomes in a RunRegistry.
type SimulationService struct {
	runs *RunRegistry

	log          logging.Logger
	collector    *observability.ServerCollector
	simCollector *observability.SimulationCollector
	sinks        []sweep.Sink

	// ctx bounds background runs; it outlives individual requests.
	ctx context.Context
	wg  sync.WaitGroup
	now func() time.Time
}

// NewSimulationService returns a service whose background runs stop when ctx
// is cancelled.
func NewSimulationService(ctx context.Context, opts ...ServiceOption) *SimulationService {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &SimulationService{
		runs: NewRunRegistry(),
		log:  logging.Noop(),
		ctx:  ctx,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Runs exposes the run registry.
func (s *SimulationService) Runs() *RunRegistry { return s.runs }

// Wait blocks until every background run has finished.
func (s *SimulationService) Wait() { s.wg.Wait() }

// StartRun builds a simulator from the request and runs it. Configuration
// and geometry errors are reported synchronously. The run ID is the request's
// run ID, taken from the x-run-id header when the client sends one.
func (s *SimulationService) StartRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	in, err := decodeStartRequest(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	ctx, runID := logging.EnsureRunID(ctx)

	opts := []broadcast.Option{
		broadcast.WithRunID(runID),
		broadcast.WithLogger(s.log),
		broadcast.WithCollector(s.simCollector),
	}
	if in.Positions != nil {
		opts = append(opts, broadcast.WithPlacement(in.Positions, nil))
	}
	sim, err := broadcast.NewSimulator(in.Config, opts...)
	if err != nil {
		return nil, ToStatusError(err)
	}

	cfg := sim.Config()
	if err := s.runs.Start(RunInfo{
		ID:        runID,
		Algorithm: cfg.Algorithm,
		Nodes:     cfg.Nodes,
		Delay:     cfg.Delay,
		StartedAt: s.now(),
	}); err != nil {
		return nil, ToStatusError(err)
	}
	s.updateCounts()
	reqLog := logging.LoggerFromContext(ctx)
	if reqLog == nil {
		reqLog = s.log
	}
	reqLog.Info(ctx, "run started", logging.String("strategy", cfg.Algorithm), logging.Int("nodes", cfg.Nodes))

	if in.Wait {
		s.execute(ctx, sim)
	} else {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.execute(logging.ContextWithRunID(s.ctx, runID), sim)
		}()
	}

	info, err := s.runs.Get(runID)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.render(info)
}

func (s *SimulationService) execute(ctx context.Context, sim *broadcast.Simulator) {
	ctx, span := StartChildSpan(ctx, "SimulationService/execute", sim.RunID(),
		attribute.String("manet.strategy", string(sim.Strategy())))
	defer span.End()

	runErr := sim.Run(ctx)
	res := sim.Result()
	if runErr == nil {
		for _, sink := range s.sinks {
			if err := sink.Put(ctx, res); err != nil {
				s.log.Warn(ctx, "storing run result failed",
					logging.String("run_id", sim.RunID()),
					logging.Err(err),
				)
			}
		}
	}
	if err := s.runs.Finish(sim.RunID(), res.Whole, runErr, s.now()); err != nil {
		s.log.Error(ctx, "finishing unknown run", logging.Err(err))
	}
	s.updateCounts()
}

// GetRun returns the run named by the request's run_id.
func (s *SimulationService) GetRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	id, err := runIDFromRequest(req)
	if err != nil {
		return nil, ToStatusError(err)
	}
	info, err := s.runs.Get(id)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return s.render(info)
}

// ListRuns returns every run in start order.
func (s *SimulationService) ListRuns(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if err := s.ensureReady(); err != nil {
		return nil, err
	}
	out, err := runsToStruct(s.runs.List())
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *SimulationService) render(info RunInfo) (*structpb.Struct, error) {
	out, err := runToStruct(info)
	if err != nil {
		return nil, ToStatusError(err)
	}
	return out, nil
}

func (s *SimulationService) updateCounts() {
	active, finished := s.runs.Counts()
	s.collector.SetRunCounts(active, finished)
}

func (s *SimulationService) ensureReady() error {
	if s == nil || s.runs == nil {
		return status.Error(codes.FailedPrecondition, "run registry is not configured")
	}
	if s.ctx.Err() != nil {
		return status.Error(codes.Unavailable, "service is shutting down")
	}
	return nil
}
