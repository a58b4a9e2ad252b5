package nbi

import (
	"context"
	"net"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/manet-simulator/internal/logging"
	"github.com/signalsfoundry/manet-simulator/internal/observability"
	"github.com/signalsfoundry/manet-simulator/internal/sweep"
	"github.com/signalsfoundry/manet-simulator/model"
)

// lineRequest asks for a static four-node line where only neighbours are in
// range.
func lineRequest(t *testing.T, algorithm string, wait bool) *structpb.Struct {
	t.Helper()
	req, err := structpb.NewStruct(map[string]any{
		"config": map[string]any{
			"algorithm": algorithm,
			"delay":     1,
			"mobility":  map[string]any{"enabled": false},
			"termination": map[string]any{
				"timeout":             50,
				"stop_on_convergence": true,
			},
		},
		"positions": []any{
			map[string]any{"x": 100, "y": 500},
			map[string]any{"x": 300, "y": 500},
			map[string]any{"x": 500, "y": 500},
			map[string]any{"x": 700, "y": 500},
		},
		"wait": wait,
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return req
}

func runIDRequest(id string) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{"run_id": structpb.NewStringValue(id)}}
}

func TestSimulationService_StartRunWaits(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := observability.NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	var (
		mu     sync.Mutex
		stored []model.RunSummary
	)
	sink := sweep.SinkFunc(func(_ context.Context, res model.RunResult) error {
		mu.Lock()
		defer mu.Unlock()
		stored = append(stored, res.Whole)
		return nil
	})
	svc := NewSimulationService(context.Background(), WithServerCollector(collector), WithResultSinks(sink))

	ctx := logging.ContextWithRunID(context.Background(), "line-bft")
	resp, err := svc.StartRun(ctx, lineRequest(t, "bft", true))
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	fields := resp.AsMap()
	if fields["run_id"] != "line-bft" || fields["status"] != string(RunFinished) {
		t.Fatalf("unexpected run %v", fields)
	}
	summary, ok := fields["summary"].(map[string]any)
	if !ok {
		t.Fatalf("finished run has no summary: %v", fields)
	}
	if summary["success"] != true || summary["sent"] != float64(3) || summary["frames"] != float64(7) {
		t.Fatalf("unexpected summary %v", summary)
	}
	if len(stored) != 1 || stored[0].RunID != "line-bft" {
		t.Fatalf("sink saw %v", stored)
	}
	if got := testutil.ToFloat64(collector.FinishedRuns); got != 1 {
		t.Fatalf("finished gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.ActiveRuns); got != 0 {
		t.Fatalf("active gauge = %v, want 0", got)
	}

	got, err := svc.GetRun(context.Background(), runIDRequest("line-bft"))
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.AsMap()["status"] != string(RunFinished) {
		t.Fatalf("GetRun status = %v", got.AsMap()["status"])
	}
}

func TestSimulationService_BackgroundRun(t *testing.T) {
	svc := NewSimulationService(context.Background())
	resp, err := svc.StartRun(context.Background(), lineRequest(t, "flooding", false))
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	id, _ := resp.AsMap()["run_id"].(string)
	if id == "" {
		t.Fatalf("StartRun must assign a run ID")
	}
	svc.Wait()

	info, err := svc.Runs().Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.Status != RunFinished || !info.Summary.Success {
		t.Fatalf("background run did not finish: %+v", info)
	}

	list, err := svc.ListRuns(context.Background(), &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	runs, _ := list.AsMap()["runs"].([]any)
	if len(runs) != 1 {
		t.Fatalf("expected one listed run, got %d", len(runs))
	}
}

func TestSimulationService_Errors(t *testing.T) {
	svc := NewSimulationService(context.Background())
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code codes.Code
	}{
		{"missing config", func() error {
			_, err := svc.StartRun(ctx, &structpb.Struct{})
			return err
		}, codes.InvalidArgument},
		{"unknown strategy", func() error {
			_, err := svc.StartRun(ctx, lineRequest(t, "gossip", true))
			return err
		}, codes.InvalidArgument},
		{"missing run id", func() error {
			_, err := svc.GetRun(ctx, &structpb.Struct{})
			return err
		}, codes.InvalidArgument},
		{"unknown run", func() error {
			_, err := svc.GetRun(ctx, runIDRequest("nope"))
			return err
		}, codes.NotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := status.Code(tt.call()); code != tt.code {
				t.Fatalf("code = %v, want %v", code, tt.code)
			}
		})
	}
}

func TestSimulationService_ShuttingDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := NewSimulationService(ctx)
	cancel()
	_, err := svc.ListRuns(context.Background(), &emptypb.Empty{})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestSimulationService_OverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(
		RunIDUnaryServerInterceptor(logging.Noop()),
		TracingUnaryServerInterceptor(),
	))
	svc := NewSimulationService(context.Background())
	RegisterSimulationServiceServer(srv, svc)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	client := NewSimulationServiceClient(conn)

	ctx := metadata.AppendToOutgoingContext(context.Background(), RunIDMetadataKey, "from-header")
	resp, err := client.StartRun(ctx, lineRequest(t, "mst", true))
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if resp.AsMap()["run_id"] != "from-header" {
		t.Fatalf("run ID should come from the x-run-id header, got %v", resp.AsMap()["run_id"])
	}

	_, err = client.StartRun(ctx, lineRequest(t, "mst", true))
	if status.Code(err) != codes.AlreadyExists {
		t.Fatalf("reusing a run ID should fail with AlreadyExists, got %v", err)
	}

	got, err := client.GetRun(context.Background(), runIDRequest("from-header"))
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.AsMap()["algorithm"] != "mst" {
		t.Fatalf("unexpected run %v", got.AsMap())
	}
}

func TestRunRegistry(t *testing.T) {
	r := NewRunRegistry()
	if err := r.Start(RunInfo{ID: "a"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(RunInfo{ID: "a"}); err == nil {
		t.Fatalf("duplicate start must fail")
	}
	if err := r.Start(RunInfo{ID: "b"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if active, finished := r.Counts(); active != 2 || finished != 0 {
		t.Fatalf("counts = %d/%d", active, finished)
	}
	if err := r.Finish("b", model.RunSummary{}, context.Canceled, r.runs["b"].StartedAt); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	info, _ := r.Get("b")
	if info.Status != RunFailed || info.Err == "" {
		t.Fatalf("failed run not marked: %+v", info)
	}
	if err := r.Finish("zzz", model.RunSummary{}, nil, info.FinishedAt); err == nil {
		t.Fatalf("finishing an unknown run must fail")
	}
	list := r.List()
	if len(list) != 2 || list[0].ID != "a" || list[1].ID != "b" {
		t.Fatalf("list order = %v", list)
	}
}
