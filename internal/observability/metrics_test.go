package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptorRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/manet.v1.SimulationService/StartRun"}

	_, err = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		time.Sleep(10 * time.Millisecond)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("interceptor handler returned error: %v", err)
	}

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationService", "StartRun", "OK")); got != 1 {
		t.Fatalf("manet_rpc_requests_total = %v, want 1", got)
	}

	if count := histogramSampleCount(t, reg, "manet_rpc_duration_seconds", map[string]string{
		"service": "SimulationService",
		"method":  "StartRun",
	}); count != 1 {
		t.Fatalf("manet_rpc_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestUnaryInterceptorRecordsErrorCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}

	interceptor := collector.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/manet.v1.SimulationService/GetRun"}

	_, _ = interceptor(context.Background(), struct{}{}, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "boom")
	})

	if got := testutil.ToFloat64(collector.RPCRequests.WithLabelValues("SimulationService", "GetRun", "NotFound")); got != 1 {
		t.Fatalf("manet_rpc_requests_total error label = %v, want 1", got)
	}
}

func TestMetricsHandlerExposesRunGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewServerCollector(reg)
	if err != nil {
		t.Fatalf("NewServerCollector: %v", err)
	}
	collector.SetRunCounts(3, 7)
	collector.RPCRequests.WithLabelValues("svc", "method", "OK").Inc()
	collector.RPCDurations.WithLabelValues("svc", "method").Observe(0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"manet_rpc_requests_total",
		"manet_rpc_duration_seconds",
		"manet_runs_active 3",
		"manet_runs_finished 7",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestSimulationCollectorObserveStep(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("NewSimulationCollector: %v", err)
	}

	c.ObserveStep(2, 5, 1, 0, true)
	c.ObserveStep(3, 1, 0, 2, false)
	c.IncRelays("bft")
	c.IncRelays("bft")
	c.ObserveRun("bft", "success", 20*time.Millisecond)

	if got := testutil.ToFloat64(c.StepsTotal); got != 2 {
		t.Fatalf("manet_steps_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.MessagesDelivered); got != 5 {
		t.Fatalf("manet_messages_delivered_total = %v, want 5", got)
	}
	if got := testutil.ToFloat64(c.MessagesInFlight); got != 1 {
		t.Fatalf("manet_messages_in_flight = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.EdgesRemoved); got != 2 {
		t.Fatalf("manet_edges_removed_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Connected); got != 0 {
		t.Fatalf("manet_network_connected = %v, want 0", got)
	}
	if got := testutil.ToFloat64(c.Relays.WithLabelValues("bft")); got != 2 {
		t.Fatalf("manet_relays_total = %v, want 2", got)
	}
	if count := histogramSampleCount(t, reg, "manet_run_duration_seconds", map[string]string{"strategy": "bft"}); count != 1 {
		t.Fatalf("manet_run_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestSimulationCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("first NewSimulationCollector: %v", err)
	}
	second, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("second NewSimulationCollector: %v", err)
	}
	second.ObserveStep(1, 0, 0, 0, true)
	if got := testutil.ToFloat64(first.StepsTotal); got != 1 {
		t.Fatalf("collectors should share registered metrics, got %v", got)
	}

	var nilCollector *SimulationCollector
	nilCollector.ObserveStep(1, 1, 1, 1, true)
	nilCollector.IncRelays("x")
}

func TestSplitMethod(t *testing.T) {
	tests := []struct {
		in, service, method string
	}{
		{"/manet.v1.SimulationService/StartRun", "SimulationService", "StartRun"},
		{"", "unknown", "unknown"},
		{"bogus", "unknown", "unknown"},
	}
	for _, tt := range tests {
		s, m := SplitMethod(tt.in)
		if s != tt.service || m != tt.method {
			t.Fatalf("SplitMethod(%q) = %q, %q", tt.in, s, m)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
