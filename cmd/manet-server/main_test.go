package main

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/manet-simulator/internal/logging"
	"github.com/signalsfoundry/manet-simulator/internal/nbi"
)

func TestServerStartupSmoke(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}

	cfg := Config{
		ListenAddress: lis.Addr().String(),
		LogLevel:      "warn",
		LogFormat:     "text",
		ResultsDir:    t.TempDir(),
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg, log, lis)
	}()

	conn, err := grpc.NewClient(cfg.ListenAddress, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("grpc.NewClient: %v", err)
	}
	defer conn.Close()
	client := nbi.NewSimulationServiceClient(conn)

	req, err := structpb.NewStruct(map[string]any{
		"config": map[string]any{
			"algorithm":   "far",
			"nodes":       8,
			"termination": map[string]any{"timeout": 60, "stop_on_convergence": true},
		},
		"wait": true,
	})
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	resp, err := client.StartRun(ctx, req)
	if err != nil {
		t.Fatalf("StartRun: %v", err)
	}
	if resp.AsMap()["status"] != "finished" {
		t.Fatalf("run did not finish: %v", resp.AsMap())
	}

	list, err := client.ListRuns(ctx, &emptypb.Empty{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if runs, _ := list.AsMap()["runs"].([]any); len(runs) != 1 {
		t.Fatalf("expected one run, got %v", list.AsMap())
	}

	cancel()

	if err := <-errCh; err != nil {
		t.Fatalf("server returned error: %v", err)
	}
}
