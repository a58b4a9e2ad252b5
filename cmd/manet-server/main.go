package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/signalsfoundry/manet-simulator/internal/export"
	"github.com/signalsfoundry/manet-simulator/internal/logging"
	"github.com/signalsfoundry/manet-simulator/internal/nbi"
	"github.com/signalsfoundry/manet-simulator/internal/observability"
	"github.com/signalsfoundry/manet-simulator/internal/resultstore"
	"github.com/signalsfoundry/manet-simulator/internal/sweep"
)

// Config holds the server settings.
type Config struct {
	ListenAddress  string
	MetricsAddress string
	LogLevel       string
	LogFormat      string
	// ResultsDir, when set, receives every finished run as result documents.
	ResultsDir string
	Compress   bool
	// StorePath, when set, records every finished run summary in SQLite.
	StorePath string
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.ListenAddress, "grpc-addr", ":50051", "TCP address the gRPC server listens on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	flag.StringVar(&cfg.LogFormat, "log-format", "json", "log format: text or json")
	flag.StringVar(&cfg.ResultsDir, "results-dir", "", "directory for exported run results")
	flag.BoolVar(&cfg.Compress, "compress", false, "zstd-compress exported results")
	flag.StringVar(&cfg.StorePath, "store", "", "SQLite result store")
	flag.Parse()

	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(observability.RoleServer), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.ListenAddress), logging.Err(err))
		os.Exit(1)
	}
	if err := run(ctx, cfg, log, lis); err != nil {
		log.Error(ctx, "server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the simulation service on lis until ctx is cancelled.
func run(ctx context.Context, cfg Config, log logging.Logger, lis net.Listener) error {
	collector, err := observability.NewServerCollector(nil)
	if err != nil {
		return err
	}
	simCollector, err := observability.NewSimulationCollector(nil)
	if err != nil {
		return err
	}

	var sinks []sweep.Sink
	if cfg.ResultsDir != "" {
		sinks = append(sinks, sweep.ExportSink{Root: cfg.ResultsDir, Options: export.Options{Compress: cfg.Compress}})
	}
	if cfg.StorePath != "" {
		store, err := resultstore.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, sweep.StoreSink{Store: store})
	}

	runCtx, cancelRuns := context.WithCancel(context.Background())
	defer cancelRuns()
	svc := nbi.NewSimulationService(runCtx,
		nbi.WithServiceLogger(log),
		nbi.WithServerCollector(collector),
		nbi.WithSimulationCollector(simCollector),
		nbi.WithResultSinks(sinks...),
	)

	server := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			nbi.RunIDUnaryServerInterceptor(log),
			nbi.TracingUnaryServerInterceptor(),
			collector.UnaryServerInterceptor(),
		),
	)
	nbi.RegisterSimulationServiceServer(server, svc)

	metricsSrv := serveMetrics(cfg.MetricsAddress, collector, log)

	serveErr := make(chan error, 1)
	log.Info(ctx, "starting simulation gRPC server", logging.String("addr", lis.Addr().String()))
	go func() {
		serveErr <- server.Serve(lis)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
	}

	log.Info(context.Background(), "shutting down simulation server")
	server.GracefulStop()
	cancelRuns()
	svc.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return nil
}

func serveMetrics(addr string, collector *observability.ServerCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
