package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/signalsfoundry/interferometer-simulator/internal/config"
	"github.com/signalsfoundry/interferometer-simulator/internal/control"
	"github.com/signalsfoundry/interferometer-simulator/internal/logging"
	"github.com/signalsfoundry/interferometer-simulator/internal/observability"
	"github.com/signalsfoundry/interferometer-simulator/internal/sim"
	"github.com/signalsfoundry/interferometer-simulator/internal/transmit"
	"github.com/signalsfoundry/interferometer-simulator/internal/transport"
	"github.com/signalsfoundry/interferometer-simulator/timectrl"
)

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	preset := flag.String("preset", "default", "Parameter preset (default, legacy)")
	grpcAddr := flag.String("grpc-addr", "", "TCP address the control gRPC server listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	dryRun := flag.Bool("dry-run", false, "Write records to stdout instead of the serial port")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*preset, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *grpcAddr != "" {
		cfg.Control.ListenAddr = *grpcAddr
	}
	if *metricsAddr != "" {
		cfg.Control.MetricsAddr = *metricsAddr
	}
	log := cfg.Logger()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	lis, err := net.Listen("tcp", cfg.Control.ListenAddr)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.Control.ListenAddr), logging.Err(err))
		os.Exit(1)
	}

	var opener transport.Opener
	if *dryRun {
		opener = transport.StdoutOpener()
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(stopCtx, cfg, log, lis, opener); err != nil {
		log.Error(ctx, "control server exited", logging.Err(err))
		os.Exit(1)
	}
}

// run serves the control plane on lis until ctx is cancelled. A nil opener
// selects the configured serial port.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener, opener transport.Opener) error {
	collector, err := observability.NewControlCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise control metrics: %w", err)
	}
	streamMetrics, err := observability.NewStreamCollector(nil)
	if err != nil {
		return fmt.Errorf("initialise stream metrics: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Control.MetricsAddr, collector, log)

	if opener == nil {
		opener = transport.SerialOpener(cfg.Port)
	}
	tx := transmit.NewTransmitter(opener, timectrl.NewPeriodicTask(cfg.Transmit.Cadence),
		transmit.WithOptions(cfg.Transmit.Options()),
		transmit.WithLogger(log),
		transmit.WithMetrics(streamMetrics),
	)
	session := sim.NewSession(tx,
		sim.WithLogger(log),
		sim.WithMetricsRecorder(collector),
	)

	server := grpc.NewServer(control.ServerOptions(log, collector)...)
	limits := control.Limits{MaxPathCount: cfg.Control.MaxPathCount, MaxSampleCount: cfg.Control.MaxSampleCount}
	control.RegisterSimulatorControlServer(server, control.NewService(session, cfg.Simulation, log, control.WithLimits(limits)))

	log.Info(ctx, "starting control gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.String("port", cfg.Port.Name),
	)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(lis)
	}()

	var serveErrResult error
	select {
	case <-ctx.Done():
	case serveErrResult = <-serveErr:
	}

	log.Info(context.Background(), "shutting down control server")
	server.GracefulStop()
	if err := session.Stop(context.Background()); err != nil {
		log.Warn(context.Background(), "stopping transmitter", logging.Err(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	return serveErrResult
}

func serveMetrics(addr string, collector *observability.ControlCollector, log logging.Logger) *http.Server {
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
