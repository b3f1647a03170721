package main

import (
	"citychat/clock"
	"citychat/infrastructure/grpc/server"
	"citychat/infrastructure/grpc/wire"
	"citychat/internal"
	"citychat/observability"
	"citychat/repositories"
	"citychat/runtime"
	"citychat/runtime/workers"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the hub and blocks until SIGINT/SIGTERM.
// Returning instead of exiting lets the deferred store close run.
func run() error {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. History store
	historyRepository, err := repositories.Open(config.Driver(), config.StorePath, log, clock.Real())
	if err != nil {
		return fmt.Errorf("history store opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing history store...")
		_ = historyRepository.Close()
	}()

	// 3. Hub
	monitoring := observability.NewMonitoring(log)
	telemetry := workers.NewTelemetryChannel(log, config.TelemetryBufferSize)
	registry := runtime.NewRegistry(log, telemetry, config.SinkTimeout)
	monitoring.WithDirectory(registry.Stats)
	broadcaster := runtime.NewBroadcaster(log, registry, historyRepository, telemetry, config.MaxMessageLength)
	orchestrator := runtime.NewOrchestrator(log, registry, broadcaster, historyRepository, config.HistoryLimit)

	// 4. gRPC server
	listener, err := net.Listen("tcp", config.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", config.Address(), err)
	}
	grpcServer := grpc.NewServer()
	wire.RegisterChatHubServer(grpcServer, server.NewChatServer(log, orchestrator, config.ConnectionBufferSize))

	// 5. Supervision
	sup := workers.NewSupervisor(log).WithTelemetry(telemetry)
	hub := &grpcWorker{log: log, server: grpcServer, listener: listener, shutdownTimeout: config.ShutdownTimeout, onFatal: sup.Stop}
	sup.Add(workers.NewTelemetryWorker(log, telemetry, monitoring), hub)
	if config.DebugPort > 0 {
		sup.Add(internal.NewDebugServer(log, config.DebugAddress(), monitoring, historyRepository, config.HistoryLimit))
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup.Run(ctx)
	if hub.err != nil {
		return hub.err
	}
	log.Info("Program stopped cleanly")
	return nil
}

// grpcWorker serves the hub until ctx is done, then drains the open streams.
type grpcWorker struct {
	log             *slog.Logger
	server          *grpc.Server
	listener        net.Listener
	shutdownTimeout time.Duration
	onFatal         func()
	err             error
}

func (w *grpcWorker) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting gRPC server", "address", w.listener.Addr().String(), "at", time.Now().UTC())
		errChan <- w.server.Serve(w.listener)
	}()

	select {
	case <-ctx.Done():
		w.log.Info("Shutting down gracefully...")
		w.stop()
		return nil
	case err := <-errChan:
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		// Serve closed the listener: the server cannot be restarted, stop everything
		w.err = fmt.Errorf("gRPC server error: %w", err)
		w.onFatal()
		return nil
	}
}

// stop waits for streams to end, up to the shutdown timeout.
func (w *grpcWorker) stop() {
	done := make(chan struct{})
	go func() {
		w.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.shutdownTimeout):
		w.log.Warn("Graceful stop timed out, closing streams")
		w.server.Stop()
	}
}
