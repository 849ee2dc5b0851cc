package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/aamani-c/PalmIQ/internal/sink"
	"github.com/aamani-c/PalmIQ/internal/store"
)

// main is the entry point for the health monitoring relay.
// Devices push readings over WebSocket on /, the dashboard polls /api/sensors.
func main() {
	cfg, err := loadConfig()
	if err != nil {
		log := newLogger(false, LogConfig{})
		log.Errorf("Failed to load configuration: %v", err)
		log.Sync()
		os.Exit(1)
	}

	log := newLogger(cfg.Debug, cfg.Log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorf("%v", err)
		log.Sync()
		os.Exit(1)
	}
}

// run serves until ctx is done. It returns an error only when the server could
// not start or failed while serving.
func run(ctx context.Context, cfg *Config, log *zap.SugaredLogger) error {
	// Bind first so nothing else starts without a listening port.
	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.Server.Addr(), err)
	}

	sinks := sink.Build(ctx, cfg.sinkConfig(), log)
	b := newBroadcaster(sinks, cfg.Broadcast, log)
	s := newServer(cfg, log, store.New(), b)

	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()

	log.Infof("Server running on http://%s (Debug: %v)", ln.Addr(), cfg.Debug)
	log.Infof("Available endpoints:")
	log.Infof("  GET  /api/sensors - latest sensor data")
	log.Infof("  GET  /health      - server health check")
	if cfg.Metrics.Enabled {
		log.Infof("  GET  %s     - Prometheus metrics", cfg.Metrics.Path)
	}
	log.Infof("  WS   /            - device ingestion channel")

	var result error
	select {
	case <-ctx.Done():
		log.Infof("Shutting down server...")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("HTTP server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Error shutting down HTTP server: %v", err)
	}
	s.closeConnections(shutdownCtx)
	if err := b.close(shutdownCtx); err != nil {
		log.Errorf("Error closing broadcaster: %v", err)
	}

	if result == nil {
		log.Infof("Server shut down successfully")
	}
	return result
}
