package main

import (
	"context"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aamani-c/PalmIQ/internal/store"
)

// processStart is the reference point for the reported uptime.
var processStart = time.Now()

// server wires the ingestion channel and the HTTP endpoints to one store.
type server struct {
	cfg         *Config
	log         *zap.SugaredLogger
	store       *store.Store
	registry    *registry
	broadcaster *broadcaster
	upgrader    websocket.Upgrader
	started     time.Time

	// conns tracks running ingestion handlers so shutdown can wait for them.
	conns sync.WaitGroup
}

func newServer(cfg *Config, log *zap.SugaredLogger, st *store.Store, b *broadcaster) *server {
	return &server{
		cfg:         cfg,
		log:         log,
		store:       st,
		registry:    newRegistry(),
		broadcaster: b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.WS.ReadBufferSize,
			WriteBufferSize: cfg.WS.WriteBufferSize,
			// Devices connect from anywhere on the local network.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		started: processStart,
	}
}

// routes builds the HTTP handler for every endpoint.
func (s *server) routes() http.Handler {
	r := mux.NewRouter()

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
	)
	r.Handle("/api/sensors", cors(http.HandlerFunc(s.handleSensors))).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/health", cors(http.HandlerFunc(s.handleHealth))).Methods(http.MethodGet, http.MethodOptions)
	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/", s.handleWebSocket)

	var h http.Handler = r
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(s.cfg.Debug))(h)
	if s.cfg.Debug {
		h = handlers.CombinedLoggingHandler(os.Stdout, h)
	}
	return h
}

// closeConnections asks every device to disconnect and waits for the handlers to
// finish or for ctx to expire.
func (s *server) closeConnections(ctx context.Context) {
	n := s.registry.len()
	if n > 0 {
		s.log.Infof("Closing %d WebSocket connection(s)", n)
	}
	s.registry.closeAll("server shutting down", s.log)

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnf("%d WebSocket connection(s) still open at shutdown", s.registry.len())
	}
}
