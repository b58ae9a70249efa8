package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gree-bridge/internal/bridges/gree"
	"github.com/nerrad567/gree-bridge/internal/history"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gree-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Bridge is the part of the Gree bridge the API reads from and submits to.
// *gree.Bridge satisfies it.
type Bridge interface {
	Health() gree.HealthMessage
	Devices() []gree.Snapshot
	Device(id string) (gree.Snapshot, bool)
	SubmitCommand(deviceID string, cmd gree.Command) error
}

// HistoryReader reads recorded state changes. *history.SQLiteRepository
// satisfies it.
type HistoryReader interface {
	GetHistory(ctx context.Context, deviceID string, limit int) ([]history.Entry, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridge  Bridge
	History HistoryReader       // optional; history endpoint returns 503 without it
	Metrics prometheus.Gatherer // optional; defaults to prometheus.DefaultGatherer
	Version string
}

// Server is the HTTP API server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	bridge  Bridge
	history HistoryReader
	metrics prometheus.Gatherer
	version string

	server *http.Server
	addr   string
}

// New creates a new API server. The server is not started until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Metrics == nil {
		deps.Metrics = prometheus.DefaultGatherer
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		bridge:  deps.Bridge,
		history: deps.History,
		metrics: deps.Metrics,
		version: deps.Version,
	}, nil
}

// Start binds the listener and serves in the background. Bind errors (port
// in use) are returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api listen on %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr().String()

	s.logger.Info("API server starting", "address", s.addr)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address once started.
func (s *Server) Addr() string {
	return s.addr
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
