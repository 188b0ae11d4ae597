package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/starlink-bridge/internal/bridges/starlink"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/config"
	"github.com/nerrad567/starlink-bridge/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// DeviceService is the publisher surface the API reads and writes.
// *starlink.Publisher satisfies it.
type DeviceService interface {
	State() starlink.State
	Snapshot() starlink.Tree
	ServiceName() string
	ShortID() string
	Stats() starlink.Stats
	SetCustomName(ctx context.Context, value string) error
}

// HealthSource reports the current health verdict.
// *starlink.HealthReporter satisfies it.
type HealthSource interface {
	Status() (starlink.HealthStatus, string)
	InstanceID() string
}

// Executor runs fn on the bridge's event loop and waits for it.
// *loop.Loop satisfies it.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// TelemetryStats reports position history writes.
// *influxdb.Client satisfies it.
type TelemetryStats interface {
	Written() uint64
	Failed() uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Logger    *logging.Logger
	Device    DeviceService
	Health    HealthSource // Optional
	Executor  Executor       // Optional; writes run inline when nil
	Telemetry TelemetryStats // Optional
	Version   string
}

// Server is the HTTP status API for the bridge.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	device    DeviceService
	health    HealthSource
	exec      Executor
	telemetry TelemetryStats
	version   string
	started   time.Time
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, device service)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device service is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		device:    deps.Device,
		health:    deps.Health,
		exec:      deps.Executor,
		telemetry: deps.Telemetry,
		version:   deps.Version,
		started:   time.Now(),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.logger.Info("API server starting", "address", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
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

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
