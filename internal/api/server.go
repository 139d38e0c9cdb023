package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-device/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-device/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-device/pkg/iotdevice"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Device is the part of *iotdevice.Device the status server reads.
type Device interface {
	DeviceID() string
	State() iotdevice.State
	ServiceIDs() []string
	Properties(serviceID string) (map[string]any, error)
	Baseline(serviceID string) (map[string]any, bool)
	FirePropertiesChanged(ctx context.Context, serviceID string, names ...string) error
}

// HealthChecker is a dependency whose health is reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config config.StatusConfig
	Logger *logging.Logger
	Device Device

	// Commands dispatches locally issued commands, usually
	// device.Router().Handle. Optional; without it the command endpoint
	// answers 501.
	Commands iotdevice.CommandHandler

	// Metrics serves /metrics. Optional.
	Metrics http.Handler

	// Checks are named dependencies checked by /health (mqtt, database, influxdb).
	Checks map[string]HealthChecker

	// Hub serves the live report stream. It must also be registered as a
	// report observer on the device. Optional; New creates an idle hub.
	Hub *Hub

	Version string
}

// Server is the local HTTP status server of a device process.
type Server struct {
	cfg      config.StatusConfig
	logger   *logging.Logger
	device   Device
	commands iotdevice.CommandHandler
	metrics  http.Handler
	checks   map[string]HealthChecker
	hub      *Hub
	version  string
	started  time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a status server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Device == nil {
		return nil, fmt.Errorf("device is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Config.WebSocket, deps.Logger)
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		device:   deps.Device,
		commands: deps.Commands,
		metrics:  deps.Metrics,
		checks:   deps.Checks,
		hub:      hub,
		version:  deps.Version,
		started:  time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// Port 0 picks a free port; see Addr.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("status server already started")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("status server starting", "address", ln.Addr().String())

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Hub returns the report stream hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close disconnects stream clients, then waits up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Upgraded connections are not tracked by Shutdown.
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}

// HealthCheck reports whether the server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("status server health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("status server not started")
	}
	return nil
}
