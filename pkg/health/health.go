// Package health serves the gateway's operational HTTP surface: liveness,
// readiness, Prometheus metrics, and build/instance information.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	gferrors "github.com/vnykmshr/gateflow/pkg/common/errors"
	"github.com/vnykmshr/gateflow/pkg/logging"
	"github.com/vnykmshr/gateflow/pkg/ratelimit/bucket"
)

const (
	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":9090"

	// DefaultServiceName labels /info when no name is configured.
	DefaultServiceName = "gateflow"

	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
)

// Info describes the running gateway instance, served at /info.
type Info struct {
	// Name is the service name. If empty, DefaultServiceName is used.
	Name string

	// Version is the build version string. If empty, "dev" is used.
	Version string

	// InstanceID identifies this process, typically Gateway.InstanceID.
	InstanceID string

	// StartTime anchors the uptime reported by /health.
	// If zero, the server's construction time is used.
	StartTime time.Time
}

// Config holds configuration options for creating a Server.
type Config struct {
	// Addr is the listen address. If empty, DefaultAddr is used.
	Addr string

	// Gatherer supplies /metrics. If nil, prometheus.DefaultGatherer
	// is used, pairing with metrics.DefaultRegistry.
	Gatherer prometheus.Gatherer

	// Info is served at /info.
	Info Info

	// Ready backs the /ready probe. If nil, the server always reports
	// ready.
	Ready func() bool

	// Logger receives lifecycle diagnostics. If nil, a default logger
	// is used.
	Logger *logging.Logger

	// Clock measures uptime. If nil, SystemClock is used.
	Clock bucket.Clock
}

// Server exposes /health, /ready, /metrics, and /info on one listener.
// It runs beside the gateway rather than inside it, so embedders that
// bring their own operational surface can skip it entirely.
type Server struct {
	httpServer *http.Server
	logger     *logging.Logger
	clock      bucket.Clock
	ready      func() bool
	info       Info

	mu       sync.Mutex
	started  bool
	listener net.Listener
}

// New creates a Server with the given configuration. The listener is not
// opened until Start.
func New(config Config) (*Server, error) {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}
	if config.Ready == nil {
		config.Ready = func() bool { return true }
	}
	if config.Logger == nil {
		config.Logger = logging.New()
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}
	if config.Info.Name == "" {
		config.Info.Name = DefaultServiceName
	}
	if config.Info.Version == "" {
		config.Info.Version = "dev"
	}
	if config.Info.StartTime.IsZero() {
		config.Info.StartTime = config.Clock.Now()
	}

	s := &Server{
		logger: config.Logger.WithComponent("health"),
		clock:  config.Clock,
		ready:  config.Ready,
		info:   config.Info,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/info", s.handleInfo)

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s, nil
}

// Start opens the listener and serves in a background goroutine. Bind
// failures are returned synchronously so a misconfigured address fails
// startup instead of logging into the void.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return gferrors.NewOperationError("health", "Start", fmt.Errorf("already started"))
	}
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return gferrors.NewOperationError("health", "Start", err)
	}
	s.listener = ln
	s.started = true

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("monitoring server failed", map[string]interface{}{"error": err})
		}
	}()

	s.logger.Info("monitoring server listening", map[string]interface{}{
		"addr": ln.Addr().String(),
	})
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until the
// context expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return gferrors.NewOperationError("health", "Shutdown", err)
	}
	s.logger.Info("monitoring server stopped")
	return nil
}

// Addr returns the bound address once started, or the configured address
// before that. Useful with ":0" listeners in tests.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Handler returns the route mux, letting embedders mount the endpoints
// on their own server instead of running this one.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Uptime  string `json:"uptime,omitempty"`
}

type infoResponse struct {
	Service    string            `json:"service"`
	Version    string            `json:"version"`
	InstanceID string            `json:"instance_id,omitempty"`
	StartTime  time.Time         `json:"start_time"`
	Endpoints  map[string]string `json:"endpoints"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "healthy",
		Message: "Gateway is alive",
		Uptime:  s.clock.Now().Sub(s.info.StartTime).Round(time.Second).String(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.ready() {
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{
			Status:  "not_ready",
			Message: "Readiness check failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ready",
		Message: "Gateway is ready to serve requests",
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{
		Service:    s.info.Name,
		Version:    s.info.Version,
		InstanceID: s.info.InstanceID,
		StartTime:  s.info.StartTime,
		Endpoints: map[string]string{
			"health":  "/health",
			"ready":   "/ready",
			"metrics": "/metrics",
			"info":    "/info",
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
