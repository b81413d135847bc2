package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/dyluth/blockmul/pkg/comm"
	"go.uber.org/zap"
)

// StateSource reports the lifecycle state of a run.
type StateSource interface {
	State() State
}

// HealthServer serves GET /healthz for a running coordinator.
type HealthServer struct {
	addr      string
	source    StateSource
	pinger    comm.Pinger
	transport string
	logger    *zap.Logger
	server    *http.Server
	listener  net.Listener
}

// NewHealthServer creates a health server on addr. pinger may be nil when the
// transport has no external dependency.
func NewHealthServer(addr string, source StateSource, pinger comm.Pinger, transport string, logger *zap.Logger) *HealthServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthServer{
		addr:      addr,
		source:    source,
		pinger:    pinger,
		transport: transport,
		logger:    logger.Named("health"),
	}
}

// Start binds the listener and serves in the background.
func (h *HealthServer) Start() error {
	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", h.addr, err)
	}
	h.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthCheckHandler)

	h.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := h.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("health_server_failed", zap.Error(err))
		}
	}()

	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (h *HealthServer) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// Shutdown gracefully shuts down the health check server.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

// healthCheckHandler handles GET /healthz requests.
// Returns 200 OK while the run is healthy, 503 once it has failed or the
// transport is unreachable.
func (h *HealthServer) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state := h.source.State()
	response := HealthResponse{
		Status:    "healthy",
		State:     string(state),
		Transport: h.transport,
	}
	code := http.StatusOK

	if state == StateFailed {
		response.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}

// HealthResponse is the JSON response structure for health checks.
type HealthResponse struct {
	Status    string `json:"status"`
	State     string `json:"state"`
	Transport string `json:"transport"`
	Error     string `json:"error,omitempty"`
}
