// Package api implements the launcher's control surface: a small HTTP
// endpoint serving the aggregate health verdict (for container platform
// liveness checks) and per-service lifecycle operations for the CLI.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/antinozorionktr/healthconnect-a2a/internal/reporting"
	"github.com/antinozorionktr/healthconnect-a2a/internal/services"
	"github.com/antinozorionktr/healthconnect-a2a/pkg/logging"
)

// Controller is the slice of the orchestrator the control surface needs.
type Controller interface {
	Status() reporting.SystemHealth
	StartService(name string) error
	StopService(name string) error
	RestartService(name string) error
	GetServiceRegistry() services.ServiceRegistry
}

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch Controller
	http *http.Server
}

// NewServer builds the control server on the given host/port.
func NewServer(orch Controller, host string, port int) *Server {
	s := &Server{orch: orch}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/services/{name}", s.handleServiceStatus)
	mux.HandleFunc("POST /api/services/{name}/start", s.handleServiceStart)
	mux.HandleFunc("POST /api/services/{name}/stop", s.handleServiceStop)
	mux.HandleFunc("POST /api/services/{name}/restart", s.handleServiceRestart)

	s.http = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine. The listener is bound
// synchronously so an occupied port fails fast.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("control endpoint unavailable on %s: %w", s.http.Addr, err)
	}

	go func() {
		logging.Info("API", "Control endpoint listening on %s", s.http.Addr)
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Error("API", err, "Control endpoint terminated")
		}
	}()
	return nil
}

// Shutdown stops the control server, letting in-flight requests finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// handleHealthz serves the aggregate verdict: 200 when every service's
// latest probe succeeded recently, 503 otherwise. The JSON body carries the
// per-service detail either way.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	status := s.orch.Status()
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}

// handleStatus serves the full status document, always with 200 so clients
// can distinguish "launcher reachable but fleet unhealthy" from "launcher
// gone".
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	status := s.orch.Status()
	snapshot, exists := status.Services[name]
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown service %q", name))
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleServiceStart(w http.ResponseWriter, r *http.Request) {
	s.lifecycleOp(w, r, "start", s.orch.StartService)
}

func (s *Server) handleServiceStop(w http.ResponseWriter, r *http.Request) {
	s.lifecycleOp(w, r, "stop", s.orch.StopService)
}

func (s *Server) handleServiceRestart(w http.ResponseWriter, r *http.Request) {
	s.lifecycleOp(w, r, "restart", s.orch.RestartService)
}

// OperationResult is the response body for lifecycle operations.
type OperationResult struct {
	Service   string                           `json:"service"`
	Operation string                           `json:"operation"`
	Snapshot  *reporting.ServiceHealthSnapshot `json:"snapshot,omitempty"`
}

func (s *Server) lifecycleOp(w http.ResponseWriter, r *http.Request, op string, fn func(name string) error) {
	name := r.PathValue("name")
	if _, exists := s.orch.GetServiceRegistry().Get(name); !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown service %q", name))
		return
	}

	logging.Info("API", "Requested %s of service %s", op, name)
	if err := fn(name); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	result := OperationResult{Service: name, Operation: op}
	if snapshot, exists := s.orch.Status().Services[name]; exists {
		result.Snapshot = &snapshot
	}
	writeJSON(w, http.StatusOK, result)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error("API", err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorResponse{Error: message})
}
