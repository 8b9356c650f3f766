// Package control exposes the HTTP operator surface: start/stop,
// emergency-stop, circuit-breaker reset, and config reload, plus the
// health/readiness/liveness probes deployment tooling expects.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/cryptoarb/arbot/internal/db"
	"github.com/cryptoarb/arbot/internal/risk"
)

// EngineControl is the subset of *execution.Engine the control surface
// drives, kept as an interface so tests can substitute a fake.
type EngineControl interface {
	Halt()
	Resume()
	CancelAll(ctx context.Context) []error
}

// ConfigReloader swaps in newly parsed configuration atomically. Returning
// an error leaves the previous configuration in effect.
type ConfigReloader func() error

// Server is the operator-facing HTTP control surface.
type Server struct {
	server  *http.Server
	port    int
	engine  EngineControl
	risk    *risk.Manager
	db      *db.DB
	reload  ConfigReloader
	running atomic.Bool
}

// New constructs a control Server. reload may be nil if the deployment
// does not support live config reload.
func New(port int, engine EngineControl, riskMgr *risk.Manager, database *db.DB, reload ConfigReloader) *Server {
	s := &Server{port: port, engine: engine, risk: riskMgr, db: database, reload: reload}
	s.running.Store(true)
	return s
}

// Start launches the HTTP server in a background goroutine.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/readiness", s.handleReadiness)
	mux.HandleFunc("/liveness", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/control/stop", s.requirePost(s.handleStop))
	mux.HandleFunc("/api/v1/control/start", s.requirePost(s.handleStart))
	mux.HandleFunc("/api/v1/control/emergency-stop", s.requirePost(s.handleEmergencyStop))
	mux.HandleFunc("/api/v1/control/circuit-breaker/reset", s.requirePost(s.handleResetBreaker))
	mux.HandleFunc("/api/v1/control/config/reload", s.requirePost(s.handleConfigReload))
	mux.HandleFunc("/api/v1/status", s.handleStatus)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", s.port).Msg("control server started")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("control server error")
		}
	}()
	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requirePost(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"service":   "arbot",
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": "database not initialized"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "reason": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStop pauses new signal execution without disturbing already-open
// orders, for a controlled wind-down.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Halt()
	s.running.Store(false)
	log.Warn().Msg("engine stopped via control surface")
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.engine.Resume()
	s.running.Store(true)
	log.Info().Msg("engine resumed via control surface")
	writeJSON(w, http.StatusOK, map[string]string{"status": "running"})
}

// handleEmergencyStop halts new submission and cancels every open order
// within a 10 second budget.
func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Halt()
	s.running.Store(false)

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	start := time.Now()
	errs := s.engine.CancelAll(ctx)
	elapsed := time.Since(start)

	failures := make([]string, 0, len(errs))
	for _, e := range errs {
		failures = append(failures, e.Error())
		log.Error().Err(e).Msg("emergency-stop cancellation failed")
	}

	status := http.StatusOK
	result := "completed"
	if len(failures) > 0 {
		status = http.StatusMultiStatus
		result = "completed_with_failures"
	}
	log.Warn().Dur("elapsed", elapsed).Int("failures", len(failures)).Msg("emergency stop executed")

	writeJSON(w, status, map[string]interface{}{
		"status":         result,
		"elapsed_ms":     elapsed.Milliseconds(),
		"failed_cancels": failures,
	})
}

func (s *Server) handleResetBreaker(w http.ResponseWriter, r *http.Request) {
	if s.risk == nil {
		http.Error(w, "risk manager not configured", http.StatusServiceUnavailable)
		return
	}
	s.risk.ResetBreaker()
	log.Info().Msg("circuit breaker reset via control surface")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		http.Error(w, "config reload not supported in this deployment", http.StatusNotImplemented)
		return
	}
	if err := s.reload(); err != nil {
		log.Error().Err(err).Msg("config reload failed")
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failed", "reason": err.Error()})
		return
	}
	log.Info().Msg("configuration reloaded via control surface")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"running": s.running.Load(),
	})
}
