package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"healthwire/internal/pipeline"
)

// HealthResponse is returned by /health
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// StatusResponse is returned by /api/status
type StatusResponse struct {
	Uptime   string          `json:"uptime"`
	Database DatabaseStatus  `json:"database"`
	Running  map[string]bool `json:"running"`
}

// DatabaseStatus represents database health
type DatabaseStatus struct {
	Connected bool `json:"connected"`
	Articles  int  `json:"articles"`
}

// TriggerResponse acknowledges a started run
type TriggerResponse struct {
	Pipeline string `json:"pipeline"`
	Status   string `json:"status"`
}

var serverStartTime = time.Now()

// handleHealth handles the /health endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	if err := s.db.Ping(r.Context()); err != nil {
		checks["database"] = "error"
		s.respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "unhealthy",
			Checks: checks,
		})
		return
	}

	checks["database"] = "ok"
	s.respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Checks: checks,
	})
}

// handleStatus handles the /api/status endpoint
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	dbStatus := DatabaseStatus{Connected: true}
	count, err := s.db.Articles().Count(r.Context())
	if err != nil {
		s.log.Warn("Failed to count articles", "error", err)
		dbStatus.Connected = false
	}
	dbStatus.Articles = count

	s.mu.Lock()
	running := make(map[string]bool, len(s.active))
	for name, on := range s.active {
		running[name] = on
	}
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, StatusResponse{
		Uptime:   time.Since(serverStartTime).Round(time.Second).String(),
		Database: dbStatus,
		Running:  running,
	})
}

// handleTrigger starts run in the background and answers 202. A second
// request for the same pipeline while one is active gets 409.
func (s *Server) handleTrigger(name string, run func(ctx context.Context) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.markActive(name) {
			s.respondError(w, http.StatusConflict, pipeline.ErrRunInProgress.Error())
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.markDone(name)

			stats, err := run(s.runCtx)
			switch {
			case errors.Is(err, pipeline.ErrRunInProgress):
				s.log.Warn("Triggered run skipped, another process holds the lock", "pipeline", name)
			case err != nil:
				s.log.Error("Triggered run failed", "pipeline", name, "error", err)
			default:
				s.log.Info("Triggered run completed", "pipeline", name, "stats", stats)
			}
		}()

		s.respondJSON(w, http.StatusAccepted, TriggerResponse{Pipeline: name, Status: "accepted"})
	}
}

func (s *Server) markActive(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[name] {
		return false
	}
	s.active[name] = true
	return true
}

func (s *Server) markDone(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[name] = false
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"status":  status,
			"message": message,
		},
	})
}
