package server

import (
	"net/http"
	"time"
)

// healthResponse is the /health payload.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
}

const (
	healthStatusOK       = "ok"
	healthStatusDegraded = "degraded"
)

// handleHealth reports liveness plus a storage reachability check.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthStatusOK
	code := http.StatusOK

	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			status = healthStatusDegraded
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, healthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Truncate(time.Second).String(),
	})
}
