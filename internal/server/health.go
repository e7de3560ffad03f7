package server

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
	Error   string `json:"error,omitempty"`
}

// health returns 200 OK if the snapshot backend answers a ping, 503 otherwise.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "healthy",
		Storage: "connected",
	}

	if err := s.snap.Ping(ctx); err != nil {
		response.Status = "unhealthy"
		response.Storage = "disconnected"
		response.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}

	writeJSON(w, http.StatusOK, response)
}
