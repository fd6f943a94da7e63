package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// LivenessHandler reports whether the conversion process is running.
func LivenessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker.Liveness() {
			writeHealth(w, logger, http.StatusOK, "alive", nil)
			return
		}
		writeHealth(w, logger, http.StatusServiceUnavailable, "not alive", nil)
	}
}

// ReadinessHandler reports whether the run has resolved its source and
// includes the run progress counters.
func ReadinessHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker.Readiness(r.Context()) {
			writeHealth(w, logger, http.StatusOK, "ready", checker.GetStatus())
			return
		}
		writeHealth(w, logger, http.StatusServiceUnavailable, "not ready", checker.GetStatus())
	}
}

func writeHealth(w http.ResponseWriter, logger *slog.Logger, code int, status string, checks map[string]string) {
	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode health response", "status", status, "error", err)
	}
}
