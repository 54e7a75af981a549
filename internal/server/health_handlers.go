package server

import (
	"net/http"
	"time"
)

// HealthStatus is the body of /health.
type HealthStatus struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Uptime    string         `json:"uptime"`
	Database  string         `json:"database"`
	Sessions  int            `json:"activeSessions"`
	Sounds    int            `json:"soundCount"`
	PublicURL string         `json:"publicUrl,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

func (ms *MusicServer) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(ms.started).Round(time.Second).String(),
		Database:  "ok",
		Sessions:  len(ms.sessions.Sessions()),
		PublicURL: ms.tunnel.PublicURL(),
		Details:   map[string]any{},
	}

	sounds, err := ms.db.GetAllSounds()
	if err != nil {
		health.Status = "unhealthy"
		health.Database = "error"
		health.Details["database_error"] = err.Error()
	} else {
		health.Sounds = len(sounds)
	}

	status := http.StatusOK
	if health.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	ms.respondJSON(w, status, health)
}
