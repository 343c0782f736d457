package api

import (
	"net/http"
	"runtime"
	"time"
)

// HealthResponse reports server and store health.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version"`
	Uptime     string                     `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
}

type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// SystemInfoResponse reports build and runtime information.
type SystemInfoResponse struct {
	Version    string   `json:"version"`
	Commit     string   `json:"commit"`
	BuildDate  string   `json:"build_date"`
	GoVersion  string   `json:"go_version"`
	Platform   string   `json:"platform"`
	APIVersion string   `json:"api_version"`
	Capabilities []string `json:"capabilities"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]ComponentHealth)

	if _, err := s.store.ListRegions(r.Context()); err != nil {
		components["store"] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
	} else {
		components["store"] = ComponentHealth{Status: "healthy"}
	}

	status := "healthy"
	for _, c := range components {
		if c.Status == "unhealthy" {
			status = "unhealthy"
			break
		}
	}

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, HealthResponse{
		Status:     status,
		Timestamp:  time.Now(),
		Version:    s.buildInfo.Version,
		Uptime:     time.Since(s.startTime).String(),
		Components: components,
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, SystemInfoResponse{
		Version:      s.buildInfo.Version,
		Commit:       s.buildInfo.Commit,
		BuildDate:    s.buildInfo.Date,
		GoVersion:    runtime.Version(),
		Platform:     runtime.GOOS + "/" + runtime.GOARCH,
		APIVersion:   "v1",
		Capabilities: []string{"batches", "job-definitions", "job-specs", "regions", "metrics"},
	})
}
