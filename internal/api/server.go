// Package api exposes Hydra over HTTP: the batch ingest endpoint that
// drives the scheduling core, the two read endpoints the core's
// invariants are checked against, a minimal CRUD surface for Regions,
// Job Definitions and Job Specs, and the ambient health/metrics surface.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gislas3/hydra/internal/houston"
	"github.com/gislas3/hydra/internal/ingest"
	"github.com/gislas3/hydra/internal/metrics"
	"github.com/gislas3/hydra/pkg/store"
)

// BuildInfo carries build-time stamped version metadata.
type BuildInfo struct {
	Version string
	Commit  string
	Date    string
}

// Config holds API server configuration.
type Config struct {
	ListenAddr     string
	LogLevel       string
	EnableCORS     bool
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
}

// DefaultConfig returns sane server defaults.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		LogLevel:       "info",
		EnableCORS:     true,
		AllowedOrigins: []string{"*"},
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
	}
}

// Server is Hydra's HTTP surface.
type Server struct {
	config    *Config
	buildInfo BuildInfo
	store     store.Store
	trigger   *ingest.Trigger
	houston   houston.Notifier
	log       logr.Logger

	httpServer *http.Server
	startTime  time.Time
}

// NewServer constructs a Server over store s, firing trigger on successful
// batch creation and notifying n of every batch create/update.
func NewServer(cfg *Config, buildInfo BuildInfo, s store.Store, trigger *ingest.Trigger, n houston.Notifier, log logr.Logger) *Server {
	return &Server{
		config:    cfg,
		buildInfo: buildInfo,
		store:     s,
		trigger:   trigger,
		houston:   n,
		log:       log.WithName("api-server"),
		startTime: time.Now(),
	}
}

// Start blocks serving HTTP until the listener fails or Stop is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	s.log.Info("starting hydra server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping hydra server")
	return s.httpServer.Shutdown(ctx)
}

// RegisterTestRoutes exposes route registration for httptest-based tests.
func (s *Server) RegisterTestRoutes(mux *http.ServeMux) {
	s.registerRoutes(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.HandleFunc("GET /api/v1/system/info", s.handleSystemInfo)
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /api/batches/", s.handleCreateBatch)
	mux.HandleFunc("GET /api/jobs-by-batch/", s.handleJobsByBatch)
	mux.HandleFunc("GET /api/jobs-queued/", s.handleJobsQueued)

	mux.HandleFunc("GET /api/regions/", s.handleListRegions)
	mux.HandleFunc("POST /api/regions/", s.handleCreateRegion)
	mux.HandleFunc("GET /api/job-definitions/", s.handleListJobDefinitions)
	mux.HandleFunc("POST /api/job-definitions/", s.handleCreateJobDefinition)
	mux.HandleFunc("GET /api/job-specs/", s.handleListJobSpecs)
	mux.HandleFunc("POST /api/job-specs/", s.handleCreateJobSpec)
	mux.HandleFunc("GET /api/batch-jobs/", s.handleListBatchJobs)
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return s.withCORS(s.withLogging(next))
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.log.V(1).Info("request", "method", r.Method, "path", r.URL.Path, "status", rw.statusCode, "duration", time.Since(start))
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	if !s.config.EnableCORS {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Response is the uniform envelope every JSON response is wrapped in.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    *MetaInfo   `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type MetaInfo struct {
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := Response{
		Success: statusCode < 400,
		Data:    data,
		Meta:    &MetaInfo{Timestamp: time.Now(), Version: s.buildInfo.Version},
	}
	if statusCode >= 400 {
		if errInfo, ok := data.(*ErrorInfo); ok {
			resp.Error = errInfo
		} else {
			resp.Error = &ErrorInfo{Code: "INTERNAL_ERROR", Message: "internal server error"}
		}
		resp.Data = nil
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error(err, "failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, code, message string) {
	s.writeJSON(w, statusCode, &ErrorInfo{Code: code, Message: message})
}

func parseIntParam(value, name string, defaultValue int) (int, error) {
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: must be an integer", name)
	}
	return n, nil
}
