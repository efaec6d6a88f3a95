package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/thinkxlife/brain/internal/brain"
	"github.com/thinkxlife/brain/internal/config"
	"github.com/thinkxlife/brain/internal/models"
	"github.com/thinkxlife/brain/internal/provider"
)

// maxBodyBytes bounds inbound request bodies well above the message cap.
const maxBodyBytes = 1 << 20

// Server exposes the brain over HTTP.
type Server struct {
	engine *brain.Brain
	logger *logrus.Logger
	http   *http.Server
}

// New builds the HTTP server with all routes registered.
func New(cfg *config.ServerConfig, engine *brain.Brain, logger *logrus.Logger) *Server {
	s := &Server{
		engine: engine,
		logger: logger,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/brain", s.handleProcess).Methods(http.MethodPost)
	router.HandleFunc("/api/brain/sessions/{id}/end", s.handleEndSession).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/analytics", s.handleAnalytics).Methods(http.MethodGet)
	router.Use(s.logRequests)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	s.logger.WithField("addr", s.http.Addr).Info("HTTP server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req models.Request
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "invalid request body",
		})
		return
	}

	resp := s.engine.Process(r.Context(), &req)

	// Rejections are still well-formed payloads; the transport status only
	// distinguishes malformed JSON from everything else.
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["id"]
	if sessionID == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "session id is required",
		})
		return
	}

	s.engine.EndSession(r.Context(), sessionID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"session_id": sessionID,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.engine.Health(r.Context())

	status := http.StatusOK
	if report.Overall == provider.HealthUnhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, report)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Analytics())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		}).Debug("Handled HTTP request")
	})
}
