// Package api exposes the gate's HTTP surface: status and tuning endpoints,
// session history queries, and a live result stream for UIs.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kestrel-robotics/gatekeeper/internal/config"
	"github.com/kestrel-robotics/gatekeeper/internal/db"
	"github.com/kestrel-robotics/gatekeeper/internal/httputil"
	"github.com/kestrel-robotics/gatekeeper/internal/pipeline"
	"github.com/kestrel-robotics/gatekeeper/internal/version"
)

// ANSI escape codes for request logging
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	p  *pipeline.Pipeline
	db *db.DB
}

func NewServer(p *pipeline.Pipeline, database *db.DB) *Server {
	return &Server{
		p:  p,
		db: database,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/gate/params", s.gateParams)
	mux.HandleFunc("/api/gate/controls", s.gateControls)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/sessions/", s.sessionByID)
	mux.HandleFunc("/results", s.streamResults)
	mux.HandleFunc("/charts/session", s.sessionChart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	httputil.WriteJSONError(w, status, msg)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	httputil.WriteJSONOK(w, v)
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, statusResponse{
		Status:  s.p.Status(),
		Version: version.Version,
	})
}

type statusResponse struct {
	pipeline.Status
	Version string `json:"version"`
}

// gateParams reads or updates the runtime tuning. POST accepts the same JSON
// schema as the tuning file; only the fields present are applied.
func (s *Server) gateParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := s.p.Status()
		s.writeJSON(w, map[string]any{
			"smoothing_alpha":       status.SmoothingAlpha,
			"persistence_frames":    status.PersistenceFrames,
			"classifier_stride":     status.ClassifierStride,
			"distance_threshold_cm": status.DistanceThresholdCM,
		})
	case http.MethodPost:
		var params config.TuningConfig
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
			return
		}
		if err := params.Validate(); err != nil {
			s.writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if params.SmoothingAlpha != nil {
			s.p.SetSmoothingAlpha(*params.SmoothingAlpha)
		}
		if params.PersistenceFrames != nil {
			s.p.SetPersistenceFrames(*params.PersistenceFrames)
		}
		if params.ClassifierStride != nil {
			s.p.SetClassifierStride(*params.ClassifierStride)
		}
		if params.ClassifierPersistence != nil {
			s.p.SetClassifierPersistence(*params.ClassifierPersistence)
		}
		if params.DistanceThresholdCM != nil {
			s.p.SetDistanceThresholdCM(*params.DistanceThresholdCM)
		}
		s.writeJSON(w, s.p.Status())
	default:
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type controlsRequest struct {
	MarkerEnabled     *bool `json:"marker_enabled,omitempty"`
	ClassifierEnabled *bool `json:"classifier_enabled,omitempty"`
}

// gateControls toggles the detection stages.
func (s *Server) gateControls(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req controlsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.ClassifierEnabled != nil && *req.ClassifierEnabled && !s.p.Status().ClassifierAvailable {
		s.writeJSONError(w, http.StatusConflict, "no classifier configured")
		return
	}

	if req.MarkerEnabled != nil {
		s.p.SetMarkerEnabled(*req.MarkerEnabled)
	}
	if req.ClassifierEnabled != nil {
		s.p.SetClassifierEnabled(*req.ClassifierEnabled)
	}
	s.writeJSON(w, s.p.Status())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}
	sessions, err := s.db.Sessions()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	s.writeJSON(w, sessions)
}

// sessionByID serves /api/sessions/{id}/frames.
func (s *Server) sessionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.db == nil {
		s.writeJSONError(w, http.StatusServiceUnavailable, "no database configured")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "frames" {
		s.writeJSONError(w, http.StatusNotFound, "not found")
		return
	}

	frames, err := s.db.Frames(parts[0])
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load frames")
		return
	}
	s.writeJSON(w, frames)
}

// streamResults issues Server-Side Events (SSE) for each processed frame.
func (s *Server) streamResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	id, ch := s.p.Subscribe()
	defer s.p.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case result, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(result)
			if err != nil {
				log.Printf("failed to marshal frame result: %v", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
