package mcp

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"codewarden/internal/apperr"
)

const maxBodyBytes = 10 * 1024 * 1024

// HTTPHandler serves the plain HTTP transport: JSON-RPC at POST /, liveness
// at GET /health and /info, metrics at /stats and /metrics. Admission runs
// before dispatch on the JSON-RPC path only.
func (s *Server) HTTPHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRPC)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.admit(w, r) {
		return
	}
	defer s.admission.Release()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	req, err := decodeRequest(body)
	if err != nil {
		writeJSON(w, http.StatusOK, parseErrorResponse(err.Error()))
		return
	}

	resp := s.Handle(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// admit runs connection-cap and admission checks, writing the rejection
// itself. True means a slot is held and the caller must Release.
func (s *Server) admit(w http.ResponseWriter, r *http.Request) bool {
	if !s.admission.Acquire() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error": "server at connection capacity",
		})
		return false
	}
	if err := s.admission.Check(r); err != nil {
		s.admission.Release()
		switch apperr.KindOf(err) {
		case apperr.KindRateLimited:
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"error":       err.Error(),
				"retry_after": s.admission.RetryAfterSeconds(),
			})
		default:
			writeJSON(w, http.StatusUnauthorized, map[string]interface{}{
				"error": err.Error(),
			})
		}
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":             serverName,
		"version":          ServerVersion,
		"protocol_version": ProtocolVersion,
		"tool_count":       s.registry.Len(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.metrics.Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests":           stats,
		"active_connections": s.admission.ActiveConnections(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if _, err := w.Write([]byte(s.metrics.PrometheusText())); err != nil {
		s.log.Warn("metrics write failed", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
