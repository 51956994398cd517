package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	heartbeatInterval = 25 * time.Second
	sessionQueueDepth = 64
)

// sseSession is one live event stream. queue carries response slots in POST
// acknowledgement order; the stream goroutine drains them FIFO, so responses
// are delivered in the order their POSTs were accepted even when handlers
// finish out of order.
type sseSession struct {
	id     string
	queue  chan chan []byte
	ctx    context.Context
	cancel context.CancelFunc
}

// sseHandler owns the session table for the SSE transport.
type sseHandler struct {
	srv *Server

	mu       sync.Mutex
	sessions map[string]*sseSession
}

// SSEHandler serves the SSE transport: GET / (or /sse) opens a stream and
// assigns a session; POST /?session_id=<id> submits a request acknowledged
// with 202 and answered on the stream. Liveness and metrics endpoints match
// the HTTP transport.
func (s *Server) SSEHandler() http.Handler {
	h := &sseHandler{srv: s, sessions: make(map[string]*sseSession)}

	mux := http.NewServeMux()
	mux.HandleFunc("/", h.root)
	mux.HandleFunc("/sse", h.stream)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return mux
}

func (h *sseHandler) root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		h.stream(w, r)
	case http.MethodPost:
		h.post(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// stream opens the event channel: endpoint event first, then heartbeats and
// queued responses until the client disconnects.
func (h *sseHandler) stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	if err := h.srv.admission.Check(r); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	session := &sseSession{
		id:     uuid.NewString(),
		queue:  make(chan chan []byte, sessionQueueDepth),
		ctx:    ctx,
		cancel: cancel,
	}
	h.register(session)
	defer h.unregister(session)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: endpoint\ndata: /?session_id=%s\n\n", session.id)
	flusher.Flush()
	h.srv.log.Info("sse session opened", zap.String("session_id", session.id))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.srv.log.Info("sse session closed", zap.String("session_id", session.id))
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case slot := <-session.queue:
			// keep heartbeats flowing while the handler runs
			h.deliver(ctx, w, flusher, heartbeat, slot)
		}
	}
}

func (h *sseHandler) deliver(ctx context.Context, w io.Writer, flusher http.Flusher, heartbeat *time.Ticker, slot chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case data := <-slot:
			if len(data) == 0 {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			return
		}
	}
}

// post accepts one JSON-RPC request for an open session. The 202 is sent
// after the response slot is enqueued, which fixes delivery order.
func (h *sseHandler) post(w http.ResponseWriter, r *http.Request) {
	if !h.srv.admit(w, r) {
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	session := h.lookup(sessionID)
	if session == nil {
		h.srv.admission.Release()
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": fmt.Sprintf("unknown session_id %q", sessionID),
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.srv.admission.Release()
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	req, err := decodeRequest(body)
	if err != nil {
		h.srv.admission.Release()
		writeJSON(w, http.StatusBadRequest, parseErrorResponse(err.Error()))
		return
	}

	slot := make(chan []byte, 1)
	select {
	case session.queue <- slot:
	default:
		h.srv.admission.Release()
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error": "session queue full",
		})
		return
	}
	w.WriteHeader(http.StatusAccepted)

	go func() {
		defer h.srv.admission.Release()
		resp := h.srv.Handle(session.ctx, req)
		if resp == nil {
			slot <- nil
			return
		}
		data, err := json.Marshal(resp)
		if err != nil {
			h.srv.log.Error("marshal sse response failed", zap.Error(err))
			slot <- nil
			return
		}
		slot <- data
	}()
}

func (h *sseHandler) register(s *sseSession) {
	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
}

func (h *sseHandler) unregister(s *sseSession) {
	h.mu.Lock()
	delete(h.sessions, s.id)
	h.mu.Unlock()
	s.cancel()
}

func (h *sseHandler) lookup(id string) *sseSession {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessions[id]
}
