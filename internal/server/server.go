// Package server provides the HTTP and WebSocket surface over the
// capture pipeline and speaker identification.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/mindtrace/voiceid/internal/apperrors"
	"github.com/mindtrace/voiceid/internal/listener"
	"github.com/mindtrace/voiceid/internal/pipeline"
	"github.com/mindtrace/voiceid/internal/speaker"
	"github.com/mindtrace/voiceid/internal/store"
	"github.com/mindtrace/voiceid/internal/trace"
)

// Event stream message types.
type UtteranceMessage struct {
	Type      string             `json:"type"` // "utterance"
	Utterance pipeline.Utterance `json:"utterance"`
}

type StatusMessage struct {
	Type   string          `json:"type"` // "status"
	Status listener.Status `json:"status"`
}

// Request/response bodies.
type startRequest struct {
	UserID string `json:"user_id"`
}

type identifyRequest struct {
	UserID          string    `json:"user_id"`
	Embedding       []float64 `json:"embedding"`
	ImportanceScore float64   `json:"importance_score"`
}

type identifyResponse struct {
	ClusterID string `json:"cluster_id"`
}

type thresholdsRequest struct {
	VADThreshold *float64 `json:"vad_threshold,omitempty"`
	SNRThreshold *float64 `json:"snr_threshold,omitempty"`
}

type clusterView struct {
	ClusterID      string   `json:"cluster_id"`
	UtteranceCount int      `json:"utterance_count"`
	AvgImportance  float64  `json:"avg_importance"`
	Labels         []string `json:"labels,omitempty"`
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	lifecycle  *listener.Lifecycle
	identifier *speaker.Identifier
	clusters   store.ClusterStore
	journal    *pipeline.Journal
	gate       *pipeline.QualityGate

	mu    sync.RWMutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server and starts the event broadcasters.
func New(lc *listener.Lifecycle, id *speaker.Identifier, clusters store.ClusterStore, journal *pipeline.Journal, gate *pipeline.QualityGate) *Server {
	s := &Server{
		lifecycle:  lc,
		identifier: id,
		clusters:   clusters,
		journal:    journal,
		gate:       gate,
		conns:      make(map[*websocket.Conn]struct{}),
	}

	go s.broadcastUtterances()
	go s.broadcastStatus()

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /listen/start", s.handleListenStart)
	mux.HandleFunc("POST /listen/stop", s.handleListenStop)
	mux.HandleFunc("GET /listen/status", s.handleListenStatus)
	mux.HandleFunc("POST /identify", s.handleIdentify)
	mux.HandleFunc("GET /speakers/{user}", s.handleSpeakers)
	mux.HandleFunc("GET /recent", s.handleRecent)
	mux.HandleFunc("PUT /config/thresholds", s.handleThresholds)

	return corsMiddleware(trace.Middleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListenStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.UserID) == "" {
		writeError(w, http.StatusBadRequest, "user_id required")
		return
	}

	if err := s.lifecycle.Start(req.UserID); err != nil {
		trace.Logger(r.Context()).Error("listen start failed", "user_id", req.UserID, "error", err)
		status := http.StatusInternalServerError
		if apperrors.IsCode(err, apperrors.CodeDeviceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, map[string]string{"status": "listening", "user_id": req.UserID})
}

func (s *Server) handleListenStop(w http.ResponseWriter, _ *http.Request) {
	s.lifecycle.Stop()
	writeJSON(w, map[string]string{"status": "stopped"})
}

func (s *Server) handleListenStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.lifecycle.Status())
}

func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	var req identifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id and embedding required")
		return
	}

	clusterID, err := s.identifier.Identify(r.Context(), req.UserID, req.Embedding, req.ImportanceScore)
	if err != nil {
		// The sentinel identity still goes back to the caller; the
		// error is logged, never a hang or a crash.
		trace.Logger(r.Context()).Warn("identify degraded", "user_id", req.UserID, "error", err)
	}
	writeJSON(w, identifyResponse{ClusterID: clusterID})
}

func (s *Server) handleSpeakers(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	clusters, err := s.clusters.ListClusters(r.Context(), userID)
	if err != nil {
		trace.Logger(r.Context()).Error("cluster listing failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "cluster store unavailable")
		return
	}

	// Centroids never leave the store.
	views := make([]clusterView, 0, len(clusters))
	for _, c := range clusters {
		views = append(views, clusterView{
			ClusterID:      c.ClusterID,
			UtteranceCount: c.UtteranceCount,
			AvgImportance:  c.AvgImportance,
			Labels:         c.Labels,
		})
	}
	writeJSON(w, views)
}

func (s *Server) handleRecent(w http.ResponseWriter, _ *http.Request) {
	recent := s.journal.Recent(300)
	if recent == nil {
		recent = []pipeline.Utterance{}
	}
	writeJSON(w, recent)
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if req.VADThreshold != nil {
		if *req.VADThreshold < 0 || *req.VADThreshold > 1 {
			writeError(w, http.StatusBadRequest, "vad_threshold must be in [0,1]")
			return
		}
		s.lifecycle.SetVADThreshold(*req.VADThreshold)
	}
	if req.SNRThreshold != nil {
		s.gate.SetThreshold(*req.SNRThreshold)
	}
	writeJSON(w, map[string]float64{"snr_threshold": s.gate.Threshold()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		trace.Logger(r.Context()).Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	log := trace.Logger(r.Context())
	log.Info("websocket connected", "remote", r.RemoteAddr)

	// Push the current status so a fresh client doesn't wait for the
	// next transition.
	_ = wsjson.Write(r.Context(), conn, StatusMessage{Type: "status", Status: s.lifecycle.Status()})

	// The stream is push-only; the read loop just detects disconnect.
	for {
		var msg json.RawMessage
		if err := wsjson.Read(r.Context(), conn, &msg); err != nil {
			log.Debug("websocket closed", "error", err)
			return
		}
	}
}

func (s *Server) broadcastUtterances() {
	for u := range s.journal.Events() {
		s.broadcast(UtteranceMessage{Type: "utterance", Utterance: u})
	}
}

func (s *Server) broadcastStatus() {
	for st := range s.lifecycle.StatusEvents() {
		s.broadcast(StatusMessage{Type: "status", Status: st})
	}
}

func (s *Server) broadcast(msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.conns {
		go func(c *websocket.Conn) {
			_ = wsjson.Write(context.Background(), c, msg)
		}(conn)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
