package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/agentdeck/agentdeck/internal/archive"
	"github.com/agentdeck/agentdeck/internal/engine"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/supervise"
)

// Server exposes the live session over a websocket stream plus a small
// JSON API for state reads and agent control.
type Server struct {
	engine         *engine.Engine
	broadcaster    *Broadcaster
	archives       *archive.Manager
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(eng *engine.Engine, broadcaster *Broadcaster, archives *archive.Manager, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		engine:         eng,
		broadcaster:    broadcaster,
		archives:       archives,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/agent/start", s.handleStart)
	mux.HandleFunc("/api/agent/stop", s.handleStop)
	mux.HandleFunc("/api/agent/resume", s.handleResume)
	mux.HandleFunc("/api/agent/acknowledge", s.handleAcknowledge)
	mux.HandleFunc("/api/archives", s.handleArchives)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	logging.Info().Str("remote", r.RemoteAddr).Msg("ws client connected")
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			logging.Info().Str("remote", r.RemoteAddr).Msg("ws client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.authorizePost(w, r) {
		return
	}
	s.writeControlResult(w, s.engine.Start())
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.authorizePost(w, r) {
		return
	}
	s.writeControlResult(w, s.engine.Stop())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if !s.authorizePost(w, r) {
		return
	}

	var req resumeRequest
	if r.Body != nil {
		// An empty body resumes without feedback.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	s.writeControlResult(w, s.engine.Resume(req.Feedback))
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	if !s.authorizePost(w, r) {
		return
	}
	s.engine.Acknowledge()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.archives == nil {
		http.Error(w, "archiving disabled", http.StatusServiceUnavailable)
		return
	}

	entries, err := s.archives.List()
	if err != nil {
		http.Error(w, fmt.Sprintf("listing archives: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// writeControlResult maps control-call outcomes to HTTP: conflicts for a
// run already in flight, 502 for everything else, 204 on success.
func (s *Server) writeControlResult(w http.ResponseWriter, err error) {
	if err == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	status := http.StatusBadGateway
	var already *supervise.AlreadyRunningError
	if errors.As(err, &already) {
		status = http.StatusConflict
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(WSMessage{
		Type:    MsgError,
		Payload: ErrorPayload{Message: err.Error()},
	})
}

func (s *Server) authorizePost(w http.ResponseWriter, r *http.Request) bool {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-AgentDeck-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	logging.Info().Str("addr", addr).Msg("server listening")
	return http.ListenAndServe(addr, mux)
}
