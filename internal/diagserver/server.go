// Package diagserver implements the engine's optional HTTP diagnostics
// surface (SPEC_FULL.md §2 item 15): /healthz, /metrics, /stats, and a
// best-effort /stream websocket broadcasting live emitted-event
// diagnostics. Routing and graceful shutdown follow
// infrastructure/service.Runner's Router()+http.Server.Shutdown shape,
// scoped down to a single always-local, unauthenticated server instead of
// a multi-service mesh.
package diagserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/resink-ai/resinker/internal/enginelog"
	"github.com/resink-ai/resinker/internal/enginemetrics"
)

// Stats is a point-in-time snapshot the /stats endpoint reports, supplied
// by the caller (engine.Run) rather than computed here.
type Stats struct {
	EventsEmitted   uint64            `json:"events_emitted"`
	Elapsed         string            `json:"elapsed"`
	EntityCounts    map[string]int    `json:"entity_counts"`
	ActiveScenarios int               `json:"active_scenarios"`
	TerminationHint string            `json:"termination_hint,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// StatsProvider supplies the current Stats snapshot on demand.
type StatsProvider func() Stats

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the diagnostics HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *enginelog.Logger

	mu       sync.Mutex
	watchers map[*websocket.Conn]struct{}
}

// New builds a diagnostics server bound to addr, exposing /healthz,
// /metrics (promhttp), /stats (via statsFn), and /stream (websocket
// broadcast of diagnostic events pushed through Broadcast).
func New(addr string, metrics *enginemetrics.Metrics, statsFn StatsProvider, logger *enginelog.Logger) *Server {
	s := &Server{logger: logger, watchers: map[*websocket.Conn]struct{}{}}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc("/stats", s.handleStats(statsFn)).Methods(http.MethodGet)
	router.HandleFunc("/stream", s.handleStream).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine. Start does not block;
// bind errors are logged, not returned, matching the diagnostics server's
// best-effort status (it is never required for a simulation run to
// proceed).
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.WithFields(map[string]interface{}{"error": err.Error()}).Error("diagnostics server stopped")
			}
		}
	}()
}

// Shutdown gracefully stops the server and closes all websocket watchers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for conn := range s.watchers {
		_ = conn.Close()
	}
	s.watchers = map[*websocket.Conn]struct{}{}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleStats(statsFn StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if statsFn == nil {
			_ = json.NewEncoder(w).Encode(Stats{})
			return
		}
		_ = json.NewEncoder(w).Encode(statsFn())
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.WithFields(map[string]interface{}{"error": err.Error()}).Warn("websocket upgrade failed")
		}
		return
	}
	s.mu.Lock()
	s.watchers[conn] = struct{}{}
	s.mu.Unlock()

	// Drain and discard any client-sent frames until the connection
	// closes, so the server notices disconnects promptly.
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.watchers, conn)
			s.mu.Unlock()
			_ = conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast pushes one diagnostic payload to every connected /stream
// watcher. A slow or dead watcher is dropped rather than blocking the
// others.
func (s *Server) Broadcast(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.watchers {
		if err := conn.WriteJSON(v); err != nil {
			_ = conn.Close()
			delete(s.watchers, conn)
		}
	}
}
