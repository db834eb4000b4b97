// Package statusd exposes the dispatch loop's live state over HTTP:
// a JSON snapshot endpoint and a websocket feed that pushes the same
// snapshot to connected browser tabs on connect and each time
// RecordBuildDuration is called, mirroring
// the reference corpus's websocket dashboard pattern applied to
// build-loop observability instead of issue-tracker mutations.
package statusd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"nhooyr.io/websocket"

	"github.com/askbuild/ask/internal/engine"
)

// Snapshot is the live state pushed to clients.
type Snapshot struct {
	QueueDepth       int           `json:"queue_depth"`
	ProcessesRunning int           `json:"processes_running"`
	ProcessesQueued  int           `json:"processes_queued"`
	LastBuildTook    time.Duration `json:"last_build_took_ns"`
}

// Server serves Snapshot over GET /status and pushes updates over a
// websocket at /status/ws.
type Server struct {
	eng *engine.Engine
	log *slog.Logger

	mu           sync.Mutex
	lastDuration time.Duration

	hub *hub
}

// New builds a Server reporting on eng's live state.
func New(eng *engine.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{eng: eng, log: log, hub: newHub()}
}

// RecordBuildDuration lets the host report how long the most recent
// root Ask took, for inclusion in Snapshot.
func (s *Server) RecordBuildDuration(d time.Duration) {
	s.mu.Lock()
	s.lastDuration = d
	s.mu.Unlock()
	s.hub.broadcast(s.snapshot())
}

func (s *Server) snapshot() Snapshot {
	s.mu.Lock()
	last := s.lastDuration
	s.mu.Unlock()

	proc := s.eng.ProcessLoop()
	snap := Snapshot{LastBuildTook: last, QueueDepth: s.eng.QueueDepth()}
	if proc != nil {
		snap.ProcessesRunning = proc.RunningCount()
		snap.ProcessesQueued = proc.QueuedCount()
	}
	return snap
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.snapshot())
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		s.log.Error("statusd: accept websocket", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "server closing")

	ch := s.hub.subscribe()
	defer s.hub.unsubscribe(ch)

	ctx := r.Context()
	if err := writeJSON(ctx, conn, s.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-ch:
			if !ok {
				return
			}
			if err := writeJSON(ctx, conn, snap); err != nil {
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// Mux builds the routed handler: GET /status and GET /status/ws.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/status/ws", s.handleWS)
	return mux
}

// ListenAndServe serves the dashboard on addr using h2c, so HTTP/2
// framing (efficient for many short-lived status polls alongside a
// long-lived websocket) is available without TLS.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	handler := h2c.NewHandler(s.Mux(), &http2.Server{})
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}

// hub fans a Snapshot out to every currently subscribed websocket
// connection, dropping updates for subscribers that are not keeping
// up rather than blocking the broadcaster.
type hub struct {
	mu   sync.Mutex
	subs map[chan Snapshot]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[chan Snapshot]struct{})}
}

func (h *hub) subscribe() chan Snapshot {
	ch := make(chan Snapshot, 4)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *hub) unsubscribe(ch chan Snapshot) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *hub) broadcast(snap Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- snap:
		default:
		}
	}
}
