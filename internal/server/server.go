package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jpalmerr/parkwatch/internal/store"
)

const (
	// sseWriteTimeout caps each event written to a stream client. It stays
	// within shutdownTimeout so a slow client cannot hold up a watcher exit.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// indexPath is the dashboard page inside the assets filesystem.
	indexPath = "assets/index.html"

	defaultTitle = "parkwatch"

	// titlePlaceholder is substituted with the escaped watcher title.
	titlePlaceholder = "{{.Title}}"
)

// Server exposes a running watcher's poll events over HTTP.
//
// Routes:
//   - GET /: dashboard page, only when assets are supplied
//   - GET /api/status: latest event, or null before the first poll
//   - GET /api/events: buffered history, oldest first
//   - GET /api/sse: history replay followed by live events
//   - GET /metrics: Prometheus exposition, when a metrics handler is supplied
//   - GET /healthz: plain "ok"
//
// All routes stop when the context passed to [Server.Start] ends.
type Server struct {
	store      store.Store
	port       int
	assets     fs.FS
	title      string
	metrics    http.Handler
	logger     *slog.Logger
	httpServer *http.Server
}

// NewServer returns a server reading from st. assets and metrics may be nil,
// which drops the dashboard and /metrics routes. An empty title renders as
// "parkwatch". Nothing listens until [Server.Start].
func NewServer(st store.Store, port int, assets fs.FS, title string, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if title == "" {
		title = defaultTitle
	}
	return &Server{
		store:   st,
		port:    port,
		assets:  assets,
		title:   title,
		metrics: metrics,
		logger:  logger,
	}
}

// Start binds the port and serves in the background. A bind failure is
// returned to the caller; once bound, the server lives until ctx is done and
// then drains in-flight requests for up to five seconds.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// SSE handlers watch the request context, so it must end with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("status server listening", "addr", ln.Addr().String())

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("status server stopped", "error", err)
		}
	}()
	go s.shutdownOnDone(ctx)

	return nil
}

func (s *Server) shutdownOnDone(ctx context.Context) {
	<-ctx.Done()
	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(drainCtx); err != nil {
		s.logger.Error("status server shutdown", "error", err)
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/events", s.handleEvents)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// handleDashboard renders the index page with the watcher title.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	page, err := s.renderDashboard()
	if err != nil {
		s.logger.Warn("dashboard unavailable", "error", err)
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		s.logger.Error("failed to write dashboard", "error", err)
	}
}

func (s *Server) renderDashboard() ([]byte, error) {
	if s.assets == nil {
		return nil, fs.ErrNotExist
	}
	raw, err := fs.ReadFile(s.assets, indexPath)
	if err != nil {
		return nil, err
	}
	// the title comes from config, so it is escaped like any other input
	page := strings.ReplaceAll(string(raw), titlePlaceholder, html.EscapeString(s.title))
	return []byte(page), nil
}

// handleStatus answers with the latest event, or null before the first one.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowGET(w, r) {
		return
	}

	var latest any
	if e, ok := s.store.Latest(); ok {
		latest = e
	}
	s.writeJSON(w, latest)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !allowGET(w, r) {
		return
	}
	s.writeJSON(w, s.store.History())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func allowGET(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet {
		return true
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// eventStream writes store events to one SSE client.
type eventStream struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	logger *slog.Logger

	// cleared after the first SetWriteDeadline failure
	deadlines bool
}

func (es *eventStream) send(e store.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		es.logger.Debug("skipping unencodable event", "error", err)
		return nil
	}
	if es.deadlines {
		if err := es.rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
			es.logger.Debug("sse write deadlines not supported", "error", err)
			es.deadlines = false
		}
	}
	if _, err := fmt.Fprintf(es.w, "data: %s\n\n", data); err != nil {
		return err
	}
	return es.rc.Flush()
}

// handleSSE replays the buffered history and then forwards live events until
// the client leaves or the server shuts down.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")

	es := &eventStream{w: w, rc: http.NewResponseController(w), logger: s.logger, deadlines: true}

	// subscribed before the replay, so an event published during it is not lost
	live := s.store.Subscribe()
	defer s.store.Unsubscribe(live)

	for _, e := range s.store.History() {
		if es.send(e) != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-live:
			if !ok || es.send(e) != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}
