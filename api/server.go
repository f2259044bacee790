// Package api serves the stock dashboard over HTTP.
//
// It exposes the HTML dashboard, a JSON API over the same controller,
// a WebSocket feed of state changes, health and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/sync/errgroup"

	"github.com/seenimoa/stockdash/internal/config"
	"github.com/seenimoa/stockdash/internal/dashboard"
	"github.com/seenimoa/stockdash/internal/metrics"
	"github.com/seenimoa/stockdash/web"
)

const (
	shutdownTimeout = 15 * time.Second
	sweepInterval   = time.Minute
	defaultFormWait = 5 * time.Second
)

// Server is the HTTP server.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	fetcher  dashboard.Fetcher
	log      *slog.Logger
	metrics  *metrics.Metrics
	version  string
	sessions *SessionStore
	wsHub    *WSHub
	page     *template.Template

	// formWait bounds how long POST /search waits before redirecting.
	formWait time.Duration

	// searches started from the browser outlive their request.
	bgCtx  context.Context
	bgStop context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a configured server with all routes and middleware.
func NewServer(cfg *config.Config, fetcher dashboard.Fetcher, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:      cfg,
		fetcher:  fetcher,
		log:      slog.Default(),
		version:  "dev",
		wsHub:    NewWSHub(),
		formWait: defaultFormWait,
	}
	for _, opt := range opts {
		opt(s)
	}

	page, err := template.New("dashboard").Funcs(template.FuncMap{
		// Chart markup comes from dashboard.LineChart, which escapes labels.
		"svg": func(markup string) template.HTML { return template.HTML(markup) }, //nolint:gosec
	}).ParseFS(web.TemplatesFS(), "*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	s.page = page

	s.bgCtx, s.bgStop = context.WithCancel(context.Background())
	s.sessions = NewSessionStore(cfg.SessionIdleTimeout(), s.newController, s.metrics)
	s.sessions.busy = func(id string) bool { return s.wsHub.SessionClients(id) > 0 }

	s.router = s.buildRouter()
	return s, nil
}

// newController builds a session's controller and wires its state changes
// to that session's WebSocket clients.
func (s *Server) newController(id string) *dashboard.Controller {
	ctrl := dashboard.NewController(s.fetcher, dashboard.Options{
		Logger:  s.log.With("session", id),
		Metrics: s.metrics,
	})
	ctrl.OnChange(func(st dashboard.State) {
		s.wsHub.BroadcastTo(id, WSMessage{Type: "state", Data: dashboard.Render(st)})
	})
	return ctrl
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// Run listens on addr and serves until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server, WebSocket hub and session sweeper on ln until
// ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpSrv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.cfg.RequestTimeout() + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.wsHub.Run(gctx) })
	g.Go(func() error { return s.sessions.RunSweeper(gctx, sweepInterval) })
	g.Go(func() error {
		s.log.Info("http server listening", "addr", ln.Addr().String())
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down server")
		s.bgStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout()))

	// CORS
	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Dashboard page
	r.Get("/", s.handleIndex)
	r.Post("/search", s.handleSearchForm)
	s.mountStatic(r, web.StaticFS())

	// Health check
	r.Get("/health", s.handleHealth)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/config", s.handleGetConfig)

		r.Get("/dashboard", s.handleDashboard)
		r.Post("/search", s.handleSearch)
		r.Get("/stocks/{symbol}", s.handleStock)

		r.Get("/ws", s.handleWebSocket)
	})

	if s.cfg.Metrics.Enabled && s.metrics != nil {
		r.Handle(s.cfg.Metrics.Path, s.metrics.Handler())
	}

	return r
}

// mountStatic serves the embedded scripts and styles under /static/.
func (s *Server) mountStatic(r chi.Router, staticFS fs.FS) {
	fileServer := http.StripPrefix("/static/", http.FileServerFS(staticFS))

	r.Get("/static/*", func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/static/")
		if name == "" || strings.HasSuffix(name, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=300")
		fileServer.ServeHTTP(w, r)
	})
}

// ============================================================
// Response helpers
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Default().Warn("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
