package proxy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zhengjr9/claude-gateway/internal/adapter/anthropic"
	"github.com/zhengjr9/claude-gateway/internal/adapter/gemini"
	"github.com/zhengjr9/claude-gateway/internal/adapter/openai"
	"github.com/zhengjr9/claude-gateway/internal/config"
	"github.com/zhengjr9/claude-gateway/internal/metrics"
	"github.com/zhengjr9/claude-gateway/internal/session"
)

// Server is the gateway HTTP server.
type Server struct {
	httpServer *http.Server
}

// New constructs a Server from the given config. m may be nil.
func New(cfg *config.Config, sessions *session.Manager, m *metrics.Collector) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr(),
			Handler:           NewHandler(sessions, m, cfg.CORSOrigin),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			// No WriteTimeout: streamed turns end on the backend's signal.
			IdleTimeout: 60 * time.Second,
		},
	}
}

// NewHandler builds the routed handler with its middleware chain.
func NewHandler(sessions *session.Manager, m *metrics.Collector, corsOrigin string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", health).Methods(http.MethodGet)
	r.Handle("/v1/models", anthropic.NewModelsHandler(sessions)).Methods(http.MethodGet)
	r.Handle("/v1/messages", anthropic.NewHandler(sessions, m)).Methods(http.MethodPost)
	r.Handle("/v1/chat/completions", openai.NewHandler(sessions, m)).Methods(http.MethodPost)
	r.Handle("/v1beta/models/{model}:{action}", gemini.NewHandler(sessions, m)).Methods(http.MethodPost)
	if m != nil {
		r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allowedMethods(http.MethodGet, http.MethodPost, http.MethodOptions))
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	var handler http.Handler = r
	handler = corsMiddleware(corsOrigin)(handler)
	handler = LoggingMiddleware(handler)
	handler = recoveryMiddleware(handler)
	return handler
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

// Start begins listening and blocks until the server is stopped.
func (s *Server) Start() error {
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Handler returns the underlying http.Handler (for use in tests with httptest.NewServer).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
