// Package server exposes the chat gateway and the reference conversation
// store over HTTP+JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/aschepis/backscratcher/toolchat/chat"
	"github.com/aschepis/backscratcher/toolchat/llm"
	"github.com/aschepis/backscratcher/toolchat/mcp"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// Server is the chat gateway HTTP server.
type Server struct {
	httpServer *http.Server
	dispatcher *chat.Dispatcher
	manager    *mcp.Manager
	registry   *llm.ProviderRegistry
	logger     zerolog.Logger

	startedAt time.Time
}

// Config holds server configuration options.
type Config struct {
	Address string
	Logger  zerolog.Logger
}

// New creates a new gateway server.
func New(cfg Config, dispatcher *chat.Dispatcher, manager *mcp.Manager, registry *llm.ProviderRegistry) *Server {
	s := &Server{
		dispatcher: dispatcher,
		manager:    manager,
		registry:   registry,
		logger:     cfg.Logger.With().Str("component", "http-server").Logger(),
		startedAt:  time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the gateway routes.
func (s *Server) Handler() http.Handler {
	r := newRouter(s.logger)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api", func(api chi.Router) {
		api.Post("/chat", s.handleChat)
		api.Get("/providers", s.handleProviders)

		api.Route("/mcp", func(r chi.Router) {
			r.Post("/connect", s.handleConnect)
			r.Post("/disconnect", s.handleDisconnect)
			r.Get("/tools", s.handleTools)
		})
	})

	return r
}

// Serve starts the server on the given listener. It returns nil after Shutdown.
func (s *Server) Serve(listener net.Listener) error {
	s.logger.Info().Str("address", listener.Addr().String()).Msg("Starting HTTP server")
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe starts the server on the configured TCP address.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the server, waiting for in-flight turns until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Gracefully stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// newRouter returns a chi router with the middleware shared by every service.
func newRouter(logger zerolog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	return r
}

// requestLogger logs every request with its status and duration.
func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := logger.Debug()
			if status >= http.StatusInternalServerError {
				ev = logger.Error()
			}
			ev.Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("Request completed")
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, errorBody{Error: message})
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
