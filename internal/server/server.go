// Package server exposes conversations, messages, raw queries and the agent
// loop over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/yolodolo42/chatd/internal/agent"
	"github.com/yolodolo42/chatd/internal/auth"
	"github.com/yolodolo42/chatd/internal/store"
)

// Server timeouts. A chat request can wait on the user's choice, so writes
// get a long deadline.
const (
	ReadTimeout     = 30 * time.Second
	WriteTimeout    = 10 * time.Minute
	IdleTimeout     = 2 * time.Minute
	ShutdownTimeout = 15 * time.Second
)

const maxBodyBytes = 16 << 20

// Options configures a Server
type Options struct {
	Addr string
	// AllowWrites lets /api/query run any statement
	AllowWrites bool
	Logger      *slog.Logger
}

// Server is the HTTP API
type Server struct {
	store       *store.Store
	agent       *agent.Agent
	allowWrites bool
	logger      *slog.Logger

	handler http.Handler
	server  *http.Server
}

// New wires the routes. ag may be nil, in which case the chat routes answer 503.
func New(st *store.Store, ag *agent.Agent, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:       st,
		agent:       ag,
		allowWrites: opts.AllowWrites,
		logger:      logger,
	}

	api := http.NewServeMux()
	s.registerRoutes(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", s.handleHealth)
	root.Handle("/api/", auth.Middleware(st, logger)(api))
	s.handler = s.logRequests(root)

	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}
	return s
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conversation", s.handleListConversations)
	mux.HandleFunc("POST /api/conversation", s.handleUpsertConversation)

	mux.HandleFunc("GET /api/message", s.handleListMessages)
	mux.HandleFunc("GET /api/message/{conversationID}", s.handleListMessages)
	mux.HandleFunc("POST /api/message", s.handleCreateMessage)
	mux.HandleFunc("POST /api/message/{conversationID}", s.handleCreateMessage)
	mux.HandleFunc("DELETE /api/message", s.handleDeleteMessage)

	mux.HandleFunc("GET /api/query", s.handleQuery)
	mux.HandleFunc("GET /api/tools", s.handleTools)

	mux.HandleFunc("POST /api/chat/{conversationID}", s.handleChat)
	mux.HandleFunc("GET /api/chat/{conversationID}/choice", s.handleChoiceState)
	mux.HandleFunc("POST /api/chat/{conversationID}/choice", s.handleChoiceResolve)
	mux.HandleFunc("DELETE /api/chat/{conversationID}/choice", s.handleChoiceCancel)
}

// ListenAndServe starts the HTTP server and blocks until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.server.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	// Request contexts end with ctx so a chat turn waiting on Gemini or on a
	// choice returns instead of holding up Shutdown.
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
