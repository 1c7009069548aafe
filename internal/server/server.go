// Package server is a reference backend for the chat stream protocol. It
// issues sessions, streams a reply word by word and ends every stream with a
// done or error event. It exists for local runs and end-to-end tests.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	DefaultPath          = "/agent/chat"
	DefaultStreamTimeout = 5 * time.Minute
)

// Config configures the reference server.
type Config struct {
	Port int

	// Path of the chat endpoint; both GET and POST are served.
	Path string

	// Token, when set, is the only accepted bearer token.
	Token string

	// Delay between streamed words.
	Delay time.Duration

	// FailOn makes messages containing this word end with an error event.
	FailOn string

	// StreamTimeout bounds a single stream.
	StreamTimeout time.Duration
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	chat   *chatHandler
}

func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.StreamTimeout == 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}

	r := chi.NewRouter()

	// Apply middleware in order
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	// Wrap with OpenTelemetry HTTP instrumentation
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "streamchat-devserver")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	chat := newChatHandler(cfg, logger)
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Token))
		r.Use(TimeoutMiddleware(cfg.StreamTimeout))
		r.Get(cfg.Path, chat.handleGet)
		r.Post(cfg.Path, chat.handlePost)
	})

	return &Server{
		Router: r,
		Port:   cfg.Port,
		logger: logger,
		chat:   chat,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", slog.Int("port", s.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
