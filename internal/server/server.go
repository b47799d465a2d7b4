package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/BigJazzz/mosaic/internal/backend"
)

// Server routes HTTP requests to a backend.Service.
type Server struct {
	svc     *backend.Service
	tokens  *backend.Tokens
	logger  *slog.Logger
	limiter *RateLimiter
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithRateLimiter limits requests per client IP. Off by default.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(s *Server) {
		s.limiter = rl
	}
}

// New creates a server.
func New(svc *backend.Service, tokens *backend.Tokens, opts ...Option) *Server {
	s := &Server{
		svc:    svc,
		tokens: tokens,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer(s.logger))
	r.Use(requestLogger(s.logger))
	if s.limiter != nil {
		r.Use(s.limiter.Middleware)
	}

	r.Get("/healthz", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.health)
		r.Post("/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(s.tokens))

			r.Get("/plans", s.getPlans)
			r.Post("/submissions/batch", s.batchSubmit)
			r.Put("/users/me/password", s.changePassword)

			r.Route("/plans/{plan}", func(r chi.Router) {
				r.Use(requirePlanAccess)

				r.Get("/roster", s.getRoster)
				r.Get("/columns", s.getColumns)
				r.Get("/snapshot", s.getSnapshot)
				r.Post("/meeting", s.setupMeeting)
				r.With(requireAdmin).Put("/meeting", s.changeMeetingType)
				r.Delete("/attendance/{lot}", s.deleteAttendance)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)

				r.Get("/users", s.listUsers)
				r.Post("/users", s.createUser)
				r.Delete("/users/{name}", s.deleteUser)
			})
		})
	})

	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
