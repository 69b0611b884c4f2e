// Package api provides the HTTP surface of the locum lifecycle engine.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/narvanalabs/locum/internal/api/handlers"
	"github.com/narvanalabs/locum/internal/api/health"
	"github.com/narvanalabs/locum/internal/api/middleware"
	"github.com/narvanalabs/locum/internal/auth"
	"github.com/narvanalabs/locum/internal/idempotency"
	"github.com/narvanalabs/locum/internal/lifecycle"
	"github.com/narvanalabs/locum/internal/notify"
	"github.com/narvanalabs/locum/internal/store"
	"github.com/narvanalabs/locum/pkg/config"
	"github.com/redis/go-redis/v9"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// requestTimeout bounds every non-streaming request.
const requestTimeout = 60 * time.Second

// Deps holds the server's collaborators. Broker, Idempotency and Redis are
// optional.
type Deps struct {
	Config      *config.Config
	Store       store.Store
	Engine      *lifecycle.Engine
	Inbox       *notify.Inbox
	Broker      *notify.Broker
	Auth        *auth.Service
	Idempotency idempotency.Store
	Redis       *redis.Client
	Logger      *slog.Logger
}

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	deps          Deps
	logger        *slog.Logger
	healthChecker *health.Checker
	notifications *handlers.NotificationHandler
}

// NewServer creates a new API server with the given dependencies.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Config == nil {
		deps.Config = config.LoadWithDefaults()
	}

	s := &Server{
		deps:   deps,
		logger: logger.With("component", "api"),
	}

	s.healthChecker = health.NewChecker(deps.Store, Version)
	if deps.Redis != nil {
		s.healthChecker.AddOptional("redis", health.PingFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}))
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))

	r.Get("/health", s.healthChecker.Handler())

	authMiddleware := middleware.NewAuthMiddleware(s.deps.Auth, s.logger)
	limiter := middleware.NewRateLimiter(s.deps.Redis, "invitation-respond",
		s.deps.Config.RespondRateLimit, time.Minute, s.logger)

	jobs := handlers.NewJobHandler(s.deps.Engine, s.logger)
	applications := handlers.NewApplicationHandler(s.deps.Engine, s.logger)
	verifications := handlers.NewVerificationHandler(s.deps.Engine, s.logger)
	invitations := handlers.NewInvitationHandler(s.deps.Engine, s.logger)
	s.notifications = handlers.NewNotificationHandler(s.deps.Inbox, s.deps.Broker, s.logger)

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		// The live stream outlives any request timeout.
		r.Get("/notifications/ws", s.notifications.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(requestTimeout))
			r.Use(middleware.Idempotency(s.deps.Idempotency, s.logger))

			r.Post("/jobs", jobs.Create)
			r.Route("/jobs/{jobID}", func(r chi.Router) {
				r.Delete("/", jobs.Delete)
				r.Post("/events", jobs.Transition)
				r.Post("/applications", applications.Submit)
			})

			r.Post("/applications/{applicationID}/events", applications.Transition)

			r.Route("/verifications", func(r chi.Router) {
				r.Post("/", verifications.Submit)
				r.Post("/{id}/resubmit", verifications.Resubmit)
				r.Post("/{id}/review", verifications.Review)
				r.Get("/{id}/credentials", verifications.Credentials)
			})

			r.Post("/facilities/{facilityID}/invitations", invitations.Issue)
			r.With(limiter.Middleware).Post("/invitations/respond", invitations.Respond)

			r.Get("/notifications", s.notifications.List)
			r.Get("/notifications/unread-count", s.notifications.UnreadCount)
			r.Post("/notifications/read-all", s.notifications.MarkAllRead)
			r.Post("/notifications/{id}/read", s.notifications.MarkRead)
			r.Delete("/notifications/{id}", s.notifications.Delete)
		})
	})

	s.router = r
}

// Start starts the HTTP server and blocks until it fails or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	srv := s.HTTPServer()
	s.logger.Info("starting API server", "addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// HTTPServer returns the *http.Server serving the router, creating it on
// first use.
func (s *Server) HTTPServer() *http.Server {
	if s.httpServer == nil {
		s.httpServer = &http.Server{
			Addr:              s.deps.Config.Addr(),
			Handler:           s.router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
	}
	return s.httpServer
}

// Shutdown closes live streams and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	s.CloseStreams()
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.deps.Config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// CloseStreams ends open websocket notification streams.
func (s *Server) CloseStreams() {
	s.notifications.CloseStreams()
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
