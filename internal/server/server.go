package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/config"
	apperrors "github.com/disputekit/disputekit/internal/errors"
	"github.com/disputekit/disputekit/internal/observability"
	"github.com/disputekit/disputekit/internal/server/handlers"
	servermw "github.com/disputekit/disputekit/internal/server/middleware"
)

// Options wires the API handlers. Nil handlers leave their routes unregistered.
type Options struct {
	Health    *handlers.HealthManager
	Batches   *handlers.BatchHandler
	Templates *handlers.TemplateHandler
	Timeouts  config.ServerConfig
}

// HandleError writes err as a JSON error envelope with the request's
// correlation ID.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	apperrors.RespondWithError(w, r, err)
}

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	host     string
	port     int
	opts     Options
	timeouts config.ServerConfig
}

// New creates a new HTTP server instance
func New(host string, port int, opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(servermw.RequestID)      // correlation first
	r.Use(servermw.RequestMetrics) // measures everything below
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.AppVersion)
	}

	s := &Server{
		router:   r,
		host:     host,
		port:     port,
		opts:     opts,
		timeouts: withDefaultTimeouts(opts.Timeouts),
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	return s
}

func withDefaultTimeouts(cfg config.ServerConfig) config.ServerConfig {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	// Zero write timeout keeps progress streams open.
	if cfg.WriteTimeout < 0 {
		cfg.WriteTimeout = 0
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	return cfg
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       s.timeouts.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.timeouts.WriteTimeout,
		IdleTimeout:       s.timeouts.IdleTimeout,
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.host),
			zap.Int("port", s.port),
			zap.String("addr", addr))
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.port
}
