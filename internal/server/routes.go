package server

import (
	"os"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/disputekit/disputekit/internal/appid"
	"github.com/disputekit/disputekit/internal/observability"
	"github.com/disputekit/disputekit/internal/server/handlers"
)

// registerRoutes registers all HTTP routes
func (s *Server) registerRoutes() {
	health := s.opts.Health
	s.router.Get("/health", health.HealthHandler)
	s.router.Get("/health/live", health.LivenessHandler)
	s.router.Get("/health/ready", health.ReadinessHandler)
	s.router.Get("/health/startup", health.StartupHandler)

	s.router.Get("/version", handlers.VersionHandler)
	s.router.Get("/metrics", MetricsHandler)

	s.router.Route("/v1", func(r chi.Router) {
		if b := s.opts.Batches; b != nil {
			r.Post("/batches", b.Start)
			r.Get("/batches", b.List)
			r.Get("/batches/{batchID}", b.Progress)
			r.Get("/batches/{batchID}/events", b.Events)
			r.Post("/batches/{batchID}/cancel", b.Cancel)
			r.Get("/batches/{batchID}/result", b.Result)
		}
		if t := s.opts.Templates; t != nil {
			r.Get("/templates", t.List)
			r.Get("/templates/recommend", t.Recommend)
			r.Get("/templates/{templateID}", t.Get)
			r.Post("/templates/{templateID}/preview", t.Preview)
		}
	})

	s.registerAdminEndpoint()
}

// registerAdminEndpoint exposes /admin/signal when DISPUTEKIT_ADMIN_TOKEN is set.
func (s *Server) registerAdminEndpoint() {
	tokenVar := appid.EnvPrefix + "ADMIN_TOKEN"
	adminToken := os.Getenv(tokenVar)
	logger := observability.ServerLogger

	if adminToken == "" {
		if logger != nil {
			logger.Debug("Admin signal endpoint disabled (no " + tokenVar + " set)")
		}
		return
	}

	handler := signals.NewHTTPHandler(signals.HTTPConfig{
		TokenAuth: adminToken,
		RateLimit: 10, // per minute
		RateBurst: 5,
		Manager:   nil,
	})
	s.router.Post("/admin/signal", handler.ServeHTTP)

	if logger != nil {
		logger.Info("Admin signal endpoint enabled",
			zap.String("path", "/admin/signal"),
			zap.String("rate_limit", "10/min, burst 5"))
	}
}
