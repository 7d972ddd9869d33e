package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/procurewatch/tender-monitor/internal/config"
)

// Server is the HTTP server for probes and webhooks.
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

func NewServer(cfg config.ServerConfig, health *HealthChecker, webhook *PaymentWebhook, search *SearchHandler) *Server {
	return &Server{
		config:  cfg,
		handler: setupRoutes(health, webhook, search),
	}
}

func setupRoutes(health *HealthChecker, webhook *PaymentWebhook, search *SearchHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Webhook-Token"},
		MaxAge:         300,
	}))

	r.Get("/health", health.HandleHealth)
	r.Get("/ready", health.HandleReadiness)
	r.Get("/live", health.HandleLiveness)
	r.Post("/payment/webhook", webhook.Handle)
	if search != nil {
		r.Post("/search/instant", search.Handle)
	}

	return r
}

// ListenAndServe blocks serving HTTP until Shutdown or failure.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
