// internal/api/server.go
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	handler "github.com/newthinker/stonks/internal/api/handler/api"
	"github.com/newthinker/stonks/internal/api/middleware"
	"github.com/newthinker/stonks/internal/api/response"
	"github.com/newthinker/stonks/internal/engine"
	"github.com/newthinker/stonks/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the read API over the engine.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	router     *chi.Mux
	engine     *engine.Engine
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	APIKey      string
	CORSOrigins []string
	MetricsPath string
}

// NewServer creates a new HTTP server
func NewServer(cfg Config, eng *engine.Engine, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger: logger,
		router: chi.NewRouter(),
		engine: eng,
	}
	s.setupRoutes(cfg)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(cfg Config) {
	r := s.router
	reg := s.engine.Metrics()

	r.Use(chimw.Recoverer)
	r.Use(metrics.LoggingMiddleware(s.logger))
	if reg != nil {
		r.Use(metrics.HTTPMiddleware(reg))
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	if reg != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	portfolio := handler.NewPortfolioHandler(s.engine)
	sync := handler.NewSyncHandler(s.engine)
	sigs := handler.NewSignalsHandler(s.engine)
	research := handler.NewResearchHandler(s.engine.Research())
	market := handler.NewMarketHandler(s.engine.Market())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey, "/api/health"))

		r.Get("/health", s.handleHealth)
		r.Get("/phase", sync.Phase)
		r.Post("/sync", sync.Trigger)

		r.Get("/accounts", portfolio.Accounts)
		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/stocks", portfolio.Stocks)
			r.Get("/options", portfolio.Options)
			r.Get("/summary", portfolio.Summary)
			r.Get("/treemap", portfolio.Treemap)
			r.Get("/sectors", portfolio.Sectors)
			r.Get("/delta", portfolio.Delta)
		})

		r.Get("/signals", sigs.List)
		r.Get("/research/{symbol}", research.Get)
		r.Get("/market/indices", market.Indices)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"engine": s.engine.Stats(),
	})
}
