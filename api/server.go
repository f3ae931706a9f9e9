package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"reefdemog/internal"
	"reefdemog/internal/config"
	"reefdemog/internal/dataset"
)

// Server is the HTTP query interface over the statistics core. It holds only
// immutable collaborators; every request computes on its own filtered copy of
// the dataset.
type Server struct {
	router *chi.Mux
	repo   *dataset.Repository
	cfg    *config.Config
	logger *internal.Logger
}

// NewServer wires the router. The repository may be nil when the dataset
// failed to load, in which case every data route answers DATA_UNAVAILABLE.
func NewServer(repo *dataset.Repository, cfg *config.Config, logger *internal.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/individual", s.handleIndividual)
		r.Get("/by-size", s.handleBySize)
		r.Get("/model", s.handleModel)
		r.Get("/by-study", s.handleByStudy)
		r.Route("/elasticity", func(r chi.Router) {
			r.Get("/breakdown", s.handleElasticityBreakdown)
			r.Get("/matrix", s.handleElasticityMatrix)
			r.Get("/summary", s.handleElasticitySummary)
			r.Get("/projection", s.handleProjection)
			r.Get("/scenario", s.handleScenario)
			r.Get("/stability", s.handleStability)
		})
		r.Get("/sites", s.handleSites)
		r.Get("/regions", s.handleRegions)
		r.Get("/overview", s.handleOverview)
	})
	s.router.Get("/docs/methods", s.handleMethods)
	s.router.Get("/healthz", s.handleHealth)
}

// Handler exposes the router for the HTTP server and for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe runs the server on the configured port
func (s *Server) ListenAndServe() error {
	addr := ":" + s.cfg.Server.Port
	s.logger.Info("query interface listening on %s", addr)
	return http.ListenAndServe(addr, s.router)
}
