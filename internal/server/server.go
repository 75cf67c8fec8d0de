// Package server provides the HTTP server and routing for Minerva.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/minerva/internal/apiutil"
	"github.com/aristath/minerva/internal/auth"
	"github.com/aristath/minerva/internal/config"
	"github.com/aristath/minerva/internal/di"
	accountshandlers "github.com/aristath/minerva/internal/modules/accounts/handlers"
	aidhandlers "github.com/aristath/minerva/internal/modules/aid/handlers"
	assistanthandlers "github.com/aristath/minerva/internal/modules/assistant/handlers"
	budgethandlers "github.com/aristath/minerva/internal/modules/budget/handlers"
	budgetlinehandlers "github.com/aristath/minerva/internal/modules/budgetline/handlers"
	centerhandlers "github.com/aristath/minerva/internal/modules/center/handlers"
	contracthandlers "github.com/aristath/minerva/internal/modules/contract/handlers"
	employeehandlers "github.com/aristath/minerva/internal/modules/employee/handlers"
	sectorhandlers "github.com/aristath/minerva/internal/modules/sector/handlers"
)

// requestTimeout bounds every REST request. The event stream is exempt.
const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
	eventsStream   *EventsStreamHandler
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
	}

	s.systemHandlers = NewSystemHandlers(
		cfg.Container.DB,
		cfg.Container.Scheduler,
		cfg.Container.EventBus,
		cfg.Config.DataDir,
		s.log,
	)
	if cfg.Container.S3BackupService != nil {
		s.systemHandlers.SetBackups(cfg.Container.S3BackupService)
	}
	s.eventsStream = NewEventsStreamHandler(cfg.Container.EventBus, cfg.Config.CORSAllowedOrigins, s.log)

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	s.router.Use(middleware.StripSlashes)
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	c := s.container
	paginator := apiutil.Paginator{DefaultSize: s.cfg.PageSize, MaxSize: s.cfg.MaxPageSize}

	s.router.With(s.compress()...).Get("/health", s.handleHealth)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(c.AuthMiddleware.Authenticate)
		r.Use(c.AccessResolver.Middleware)

		// Long-lived: no timeout, no compression
		r.With(auth.RequireAuth).Get("/events/ws", s.eventsStream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Use(s.compress()...)

			accountshandlers.NewHandler(c.AccountsService, paginator, s.cfg.Auth.SecureCookies, s.log).RegisterRoutes(r)
			sectorhandlers.NewHandler(c.SectorService, paginator, s.log).RegisterRoutes(r)
			centerhandlers.NewHandler(c.CenterService, paginator, s.log).RegisterRoutes(r)

			employees := employeehandlers.NewHandler(c.EmployeeService, paginator, s.log)
			employees.SetAidLister(c.AidService)
			employees.SetContractLister(c.ContractService)
			employees.RegisterRoutes(r)

			budgethandlers.NewHandler(c.BudgetService, paginator, s.log).RegisterRoutes(r)
			budgetlinehandlers.NewHandler(c.BudgetLineService, paginator, s.log).RegisterRoutes(r)
			contracthandlers.NewHandler(c.ContractService, paginator, s.log).RegisterRoutes(r)
			aidhandlers.NewHandler(c.AidService, paginator, s.log).RegisterRoutes(r)
			assistanthandlers.NewHandler(c.AssistantService, s.log).RegisterRoutes(r)

			s.systemHandlers.RegisterRoutes(r)
		})
	})
}

// compress returns the compression middleware outside dev mode.
func (s *Server) compress() []func(http.Handler) http.Handler {
	if s.cfg.DevMode {
		return nil
	}
	return []func(http.Handler) http.Handler{middleware.Compress(5)}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.container.DB.Conn().PingContext(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check failed")
		apiutil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"database": "ok",
	})
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
