package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/dialplane/dialplane/internal/api/middleware"
	"github.com/dialplane/dialplane/internal/callstore"
	"github.com/dialplane/dialplane/internal/config"
	"github.com/dialplane/dialplane/internal/database"
	"github.com/dialplane/dialplane/internal/dialer"
	"github.com/dialplane/dialplane/internal/orchestrator"
	"github.com/dialplane/dialplane/internal/recordings"
)

// Deps bundles the components the HTTP layer delegates to.
type Deps struct {
	DB           *database.DB
	Orchestrator *orchestrator.Orchestrator
	Dialer       *dialer.Dialer
	Reconciler   *recordings.Reconciler
	Sessions     callstore.Store
	Metrics      http.Handler
	JWTSecret    []byte
}

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config

	orch       *orchestrator.Orchestrator
	dialer     *dialer.Dialer
	reconciler *recordings.Reconciler
	sessions   callstore.Store
	metrics    http.Handler
	jwtSecret  []byte

	agents        database.AgentRepository
	orgs          database.OrganizationRepository
	numbers       database.InboundNumberRepository
	voiceSettings database.VoiceSettingsRepository
	activeCalls   database.ActiveCallRepository
	callRecords   database.CallRecordRepository

	apiLimiter  *middleware.IPRateLimiter
	authLimiter *middleware.IPRateLimiter
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(cfg *config.Config, deps Deps) *Server {
	s := &Server{
		router: chi.NewRouter(),
		cfg:    cfg,

		orch:       deps.Orchestrator,
		dialer:     deps.Dialer,
		reconciler: deps.Reconciler,
		sessions:   deps.Sessions,
		metrics:    deps.Metrics,
		jwtSecret:  deps.JWTSecret,

		agents:        database.NewAgentRepository(deps.DB),
		orgs:          database.NewOrganizationRepository(deps.DB),
		numbers:       database.NewInboundNumberRepository(deps.DB),
		voiceSettings: database.NewVoiceSettingsRepository(deps.DB),
		activeCalls:   database.NewActiveCallRepository(deps.DB),
		callRecords:   database.NewCallRecordRepository(deps.DB),

		apiLimiter:  middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		authLimiter: middleware.NewIPRateLimiter(middleware.AuthRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops the server's background rate limiter cleanup goroutines.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.authLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders(false))
	if s.cfg.CORSOrigins != "" {
		r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))
	}

	// Telephony provider webhooks. Unauthenticated; the provider does not
	// carry our JWTs.
	r.Post("/webhooks/telnyx", s.handleTelnyxWebhook)

	// Prometheus scrape endpoint.
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	// API routes under /api/v1.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.apiLimiter))

		// Unauthenticated routes.
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.authLimiter))
			r.Post("/auth/login", s.handleLogin)
		})

		// Everything below requires a valid agent token.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAgentAuth(s.jwtSecret))

			r.Get("/auth/me", s.handleMe)

			r.Route("/calls", func(r chi.Router) {
				r.Post("/dial", s.handleDial)
				r.Get("/active", s.handleListActiveCalls)
				r.Get("/history", s.handleCallHistory)
				r.Route("/records", func(r chi.Router) {
					r.Get("/", s.handleListCallRecords)
					r.Get("/export", s.handleExportCallRecords)
					r.Get("/{sid}", s.handleGetCallRecord)
				})
			})

			r.Route("/recordings", func(r chi.Router) {
				r.Post("/sync", s.handleSyncRecording)
				r.Put("/sync", s.handleSyncRecordingsBatch)
			})

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", s.handleListAgents)
				r.Post("/", s.handleCreateAgent)
				r.Put("/me/push-token", s.handleUpdatePushToken)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetAgent)
					r.Put("/", s.handleUpdateAgent)
					r.Delete("/", s.handleDeleteAgent)
					r.Put("/status", s.handleUpdateAgentStatus)
				})
			})

			r.Route("/numbers", func(r chi.Router) {
				r.Get("/", s.handleListNumbers)
				r.Post("/", s.handleCreateNumber)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetNumber)
					r.Put("/", s.handleUpdateNumber)
					r.Delete("/", s.handleDeleteNumber)
				})
			})

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", s.handleListOrgs)
				r.Post("/", s.handleCreateOrg)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetOrg)
					r.Put("/", s.handleUpdateOrg)
					r.Delete("/", s.handleDeleteOrg)
					r.Get("/voice-settings", s.handleGetVoiceSettings)
					r.Put("/voice-settings", s.handleUpdateVoiceSettings)
				})
			})
		})
	})

	slog.Info("api routes mounted")
}

// handleHealth returns basic health status. Unauthenticated.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
