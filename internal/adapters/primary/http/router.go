package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/lorrc/service-desk-workflow/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-workflow/internal/auth"
	"github.com/lorrc/service-desk-workflow/internal/config"
	"github.com/lorrc/service-desk-workflow/internal/core/ports"
)

// RouterDeps wires the engine services into the HTTP surface.
type RouterDeps struct {
	Logger       *slog.Logger
	TokenManager *auth.TokenManager
	CORS         config.CORSConfig

	// RateLimiter is optional.
	RateLimiter *mw.RateLimiter

	Transitions ports.TransitionService
	Approvals   ports.ApprovalService
	SLAs        ports.SLAService
	Workflows   ports.WorkflowService

	Health *HealthHandler
	// WebSocket is optional; /api/v1/ws is only mounted when set.
	WebSocket http.Handler
}

// NewRouter builds the chi router for the engine API.
func NewRouter(deps RouterDeps) http.Handler {
	errorHandler := NewErrorHandler(deps.Logger)
	transitionHandler := NewTransitionHandler(deps.Transitions, errorHandler, deps.Logger)
	slaHandler := NewSLAHandler(deps.SLAs, errorHandler, deps.Logger)
	approvalHandler := NewApprovalHandler(deps.Approvals, errorHandler, deps.Logger)
	workflowHandler := NewWorkflowHandler(deps.Workflows, errorHandler, deps.Logger)

	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(deps.Logger))
	r.Use(mw.RecoveryLogger(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORS.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: deps.CORS.AllowCredentials,
		MaxAge:           deps.CORS.MaxAge,
	}))

	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware)
	}

	// Health check endpoints (outside /api/v1 for standard probe paths)
	if deps.Health != nil {
		deps.Health.RegisterRoutes(r)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Authentication is handled inside the handler
		if deps.WebSocket != nil {
			r.Get("/ws", deps.WebSocket.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			r.Use(mw.JWTMiddleware(deps.TokenManager))

			r.Route("/workflows", workflowHandler.RegisterRoutes)
			r.Route("/tickets/{ticketID}", func(r chi.Router) {
				transitionHandler.RegisterRoutes(r)
				slaHandler.RegisterTicketRoutes(r)
			})
			r.Route("/sla", slaHandler.RegisterRoutes)
			r.Route("/approvals", approvalHandler.RegisterRoutes)
		})
	})

	return r
}
