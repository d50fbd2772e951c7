package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	cfotel "github.com/Strob0t/leadgate/internal/adapter/otel"
	"github.com/Strob0t/leadgate/internal/domain/actor"
	"github.com/Strob0t/leadgate/internal/middleware"
	"github.com/Strob0t/leadgate/internal/port/cache"
	"github.com/Strob0t/leadgate/internal/port/directory"
)

// RouterConfig carries what the router needs besides the handlers.
type RouterConfig struct {
	Policy      actor.Policy
	Directory   directory.Directory
	CORSOrigins []string

	// Idempotency, when set, backs replay of POST /leads by Idempotency-Key.
	Idempotency    cache.Cache
	IdempotencyTTL time.Duration

	// Metrics, when set, records request samples and serves /metrics.
	Metrics *PromMetrics

	// TraceService, when non-empty, wraps the router in otelhttp spans.
	TraceService string
}

// NewRouter builds the full HTTP surface.
func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	if cfg.TraceService != "" {
		r.Use(cfotel.HTTPMiddleware(cfg.TraceService))
	}
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(SecurityHeaders)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", middleware.HeaderUserID, "X-Request-ID", "Idempotency-Key"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}
	r.Use(middleware.Identify(cfg.Directory))

	r.Get("/health", h.HealthCheck)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	manager := middleware.RequireManager(cfg.Policy)
	privileged := middleware.RequirePrivileged(cfg.Policy)

	r.Route("/api/v1", func(r chi.Router) {
		// Leads
		r.Get("/leads", h.ListLeads)
		if cfg.Idempotency != nil {
			r.With(middleware.Idempotency(cfg.Idempotency, cfg.IdempotencyTTL)).Post("/leads", h.CreateLead)
		} else {
			r.Post("/leads", h.CreateLead)
		}
		r.Get("/leads/{id}", h.GetLead)
		r.Patch("/leads/{id}", h.UpdateLead)
		r.Delete("/leads/{id}", h.DeleteLead)

		// Duplicates
		r.Get("/leads/{id}/duplicates/summary", h.DuplicateSummary)
		r.Get("/leads/{id}/duplicates", h.Duplicates)

		// Assignments
		r.Post("/leads/{id}/assignments", h.Assign)
		r.Delete("/leads/{id}/assignments/{userID}", h.Unassign)
		r.Delete("/leads/{id}/assignments", h.ClearAssignments)
		r.With(privileged).Delete("/assignments/{id}", h.DeleteAssignment)

		// Admin
		r.With(manager).Post("/admin/owners/resync", h.ResyncOwners)
		r.With(manager).Post("/admin/dedup/repair", h.RepairGroup)
	})

	return r
}
