package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the route tree. Three tiers: open endpoints
// for monitoring, x-org-key endpoints for the admission gate, and
// bearer-token endpoints for the admin plane.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Organisation-scoped routes.
		r.Group(func(r chi.Router) {
			r.Use(s.orgAuthMiddleware)
			if s.limiters != nil {
				r.Use(s.rateLimitMiddleware)
			}

			r.Route("/devices", func(r chi.Router) {
				r.Post("/register", s.handleRegister)
				r.Post("/validate", s.handleValidate)
				r.Get("/", s.handleListDevices)
				r.Delete("/{deviceID}", s.handleRevokeDevice)
			})

			r.Get("/org", s.handleGetOrg)
			r.Get("/audit", s.handleListDecisions)
		})

		// Admin plane.
		r.Group(func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)

			r.Route("/admin/orgs", func(r chi.Router) {
				r.Get("/", s.handleAdminListOrgs)
				r.Post("/", s.handleAdminCreateOrg)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleAdminGetOrg)
					r.Patch("/", s.handleAdminUpdateOrg)
					r.Post("/key", s.handleAdminRotateKey)
				})
			})
		})
	})

	return r
}

// handleHealth answers liveness probes.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
