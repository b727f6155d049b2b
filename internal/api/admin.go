package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/machineid-io/machineid-core/internal/org"
	"github.com/machineid-io/machineid-core/internal/quota"
)

// ============================================================================
// Admin Endpoints: organisation management
// ============================================================================
//
// Raw organisation keys appear exactly twice in the system's life:
// the create response and the rotate response. They are never stored
// and never shown again.

type createOrgRequest struct {
	Name        string `json:"name"`
	Plan        string `json:"plan"`
	DeviceLimit *int64 `json:"device_limit"`
}

type updateOrgRequest struct {
	Name        *string `json:"name"`
	Plan        *string `json:"plan"`
	DeviceLimit *int64  `json:"device_limit"`
	Status      *string `json:"status"`
}

// handleAdminCreateOrg provisions a new organisation and returns the
// raw key alongside it, once.
func (s *Server) handleAdminCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req createOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, r, "name is required")
		return
	}

	planStr := req.Plan
	if planStr == "" {
		planStr = string(quota.PlanFree)
	}
	plan, err := quota.ParsePlan(planStr)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, ErrCodeValidation, "unknown plan: "+planStr)
		return
	}

	limit := plan.DefaultLimit()
	if req.DeviceLimit != nil {
		limit = quota.Limit(*req.DeviceLimit)
		if !limit.Valid() {
			writeError(w, r, http.StatusBadRequest, ErrCodeValidation, "device_limit must be -1 or a non-negative integer")
			return
		}
	}

	key, err := org.GenerateKey()
	if err != nil {
		s.logger.Error("failed to generate org key", "error", err)
		writeInternalError(w, r, "failed to create organisation")
		return
	}

	o := &org.Organization{
		Name:        req.Name,
		Plan:        plan,
		DeviceLimit: limit,
		KeyHash:     org.HashKey(key),
		Status:      org.StatusActive,
	}

	if err := s.orgs.Create(r.Context(), o); err != nil {
		if errors.Is(err, org.ErrInvalidName) {
			writeError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("failed to create organisation", "error", err)
		writeInternalError(w, r, "failed to create organisation")
		return
	}

	s.logger.Info("organisation created",
		"org_id", o.ID,
		"name", o.Name,
		"plan", string(o.Plan),
		"device_limit", o.DeviceLimit.String(),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"org":     o,
		"org_key": key,
	})
}

// handleAdminListOrgs returns all organisations.
func (s *Server) handleAdminListOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.orgs.List(r.Context())
	if err != nil {
		s.logger.Error("failed to list organisations", "error", err)
		writeInternalError(w, r, "failed to list organisations")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orgs": orgs, "count": len(orgs)})
}

// handleAdminGetOrg returns a single organisation by ID.
func (s *Server) handleAdminGetOrg(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	o, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, org.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, ErrCodeOrgNotFound, "organisation not found")
			return
		}
		s.logger.Error("failed to get organisation", "org_id", id, "error", err)
		writeInternalError(w, r, "failed to get organisation")
		return
	}

	writeJSON(w, http.StatusOK, o)
}

// handleAdminUpdateOrg modifies an organisation's mutable fields.
//
// A plan change resets the device limit to the new plan's default
// unless the same request also sets device_limit explicitly. Limit
// changes apply on the next admission decision; existing records are
// never migrated.
func (s *Server) handleAdminUpdateOrg(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateOrgRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}

	o, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, org.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, ErrCodeOrgNotFound, "organisation not found")
			return
		}
		s.logger.Error("get organisation for update failed", "org_id", id, "error", err)
		writeInternalError(w, r, "failed to update organisation")
		return
	}

	// Apply patches
	if req.Name != nil {
		o.Name = *req.Name
	}
	if req.Plan != nil {
		plan, err := quota.ParsePlan(*req.Plan)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, ErrCodeValidation, "unknown plan: "+*req.Plan)
			return
		}
		o.Plan = plan
		o.DeviceLimit = plan.DefaultLimit()
	}
	if req.DeviceLimit != nil {
		o.DeviceLimit = quota.Limit(*req.DeviceLimit)
	}
	if req.Status != nil {
		o.Status = org.Status(*req.Status)
	}

	if err := s.orgs.Update(r.Context(), o); err != nil {
		switch {
		case errors.Is(err, org.ErrNotFound):
			writeError(w, r, http.StatusNotFound, ErrCodeOrgNotFound, "organisation not found")
		case errors.Is(err, org.ErrInvalidName),
			errors.Is(err, org.ErrInvalidLimit),
			errors.Is(err, org.ErrInvalidStatus),
			errors.Is(err, quota.ErrUnknownPlan):
			writeError(w, r, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("update organisation failed", "org_id", id, "error", err)
			writeInternalError(w, r, "failed to update organisation")
		}
		return
	}

	s.logger.Info("organisation updated",
		"org_id", id,
		"plan", string(o.Plan),
		"device_limit", o.DeviceLimit.String(),
		"status", string(o.Status),
	)

	writeJSON(w, http.StatusOK, o)
}

// handleAdminRotateKey replaces the organisation's API key.
// The old key stops working immediately; the new raw key is returned
// once and never again.
func (s *Server) handleAdminRotateKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	key, err := org.GenerateKey()
	if err != nil {
		s.logger.Error("failed to generate org key", "error", err)
		writeInternalError(w, r, "failed to rotate key")
		return
	}

	if err := s.orgs.RotateKey(r.Context(), id, org.HashKey(key)); err != nil {
		if errors.Is(err, org.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, ErrCodeOrgNotFound, "organisation not found")
			return
		}
		s.logger.Error("failed to rotate org key", "org_id", id, "error", err)
		writeInternalError(w, r, "failed to rotate key")
		return
	}

	s.logger.Info("organisation key rotated", "org_id", id)

	writeJSON(w, http.StatusOK, map[string]any{
		"org_id":  id,
		"org_key": key,
	})
}
