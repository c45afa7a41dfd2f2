package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// CreateSquadRequest represents the squad creation request.
type CreateSquadRequest struct {
	Name                 string               `json:"name"`
	ConsensusMode        models.ConsensusMode `json:"consensus_mode,omitempty"`
	CommitTimeoutSeconds int                  `json:"commit_timeout_seconds,omitempty"`
	MaxMembers           int                  `json:"max_members,omitempty"`
}

// CreateSquad handles POST /api/squads.
func (h *Handler) CreateSquad(w http.ResponseWriter, r *http.Request) {
	var req CreateSquadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.Name = sanitizeName(req.Name)
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if !nameRegex.MatchString(req.Name) {
		h.Error(w, http.StatusBadRequest, "name must be 1-50 printable characters")
		return
	}
	if req.ConsensusMode != "" {
		if err := req.ConsensusMode.Validate(); err != nil {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.CommitTimeoutSeconds < 0 || req.MaxMembers < 0 {
		h.Error(w, http.StatusBadRequest, "timeout and max_members must be positive")
		return
	}

	orch, err := h.registry.CreateSquad(r.Context(), req.Name, req.ConsensusMode, req.CommitTimeoutSeconds, req.MaxMembers)
	if err != nil {
		h.DomainError(w, err)
		return
	}

	h.JSON(w, http.StatusCreated, orch.Squad())
}

// ListSquads handles GET /api/squads.
func (h *Handler) ListSquads(w http.ResponseWriter, r *http.Request) {
	squads, err := h.registry.List(r.Context())
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"squads": squads})
}

// GetSquad handles GET /api/squads/{id}.
func (h *Handler) GetSquad(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}
	h.JSON(w, http.StatusOK, orch.Squad())
}

// DeleteSquad handles DELETE /api/squads/{id}.
func (h *Handler) DeleteSquad(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}
	if err := h.registry.Delete(r.Context(), orch.Squad().ID); err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
