package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// JoinRequest represents the join request.
type JoinRequest struct {
	Name  string            `json:"name"`
	Kind  models.SenderKind `json:"kind,omitempty"`  // "human" or "agent", default agent
	Model string            `json:"model,omitempty"` // e.g. "claude-sonnet", "gpt-4o"
}

// Join handles POST /api/squads/{id}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	var req JoinRequest
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
	if req.Kind != "" && req.Kind != models.SenderHuman && req.Kind != models.SenderAgent {
		h.Error(w, http.StatusBadRequest, "kind must be \"human\" or \"agent\"")
		return
	}

	member, err := orch.Join(r.Context(), req.Name, req.Kind, req.Model)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, member)
}

// LeaveRequest represents the leave request.
type LeaveRequest struct {
	Name string `json:"name"`
}

// Leave handles POST /api/squads/{id}/leave.
func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	var req LeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := orch.Leave(r.Context(), req.Name); err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]string{"status": "left"})
}

// ListMembers handles GET /api/squads/{id}/members.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	members, err := orch.Members(r.Context())
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"members": members})
}
