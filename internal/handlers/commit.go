package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// ProposeRequest represents the commit proposal request.
type ProposeRequest struct {
	Proposer string `json:"proposer"`
	Content  string `json:"content"`
}

// Propose handles POST /api/squads/{id}/propose.
func (h *Handler) Propose(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Proposer == "" {
		h.Error(w, http.StatusBadRequest, "proposer is required")
		return
	}
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	proposal, err := orch.Propose(r.Context(), req.Proposer, req.Content)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, proposal)
}

// VoteRequest represents the vote request.
type VoteRequest struct {
	Voter           string            `json:"voter"`
	CommitID        string            `json:"commit_id"`
	Choice          models.VoteChoice `json:"choice"`
	IsHumanOverride bool              `json:"is_human_override,omitempty"`
}

// VoteResponse pairs the recorded vote with the consensus outcome it
// triggered.
type VoteResponse struct {
	Vote   *models.Vote        `json:"vote"`
	Status models.CommitStatus `json:"status"`
	Reason string              `json:"reason,omitempty"`
}

// Vote handles POST /api/squads/{id}/vote.
func (h *Handler) Vote(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Voter == "" {
		h.Error(w, http.StatusBadRequest, "voter is required")
		return
	}
	if req.CommitID == "" {
		h.Error(w, http.StatusBadRequest, "commit_id is required")
		return
	}
	if err := req.Choice.Validate(); err != nil {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	vote, outcome, err := orch.Vote(r.Context(), req.Voter, req.CommitID, req.Choice, req.IsHumanOverride)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, VoteResponse{Vote: vote, Status: outcome.Status, Reason: outcome.Reason})
}

// Pending handles GET /api/squads/{id}/pending.
func (h *Handler) Pending(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	pending, err := orch.Pending(r.Context())
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"pending_commits": pending})
}
