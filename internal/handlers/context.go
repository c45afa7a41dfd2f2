package handlers

import "net/http"

// GetContext handles GET /api/squads/{id}/context.
func (h *Handler) GetContext(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	snap, err := orch.Context(r.Context())
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, snap)
}
