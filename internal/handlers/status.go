package handlers

import "net/http"

// Status handles GET /api/squads/{id}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	status, err := orch.Status(r.Context())
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, status)
}
