package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

const maxMessageBytes = 4096

// SendMessageRequest represents the send message request.
type SendMessageRequest struct {
	Sender  string            `json:"sender"`
	Content string            `json:"content"`
	Kind    models.SenderKind `json:"kind,omitempty"` // "human" or "agent", default agent
	ReplyTo string            `json:"reply_to,omitempty"`
}

// SendMessage handles POST /api/squads/{id}/send.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Sender == "" {
		h.Error(w, http.StatusBadRequest, "sender is required")
		return
	}
	if req.Content == "" {
		h.Error(w, http.StatusBadRequest, "content is required")
		return
	}
	if len(req.Content) > maxMessageBytes {
		h.Error(w, http.StatusBadRequest, "content exceeds 4KB limit")
		return
	}
	if req.Kind != "" && req.Kind != models.SenderHuman && req.Kind != models.SenderAgent {
		h.Error(w, http.StatusBadRequest, "kind must be \"human\" or \"agent\"")
		return
	}

	msg, err := orch.Send(r.Context(), req.Sender, req.Content, req.Kind, req.ReplyTo)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusCreated, msg)
}

// GetMessages handles GET /api/squads/{id}/messages?since=<ms>&limit=<n>.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	orch := h.squad(w, r)
	if orch == nil {
		return
	}

	var since int64
	if s := r.URL.Query().Get("since"); s != "" {
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil || v < 0 {
			h.Error(w, http.StatusBadRequest, "since must be a Unix millisecond timestamp")
			return
		}
		since = v
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 || v > 500 {
			h.Error(w, http.StatusBadRequest, "limit must be 1-500")
			return
		}
		limit = v
	}

	messages, err := orch.ReadMessages(r.Context(), since, limit)
	if err != nil {
		h.DomainError(w, err)
		return
	}
	h.JSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
