package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/SalehHamed1978UAE/squadbot/internal/orchestrator"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

// Member and squad names: printable, 1-50 chars, no slashes.
var nameRegex = regexp.MustCompile(`^[^/\x00-\x1f]{1,50}$`)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	registry *orchestrator.Registry
	store    store.DataStore
	logger   zerolog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(registry *orchestrator.Registry, st store.DataStore, logger zerolog.Logger) *Handler {
	return &Handler{registry: registry, store: st, logger: logger}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// DomainError maps orchestrator errors to HTTP status codes.
func (h *Handler) DomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrSquadNotFound),
		errors.Is(err, orchestrator.ErrMemberNotFound),
		errors.Is(err, orchestrator.ErrProposalNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, orchestrator.ErrNameConflict),
		errors.Is(err, orchestrator.ErrAlreadyResolved),
		errors.Is(err, orchestrator.ErrSquadFull):
		h.Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrSquadClosed):
		h.Error(w, http.StatusGone, err.Error())
	default:
		h.logger.Error().Err(err).Msg("request failed")
		h.Error(w, http.StatusInternalServerError, "internal error")
	}
}

// squad resolves the {id} URL parameter to a live orchestrator, writing
// the error response itself on failure.
func (h *Handler) squad(w http.ResponseWriter, r *http.Request) *orchestrator.Orchestrator {
	id := chi.URLParam(r, "id")
	orch, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.DomainError(w, err)
		return nil
	}
	return orch
}

// sanitizeName trims and limits a name to 50 characters, removing control
// characters.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)

	// Remove control characters
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if len(name) > 50 {
		name = name[:50]
	}

	return name
}
