package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalehHamed1978UAE/squadbot/internal/metrics"
	"github.com/SalehHamed1978UAE/squadbot/internal/models"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

// Defaults applied when a create request leaves a squad setting unset.
type Defaults struct {
	ConsensusMode        models.ConsensusMode
	CommitTimeoutSeconds int
	MaxMembers           int
	ConvergenceWindow    int
}

// Registry manages the set of live squads. Squad state is fully isolated:
// each squad gets its own orchestrator, broadcaster and timers, created
// lazily on first use and torn down on deletion.
type Registry struct {
	store    store.DataStore
	logger   zerolog.Logger
	defaults Defaults

	mu     sync.Mutex
	squads map[string]*Orchestrator
}

// NewRegistry creates a registry backed by the given store.
func NewRegistry(st store.DataStore, logger zerolog.Logger, defaults Defaults) *Registry {
	if defaults.ConsensusMode == "" {
		defaults.ConsensusMode = models.ModeMajority
	}
	if defaults.CommitTimeoutSeconds <= 0 {
		defaults.CommitTimeoutSeconds = 300
	}
	if defaults.MaxMembers <= 0 {
		defaults.MaxMembers = 10
	}
	return &Registry{
		store:    st,
		logger:   logger,
		defaults: defaults,
		squads:   make(map[string]*Orchestrator),
	}
}

// CreateSquad creates and registers a new squad. Zero values in the
// request fall back to the registry defaults.
func (r *Registry) CreateSquad(ctx context.Context, name string, mode models.ConsensusMode, timeoutSeconds, maxMembers int) (*Orchestrator, error) {
	if mode == "" {
		mode = r.defaults.ConsensusMode
	}
	if err := mode.Validate(); err != nil {
		return nil, err
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = r.defaults.CommitTimeoutSeconds
	}
	if maxMembers <= 0 {
		maxMembers = r.defaults.MaxMembers
	}

	squad := models.Squad{
		ID:                   models.NewID(),
		Name:                 name,
		ConsensusMode:        mode,
		CommitTimeoutSeconds: timeoutSeconds,
		MaxMembers:           maxMembers,
		CreatedAt:            time.Now().UTC(),
	}
	if err := r.store.CreateSquad(ctx, &squad); err != nil {
		return nil, fmt.Errorf("create squad: %w", err)
	}

	orch := New(squad, r.store, r.logger, r.defaults.ConvergenceWindow)

	r.mu.Lock()
	r.squads[squad.ID] = orch
	r.mu.Unlock()

	metrics.SquadsCreated.Inc()
	r.logger.Info().
		Str("squad_id", squad.ID).
		Str("name", name).
		Str("mode", string(mode)).
		Msg("squad created")
	return orch, nil
}

// Get returns the orchestrator for a squad, reviving it from the store if
// the process restarted since the squad was created.
func (r *Registry) Get(ctx context.Context, squadID string) (*Orchestrator, error) {
	r.mu.Lock()
	if orch, ok := r.squads[squadID]; ok {
		r.mu.Unlock()
		return orch, nil
	}
	r.mu.Unlock()

	squad, err := r.store.GetSquad(ctx, squadID)
	if err != nil {
		return nil, fmt.Errorf("lookup squad: %w", err)
	}
	if squad == nil {
		return nil, fmt.Errorf("%w: %q", ErrSquadNotFound, squadID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another request may have revived it while we read the store.
	if orch, ok := r.squads[squadID]; ok {
		return orch, nil
	}
	orch := New(*squad, r.store, r.logger, r.defaults.ConvergenceWindow)
	r.squads[squadID] = orch
	return orch, nil
}

// List returns all squads.
func (r *Registry) List(ctx context.Context) ([]models.Squad, error) {
	return r.store.ListSquads(ctx)
}

// Delete tears down a squad: pending proposals are marked expired, the
// expiry timers cancelled, all event subscribers dropped, and the squad's
// records removed from the store.
func (r *Registry) Delete(ctx context.Context, squadID string) error {
	orch, err := r.Get(ctx, squadID)
	if err != nil {
		return err
	}

	pending, err := r.store.GetPendingProposals(ctx, squadID)
	if err != nil {
		return fmt.Errorf("list pending proposals: %w", err)
	}
	now := time.Now().UTC()
	for _, p := range pending {
		if err := r.store.UpdateProposalStatus(ctx, squadID, p.ID, models.StatusExpired, now); err != nil {
			return fmt.Errorf("expire proposal %s: %w", p.ID, err)
		}
		metrics.ProposalsResolved.WithLabelValues(string(models.StatusExpired)).Inc()
	}

	orch.Close()

	r.mu.Lock()
	delete(r.squads, squadID)
	r.mu.Unlock()

	if err := r.store.DeleteSquad(ctx, squadID); err != nil {
		return fmt.Errorf("delete squad: %w", err)
	}

	metrics.SquadsDeleted.Inc()
	r.logger.Info().Str("squad_id", squadID).Msg("squad deleted")
	return nil
}

// Close tears down all live orchestrators without deleting stored state.
// Used on server shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, orch := range r.squads {
		orch.Close()
		delete(r.squads, id)
	}
}
