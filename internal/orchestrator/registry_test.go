package orchestrator

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

func newTestRegistry(t *testing.T) (*Registry, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	r := NewRegistry(st, zerolog.Nop(), Defaults{
		ConsensusMode:        models.ModeMajority,
		CommitTimeoutSeconds: 300,
		MaxMembers:           10,
	})
	t.Cleanup(r.Close)
	return r, st
}

func TestCreateSquadAppliesDefaults(t *testing.T) {
	r, _ := newTestRegistry(t)

	orch, err := r.CreateSquad(context.Background(), "platform", "", 0, 0)
	require.NoError(t, err)

	squad := orch.Squad()
	assert.NotEmpty(t, squad.ID)
	assert.Equal(t, models.ModeMajority, squad.ConsensusMode)
	assert.Equal(t, 300, squad.CommitTimeoutSeconds)
	assert.Equal(t, 10, squad.MaxMembers)
}

func TestCreateSquadRejectsInvalidMode(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.CreateSquad(context.Background(), "platform", "dictatorship", 0, 0)
	assert.Error(t, err)
}

func TestGetReturnsSameOrchestrator(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.CreateSquad(ctx, "platform", models.ModeUnanimous, 60, 3)
	require.NoError(t, err)

	got, err := r.Get(ctx, created.Squad().ID)
	require.NoError(t, err)
	assert.Same(t, created, got)
}

func TestGetRevivesSquadFromStore(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	created, err := r.CreateSquad(ctx, "platform", models.ModeUnanimous, 60, 3)
	require.NoError(t, err)
	id := created.Squad().ID

	// Simulate a restart: a fresh registry over the same store.
	revived := NewRegistry(st, zerolog.Nop(), Defaults{})
	t.Cleanup(revived.Close)

	orch, err := revived.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.ModeUnanimous, orch.Squad().ConsensusMode)
	assert.Equal(t, 3, orch.Squad().MaxMembers)
}

func TestGetUnknownSquad(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSquadNotFound)
}

func TestDeleteExpiresPendingProposalsAndClosesStreams(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()

	orch, err := r.CreateSquad(ctx, "platform", models.ModeMajority, 300, 10)
	require.NoError(t, err)
	id := orch.Squad().ID

	_, err = orch.Join(ctx, "alice", models.SenderAgent, "test-model")
	require.NoError(t, err)
	proposal, err := orch.Propose(ctx, "alice", "retire the old deployment script")
	require.NoError(t, err)

	sub := orch.Subscribe(64)

	require.NoError(t, r.Delete(ctx, id))

	// Subscriber channel drains buffered events and then closes.
	for range sub.Events() {
	}

	stored, err := st.GetProposal(ctx, id, proposal.ID)
	require.NoError(t, err)
	if stored != nil {
		// Proposal rows are removed with the squad by stores that cascade;
		// if kept, the status must have been flipped before removal.
		assert.Equal(t, models.StatusExpired, stored.Status)
	}

	squad, err := st.GetSquad(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, squad)

	_, err = r.Get(ctx, id)
	assert.ErrorIs(t, err, ErrSquadNotFound)
}
