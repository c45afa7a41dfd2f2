package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

func newTestOrchestrator(t *testing.T, mode models.ConsensusMode, timeoutSeconds int) *Orchestrator {
	t.Helper()
	squad := models.Squad{
		ID:                   models.NewID(),
		Name:                 "test-squad",
		ConsensusMode:        mode,
		CommitTimeoutSeconds: timeoutSeconds,
		MaxMembers:           5,
		CreatedAt:            time.Now().UTC(),
	}
	orch := New(squad, store.NewMemoryStore(), zerolog.Nop(), 20)
	t.Cleanup(orch.Close)
	return orch
}

func join(t *testing.T, orch *Orchestrator, name string) *models.Member {
	t.Helper()
	m, err := orch.Join(context.Background(), name, models.SenderAgent, "test-model")
	require.NoError(t, err)
	return m
}

func TestJoinFirstMemberIsAdmin(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)

	alice := join(t, orch, "alice")
	bob := join(t, orch, "bob")

	assert.True(t, alice.IsAdmin)
	assert.False(t, bob.IsAdmin)

	messages, err := orch.ReadMessages(context.Background(), 0, 50)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.SenderSystem, messages[0].SenderKind)
	assert.Contains(t, messages[0].Content, "**alice** joined the squad")
	assert.Contains(t, messages[1].Content, "**bob** joined the squad")
}

func TestJoinRejectsDuplicateName(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	join(t, orch, "alice")

	_, err := orch.Join(context.Background(), "alice", models.SenderAgent, "other-model")
	assert.ErrorIs(t, err, ErrNameConflict)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		join(t, orch, name)
	}

	_, err := orch.Join(context.Background(), "f", models.SenderAgent, "")
	assert.ErrorIs(t, err, ErrSquadFull)
}

func TestLeaveAndRejoinCreatesNewMember(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	ctx := context.Background()

	first := join(t, orch, "alice")
	require.NoError(t, orch.Leave(ctx, "alice"))

	members, err := orch.Members(ctx)
	require.NoError(t, err)
	assert.Empty(t, members)

	second := join(t, orch, "alice")
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLeaveUnknownMember(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	err := orch.Leave(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestSendRequiresActiveMember(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	_, err := orch.Send(context.Background(), "ghost", "hello", models.SenderAgent, "")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestEventsArriveInMutationOrder(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	ctx := context.Background()

	sub := orch.Subscribe(16)
	defer sub.Close()

	join(t, orch, "alice")
	_, err := orch.Send(ctx, "alice", "first post", models.SenderAgent, "")
	require.NoError(t, err)

	var events []Event
	for len(events) < 3 {
		select {
		case e := <-sub.Events():
			events = append(events, e)
		case <-time.After(time.Second):
			t.Fatalf("timed out after %d events", len(events))
		}
	}

	assert.Equal(t, EventMemberJoined, events[0].Type)
	assert.Equal(t, EventNewMessage, events[1].Type) // join announcement
	assert.Equal(t, EventNewMessage, events[2].Type)
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
}

func TestMajorityVoteCommitsContext(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")
	join(t, orch, "carol")

	proposal, err := orch.Propose(ctx, "alice", "we will use postgres in production")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, proposal.Status)
	assert.Equal(t, models.OriginAgentNominated, proposal.Origin)

	_, outcome, err := orch.Vote(ctx, "alice", proposal.ID, models.ChoiceApprove, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, outcome.Status)

	_, outcome, err = orch.Vote(ctx, "bob", proposal.ID, models.ChoiceApprove, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, outcome.Status)

	snap, err := orch.Context(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, 1, snap.Version)
	assert.Equal(t, "we will use postgres in production", snap.Entries[0].Content)
	assert.Equal(t, proposal.ID, snap.Entries[0].CommitID)
	assert.Contains(t, snap.Summary, "[v1]")

	// The race is over; a late vote bounces.
	_, _, err = orch.Vote(ctx, "carol", proposal.ID, models.ChoiceApprove, false)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestHumanVetoOverridesApprovals(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeUnanimous, 300)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")

	proposal, err := orch.Propose(ctx, "alice", "ship it friday without review")
	require.NoError(t, err)

	_, _, err = orch.Vote(ctx, "alice", proposal.ID, models.ChoiceApprove, false)
	require.NoError(t, err)

	_, outcome, err := orch.Vote(ctx, "bob", proposal.ID, models.ChoiceReject, true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, outcome.Status)
	assert.Contains(t, outcome.Reason, "human veto by bob")

	snap, err := orch.Context(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}

func TestVoteUpsertReplacesPriorVote(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeUnanimous, 300)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")

	proposal, err := orch.Propose(ctx, "alice", "adopt trunk based development")
	require.NoError(t, err)

	_, _, err = orch.Vote(ctx, "alice", proposal.ID, models.ChoiceAbstain, false)
	require.NoError(t, err)

	// Changing their mind must not double count.
	_, outcome, err := orch.Vote(ctx, "alice", proposal.ID, models.ChoiceApprove, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, outcome.Status)

	pending, err := orch.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].VoteSummary.Total)
	assert.Equal(t, 1, pending[0].VoteSummary.Approvals)

	_, outcome, err = orch.Vote(ctx, "bob", proposal.ID, models.ChoiceApprove, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, outcome.Status)
}

func TestVoteAppendsNoMessage(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")
	join(t, orch, "carol")

	proposal, err := orch.Propose(ctx, "alice", "switch the queue to redis streams")
	require.NoError(t, err)

	before, err := orch.ReadMessages(ctx, 0, 50)
	require.NoError(t, err)

	_, _, err = orch.Vote(ctx, "bob", proposal.ID, models.ChoiceApprove, false)
	require.NoError(t, err)

	after, err := orch.ReadMessages(ctx, 0, 50)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestVoteOnUnknownProposal(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	join(t, orch, "alice")

	_, _, err := orch.Vote(context.Background(), "alice", "nope", models.ChoiceApprove, false)
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func TestNoObjectionCommitsOnTimeout(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeNoObjection, 0)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")

	proposal, err := orch.Propose(ctx, "alice", "freeze the public api surface")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, err := orch.Context(ctx)
		return err == nil && snap.Version == 1
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := orch.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	snap, err := orch.Context(ctx)
	require.NoError(t, err)
	assert.Equal(t, proposal.Content, snap.Entries[0].Content)
}

func TestNoObjectionRejectBeatsTimeout(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeNoObjection, 60)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")

	proposal, err := orch.Propose(ctx, "alice", "drop the legacy import path")
	require.NoError(t, err)

	_, outcome, err := orch.Vote(ctx, "bob", proposal.ID, models.ChoiceReject, false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, outcome.Status)

	snap, err := orch.Context(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}

func TestConvergenceSynthesizesProposal(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 60)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")
	join(t, orch, "carol")

	_, err := orch.Send(ctx, "alice", "We should use Postgres for storage", models.SenderAgent, "")
	require.NoError(t, err)

	pending, err := orch.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// Same claim from a second distinct voice reaches quorum.
	_, err = orch.Send(ctx, "bob", "we should use postgres for storage!", models.SenderAgent, "")
	require.NoError(t, err)

	pending, err = orch.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.OriginOrchestratorDetected, pending[0].Origin)
	assert.Equal(t, models.ModeNoObjection, pending[0].ConsensusMode)
	assert.Equal(t, "We should use Postgres for storage", pending[0].Content)

	// Repeating the claim must not raise a second proposal.
	_, err = orch.Send(ctx, "carol", "we should use postgres for storage", models.SenderAgent, "")
	require.NoError(t, err)

	pending, err = orch.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestStatusSnapshot(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	ctx := context.Background()
	join(t, orch, "alice")
	join(t, orch, "bob")

	_, err := orch.Propose(ctx, "alice", "keep the changelog handwritten")
	require.NoError(t, err)

	status, err := orch.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.MemberCount)
	assert.Equal(t, 0, status.ContextVersion)
	assert.Equal(t, 1, status.PendingCommits)
	assert.Equal(t, models.ModeMajority, status.ConsensusMode)

	snap, err := orch.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Status.MemberCount)
	assert.Len(t, snap.Pending, 1)
	assert.NotEmpty(t, snap.Messages)
}

func TestClosedOrchestratorRefusesWrites(t *testing.T) {
	orch := newTestOrchestrator(t, models.ModeMajority, 300)
	orch.Close()

	_, err := orch.Join(context.Background(), "alice", models.SenderAgent, "")
	assert.ErrorIs(t, err, ErrSquadClosed)
}
