package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnumValidation(t *testing.T) {
	assert.NoError(t, SenderHuman.Validate())
	assert.NoError(t, SenderOrchestrator.Validate())
	assert.Error(t, SenderKind("robot").Validate())

	assert.NoError(t, ChoiceApprove.Validate())
	assert.NoError(t, ChoiceAbstain.Validate())
	assert.Error(t, VoteChoice("maybe").Validate())

	assert.NoError(t, ModeUnanimous.Validate())
	assert.NoError(t, ModeNoObjection.Validate())
	assert.Error(t, ConsensusMode("dictatorship").Validate())

	assert.NoError(t, StatusPending.Validate())
	assert.NoError(t, StatusExpired.Validate())
	assert.Error(t, CommitStatus("stalled").Validate())
}

func TestCommitStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusApproved.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestNewID(t *testing.T) {
	a := NewID()
	b := NewID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
