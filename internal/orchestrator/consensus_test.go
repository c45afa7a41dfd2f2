package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

func vote(voter string, choice models.VoteChoice, override bool) models.Vote {
	return models.Vote{
		ID:              models.NewID(),
		CommitID:        "c1",
		VoterID:         voter,
		VoterName:       voter,
		Choice:          choice,
		IsHumanOverride: override,
	}
}

func TestEvaluate(t *testing.T) {
	testCases := []struct {
		name           string
		mode           models.ConsensusMode
		timeoutElapsed bool
		activeMembers  int
		votes          []models.Vote
		expected       models.CommitStatus
	}{
		{
			name:          "unanimous all approve",
			mode:          models.ModeUnanimous,
			activeMembers: 3,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
				vote("b", models.ChoiceApprove, false),
				vote("c", models.ChoiceApprove, false),
			},
			expected: models.StatusApproved,
		},
		{
			name:          "unanimous single reject",
			mode:          models.ModeUnanimous,
			activeMembers: 3,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
				vote("b", models.ChoiceReject, false),
			},
			expected: models.StatusRejected,
		},
		{
			name:          "unanimous abstention blocks approval",
			mode:          models.ModeUnanimous,
			activeMembers: 3,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
				vote("b", models.ChoiceApprove, false),
				vote("c", models.ChoiceAbstain, false),
			},
			expected: models.StatusPending,
		},
		{
			name:          "majority early approval with three of five",
			mode:          models.ModeMajority,
			activeMembers: 5,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
				vote("b", models.ChoiceApprove, false),
				vote("c", models.ChoiceApprove, false),
			},
			expected: models.StatusApproved,
		},
		{
			name:          "majority still short",
			mode:          models.ModeMajority,
			activeMembers: 5,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
				vote("b", models.ChoiceApprove, false),
			},
			expected: models.StatusPending,
		},
		{
			name:          "majority all voted without threshold",
			mode:          models.ModeMajority,
			activeMembers: 4,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
				vote("b", models.ChoiceApprove, false),
				vote("c", models.ChoiceReject, false),
				vote("d", models.ChoiceAbstain, false),
			},
			expected: models.StatusRejected,
		},
		{
			name:          "majority two member squad needs both",
			mode:          models.ModeMajority,
			activeMembers: 2,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
			},
			expected: models.StatusPending,
		},
		{
			name:          "human veto beats four approvals",
			mode:          models.ModeMajority,
			activeMembers: 5,
			votes: []models.Vote{
				vote("a", models.ChoiceApprove, false),
				vote("b", models.ChoiceApprove, false),
				vote("c", models.ChoiceApprove, false),
				vote("d", models.ChoiceApprove, false),
				vote("e", models.ChoiceReject, true),
			},
			expected: models.StatusRejected,
		},
		{
			name:          "human veto in no objection mode",
			mode:          models.ModeNoObjection,
			activeMembers: 3,
			votes: []models.Vote{
				vote("a", models.ChoiceReject, true),
			},
			expected: models.StatusRejected,
		},
		{
			name:          "no objection waits before timeout",
			mode:          models.ModeNoObjection,
			activeMembers: 3,
			votes:         nil,
			expected:      models.StatusPending,
		},
		{
			name:           "no objection approves on timeout",
			mode:           models.ModeNoObjection,
			timeoutElapsed: true,
			activeMembers:  3,
			votes:          nil,
			expected:       models.StatusApproved,
		},
		{
			name:           "no objection approves on timeout despite abstentions",
			mode:           models.ModeNoObjection,
			timeoutElapsed: true,
			activeMembers:  3,
			votes: []models.Vote{
				vote("a", models.ChoiceAbstain, false),
			},
			expected: models.StatusApproved,
		},
		{
			name:          "no objection plain reject resolves immediately",
			mode:          models.ModeNoObjection,
			activeMembers: 3,
			votes: []models.Vote{
				vote("a", models.ChoiceReject, false),
			},
			expected: models.StatusRejected,
		},
		{
			name:          "unanimous empty squad stays pending",
			mode:          models.ModeUnanimous,
			activeMembers: 0,
			votes:         nil,
			expected:      models.StatusPending,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			outcome := Evaluate(tc.mode, tc.timeoutElapsed, tc.activeMembers, tc.votes)
			assert.Equal(t, tc.expected, outcome.Status)
			if outcome.Status != models.StatusPending {
				assert.NotEmpty(t, outcome.Reason)
			}
		})
	}
}

func TestEvaluateIsOrderIndependent(t *testing.T) {
	votes := []models.Vote{
		vote("a", models.ChoiceApprove, false),
		vote("b", models.ChoiceApprove, false),
		vote("c", models.ChoiceReject, true),
	}
	reversed := []models.Vote{votes[2], votes[1], votes[0]}

	first := Evaluate(models.ModeMajority, false, 3, votes)
	second := Evaluate(models.ModeMajority, false, 3, reversed)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, models.StatusRejected, first.Status)
}

func TestCountVotes(t *testing.T) {
	tally := CountVotes([]models.Vote{
		vote("a", models.ChoiceApprove, false),
		vote("b", models.ChoiceReject, false),
		vote("c", models.ChoiceAbstain, false),
		vote("d", models.ChoiceApprove, false),
	})
	assert.Equal(t, 2, tally.Approvals)
	assert.Equal(t, 1, tally.Rejections)
	assert.Equal(t, 1, tally.Abstentions)
	assert.Equal(t, 4, tally.Total)
}
