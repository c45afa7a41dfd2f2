package orchestrator

import (
	"fmt"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// Outcome is the result of a consensus evaluation.
type Outcome struct {
	Status models.CommitStatus
	Reason string
}

// Tally summarizes the votes on a proposal.
type Tally struct {
	Approvals   int `json:"approvals"`
	Rejections  int `json:"rejections"`
	Abstentions int `json:"abstentions"`
	Total       int `json:"total"`
}

// CountVotes tallies votes by choice.
func CountVotes(votes []models.Vote) Tally {
	t := Tally{Total: len(votes)}
	for _, v := range votes {
		switch v.Choice {
		case models.ChoiceApprove:
			t.Approvals++
		case models.ChoiceReject:
			t.Rejections++
		case models.ChoiceAbstain:
			t.Abstentions++
		}
	}
	return t
}

// Evaluate decides whether a proposal resolves given the current votes.
// It is a pure function: the outcome depends only on its arguments, never
// on vote arrival timing.
//
// activeMembers is the count of active members at call time. Members who
// left after voting keep their counted vote but are not part of the
// denominator.
//
// timeoutElapsed marks the "no further votes arriving" evaluation run by
// the expiry scheduler for no-objection proposals.
func Evaluate(mode models.ConsensusMode, timeoutElapsed bool, activeMembers int, votes []models.Vote) Outcome {
	// A reject flagged as a human override wins unconditionally,
	// independent of mode or any other votes.
	for _, v := range votes {
		if v.IsHumanOverride && v.Choice == models.ChoiceReject {
			return Outcome{Status: models.StatusRejected, Reason: "human veto by " + v.VoterName}
		}
	}

	t := CountVotes(votes)

	switch mode {
	case models.ModeUnanimous:
		if t.Rejections > 0 {
			return Outcome{Status: models.StatusRejected, Reason: fmt.Sprintf("unanimous required, got %d rejection(s)", t.Rejections)}
		}
		if activeMembers > 0 && t.Approvals >= activeMembers {
			return Outcome{Status: models.StatusApproved, Reason: "unanimous"}
		}

	case models.ModeMajority:
		threshold := activeMembers/2 + 1
		if t.Approvals >= threshold {
			// Early majority: resolve before the remaining votes arrive.
			return Outcome{Status: models.StatusApproved, Reason: fmt.Sprintf("majority (%d/%d)", t.Approvals, activeMembers)}
		}
		if t.Total >= activeMembers {
			return Outcome{Status: models.StatusRejected, Reason: fmt.Sprintf("no majority (%d/%d approved)", t.Approvals, activeMembers)}
		}

	case models.ModeNoObjection:
		if t.Rejections > 0 {
			return Outcome{Status: models.StatusRejected, Reason: "objection raised"}
		}
		if timeoutElapsed {
			return Outcome{Status: models.StatusApproved, Reason: "no objections within timeout"}
		}
	}

	return Outcome{Status: models.StatusPending}
}
