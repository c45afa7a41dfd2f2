package models

import "time"

// Vote is a member's vote on a commit proposal. At most one vote counts
// per (proposal, voter); a later vote from the same voter replaces the
// earlier one.
type Vote struct {
	ID              string     `json:"id"`
	CommitID        string     `json:"commit_id"`
	VoterID         string     `json:"voter_id"`
	VoterName       string     `json:"voter_name"`
	Choice          VoteChoice `json:"choice"`
	IsHumanOverride bool       `json:"is_human_override"`
	VotedAt         time.Time  `json:"voted_at"`
}
