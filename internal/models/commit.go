package models

import "time"

// CommitProposal is a candidate fact submitted for voting before it can
// become a context entry.
type CommitProposal struct {
	ID             string        `json:"id"`
	SquadID        string        `json:"squad_id"`
	Content        string        `json:"content"`
	ProposedBy     string        `json:"proposed_by"` // member ID or "orchestrator"
	ProposedByName string        `json:"proposed_by_name"`
	Origin         CommitOrigin  `json:"origin"`
	Status         CommitStatus  `json:"status"`
	ConsensusMode  ConsensusMode `json:"consensus_mode"`
	TimeoutSeconds int           `json:"timeout_seconds"`
	CreatedAt      time.Time     `json:"created_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
}
