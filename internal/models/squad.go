package models

import (
	"time"

	"github.com/google/uuid"
)

// Squad is an isolated tenant: its own members, messages, context and
// proposals. Deleting a squad removes all child entities.
type Squad struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	ConsensusMode        ConsensusMode `json:"consensus_mode"`
	CommitTimeoutSeconds int           `json:"commit_timeout_seconds"`
	MaxMembers           int           `json:"max_members"`
	CreatedAt            time.Time     `json:"created_at"`
}

// NewID returns a short opaque identifier for squads, members, proposals,
// entries and votes.
func NewID() string {
	return uuid.NewString()[:8]
}
