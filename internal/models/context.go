package models

import "time"

// ContextEntry is a single committed entry in the canonical context.
// Versions are strictly increasing and gapless per squad, starting at 1.
type ContextEntry struct {
	ID          string       `json:"id"`
	SquadID     string       `json:"squad_id"`
	Content     string       `json:"content"`
	Version     int          `json:"version"`
	CommittedAt time.Time    `json:"committed_at"`
	CommittedBy string       `json:"committed_by"`
	Origin      CommitOrigin `json:"origin"`
	CommitID    string       `json:"commit_id"` // source proposal
}
