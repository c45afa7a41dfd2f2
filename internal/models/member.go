package models

import "time"

// Member represents a human + AI agent pair in a squad.
// Members are deactivated on leave, never deleted: votes and messages
// referencing them must stay resolvable.
type Member struct {
	ID       string     `json:"id"`
	SquadID  string     `json:"squad_id"`
	Name     string     `json:"name"`
	Kind     SenderKind `json:"kind"` // human or agent
	Model    string     `json:"model"`
	IsAdmin  bool       `json:"is_admin"`
	IsActive bool       `json:"is_active"`
	JoinedAt time.Time  `json:"joined_at"`
}
