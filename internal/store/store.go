package store

import (
	"context"
	"time"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// DataStore is the persistence contract for all squad data.
// MemoryStore, SQLiteStore and PostgresStore implement this interface.
//
// Not-found lookups return (nil, nil); callers are expected to check for
// nil before use. Write-path atomicity (context version assignment, vote
// upsert) is guaranteed by the orchestrator's per-squad serialization, so
// implementations only need statement-level atomicity.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Squad operations
	CreateSquad(ctx context.Context, squad *models.Squad) error
	GetSquad(ctx context.Context, id string) (*models.Squad, error)
	ListSquads(ctx context.Context) ([]models.Squad, error)
	// DeleteSquad removes the squad and all child entities.
	DeleteSquad(ctx context.Context, id string) error

	// Member operations
	AddMember(ctx context.Context, m *models.Member) error
	GetMember(ctx context.Context, squadID, id string) (*models.Member, error)
	GetActiveMemberByName(ctx context.Context, squadID, name string) (*models.Member, error)
	GetActiveMembers(ctx context.Context, squadID string) ([]models.Member, error)
	// CountMembers counts all members ever added, active or not.
	CountMembers(ctx context.Context, squadID string) (int, error)
	DeactivateMember(ctx context.Context, squadID, id string) error

	// Message operations. AddMessage assigns ID (ULID), Timestamp and the
	// insertion sequence when unset.
	AddMessage(ctx context.Context, msg *models.Message) error
	// GetMessages returns messages ordered oldest-to-newest by
	// (timestamp, seq). since filters to Timestamp > since (Unix ms) when
	// non-zero.
	GetMessages(ctx context.Context, squadID string, since int64, limit int) ([]models.Message, error)

	// Canonical context operations. AddContextEntry assigns
	// version = previous max + 1 for the squad.
	AddContextEntry(ctx context.Context, e *models.ContextEntry) error
	GetContext(ctx context.Context, squadID string) ([]models.ContextEntry, error)
	GetContextVersion(ctx context.Context, squadID string) (int, error)

	// Commit proposal operations
	AddProposal(ctx context.Context, p *models.CommitProposal) error
	GetProposal(ctx context.Context, squadID, id string) (*models.CommitProposal, error)
	GetPendingProposals(ctx context.Context, squadID string) ([]models.CommitProposal, error)
	UpdateProposalStatus(ctx context.Context, squadID, id string, status models.CommitStatus, resolvedAt time.Time) error

	// Vote operations. UpsertVote replaces any prior vote by the same
	// voter on the same proposal.
	UpsertVote(ctx context.Context, v *models.Vote) error
	GetVotes(ctx context.Context, proposalID string) ([]models.Vote, error)
}
