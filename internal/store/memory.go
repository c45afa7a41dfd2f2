package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// MemoryStore is an in-process DataStore. It backs the default development
// mode (STORE=memory) and the orchestrator unit tests.
type MemoryStore struct {
	mu        sync.RWMutex
	squads    map[string]models.Squad
	members   map[string][]models.Member       // squadID -> members in join order
	messages  map[string][]models.Message      // squadID -> messages in insertion order
	entries   map[string][]models.ContextEntry // squadID -> entries in version order
	proposals map[string][]models.CommitProposal
	votes     map[string][]models.Vote // proposalID -> votes
	seqs      map[string]int64         // squadID -> last message seq
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		squads:    make(map[string]models.Squad),
		members:   make(map[string][]models.Member),
		messages:  make(map[string][]models.Message),
		entries:   make(map[string][]models.ContextEntry),
		proposals: make(map[string][]models.CommitProposal),
		votes:     make(map[string][]models.Vote),
		seqs:      make(map[string]int64),
	}
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// CreateSquad stores a new squad.
func (s *MemoryStore) CreateSquad(ctx context.Context, squad *models.Squad) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.squads[squad.ID] = *squad
	return nil
}

// GetSquad retrieves a squad by ID, or (nil, nil) when absent.
func (s *MemoryStore) GetSquad(ctx context.Context, id string) (*models.Squad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	squad, ok := s.squads[id]
	if !ok {
		return nil, nil
	}
	return &squad, nil
}

// ListSquads returns all squads ordered by creation time.
func (s *MemoryStore) ListSquads(ctx context.Context) ([]models.Squad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Squad, 0, len(s.squads))
	for _, sq := range s.squads {
		out = append(out, sq)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteSquad removes the squad and every child entity.
func (s *MemoryStore) DeleteSquad(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.proposals[id] {
		delete(s.votes, p.ID)
	}
	delete(s.squads, id)
	delete(s.members, id)
	delete(s.messages, id)
	delete(s.entries, id)
	delete(s.proposals, id)
	delete(s.seqs, id)
	return nil
}

// AddMember appends a member record.
func (s *MemoryStore) AddMember(ctx context.Context, m *models.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.SquadID] = append(s.members[m.SquadID], *m)
	return nil
}

// GetMember retrieves a member by ID, active or not.
func (s *MemoryStore) GetMember(ctx context.Context, squadID, id string) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.members[squadID] {
		if s.members[squadID][i].ID == id {
			m := s.members[squadID][i]
			return &m, nil
		}
	}
	return nil, nil
}

// GetActiveMemberByName retrieves an active member by display name.
func (s *MemoryStore) GetActiveMemberByName(ctx context.Context, squadID, name string) (*models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.members[squadID] {
		m := s.members[squadID][i]
		if m.Name == name && m.IsActive {
			return &m, nil
		}
	}
	return nil, nil
}

// GetActiveMembers returns active members in join order.
func (s *MemoryStore) GetActiveMembers(ctx context.Context, squadID string) ([]models.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Member
	for _, m := range s.members[squadID] {
		if m.IsActive {
			out = append(out, m)
		}
	}
	return out, nil
}

// CountMembers counts all members ever added to the squad.
func (s *MemoryStore) CountMembers(ctx context.Context, squadID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members[squadID]), nil
}

// DeactivateMember flags a member inactive. The record is kept.
func (s *MemoryStore) DeactivateMember(ctx context.Context, squadID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.members[squadID] {
		if s.members[squadID][i].ID == id {
			s.members[squadID][i].IsActive = false
			return nil
		}
	}
	return nil
}

// AddMessage appends a message, assigning ID, timestamp and sequence.
func (s *MemoryStore) AddMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
	s.seqs[msg.SquadID]++
	msg.Seq = s.seqs[msg.SquadID]
	s.messages[msg.SquadID] = append(s.messages[msg.SquadID], *msg)
	return nil
}

// GetMessages returns messages oldest-to-newest, filtered and capped.
func (s *MemoryStore) GetMessages(ctx context.Context, squadID string, since int64, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Message
	for _, m := range s.messages[squadID] {
		if since > 0 && m.Timestamp <= since {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].Seq < out[j].Seq
	})
	if since == 0 && limit > 0 && len(out) > limit {
		// Without a cursor, the most recent window is the useful one.
		out = out[len(out)-limit:]
	} else if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddContextEntry appends an entry with version = previous max + 1.
func (s *MemoryStore) AddContextEntry(ctx context.Context, e *models.ContextEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Version = len(s.entries[e.SquadID]) + 1
	s.entries[e.SquadID] = append(s.entries[e.SquadID], *e)
	return nil
}

// GetContext returns all entries ordered by version.
func (s *MemoryStore) GetContext(ctx context.Context, squadID string) ([]models.ContextEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ContextEntry, len(s.entries[squadID]))
	copy(out, s.entries[squadID])
	return out, nil
}

// GetContextVersion returns the highest committed version, 0 when empty.
func (s *MemoryStore) GetContextVersion(ctx context.Context, squadID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[squadID]), nil
}

// AddProposal stores a new commit proposal.
func (s *MemoryStore) AddProposal(ctx context.Context, p *models.CommitProposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals[p.SquadID] = append(s.proposals[p.SquadID], *p)
	return nil
}

// GetProposal retrieves a proposal by ID, or (nil, nil) when absent.
func (s *MemoryStore) GetProposal(ctx context.Context, squadID, id string) (*models.CommitProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.proposals[squadID] {
		if s.proposals[squadID][i].ID == id {
			p := s.proposals[squadID][i]
			return &p, nil
		}
	}
	return nil, nil
}

// GetPendingProposals returns pending proposals in creation order.
func (s *MemoryStore) GetPendingProposals(ctx context.Context, squadID string) ([]models.CommitProposal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.CommitProposal
	for _, p := range s.proposals[squadID] {
		if p.Status == models.StatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

// UpdateProposalStatus finalizes a proposal.
func (s *MemoryStore) UpdateProposalStatus(ctx context.Context, squadID, id string, status models.CommitStatus, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.proposals[squadID] {
		if s.proposals[squadID][i].ID == id {
			s.proposals[squadID][i].Status = status
			t := resolvedAt
			s.proposals[squadID][i].ResolvedAt = &t
			return nil
		}
	}
	return nil
}

// UpsertVote records a vote, replacing any prior vote by the same voter.
func (s *MemoryStore) UpsertVote(ctx context.Context, v *models.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.votes[v.CommitID] {
		if s.votes[v.CommitID][i].VoterID == v.VoterID {
			s.votes[v.CommitID][i] = *v
			return nil
		}
	}
	s.votes[v.CommitID] = append(s.votes[v.CommitID], *v)
	return nil
}

// GetVotes returns all counted votes for a proposal.
func (s *MemoryStore) GetVotes(ctx context.Context, proposalID string) ([]models.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Vote, len(s.votes[proposalID]))
	copy(out, s.votes[proposalID])
	return out, nil
}
