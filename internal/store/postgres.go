package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// PostgresStore handles PostgreSQL database operations. It is the
// production backend, selected when DATABASE_URL is configured.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. Statements run one at a
// time: pgx's extended protocol rejects multi-statement strings.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	stmts := []string{`
	CREATE TABLE IF NOT EXISTS squads (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		consensus_mode TEXT DEFAULT 'majority',
		commit_timeout_seconds INTEGER DEFAULT 300,
		max_members INTEGER DEFAULT 20,
		created_at TIMESTAMPTZ NOT NULL
	)`, `
	CREATE TABLE IF NOT EXISTS members (
		id TEXT NOT NULL,
		squad_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		model TEXT DEFAULT 'unknown',
		is_admin BOOLEAN DEFAULT FALSE,
		is_active BOOLEAN DEFAULT TRUE,
		joined_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (squad_id, id)
	)`, `
	CREATE TABLE IF NOT EXISTS messages (
		seq BIGSERIAL PRIMARY KEY,
		id TEXT UNIQUE NOT NULL,
		squad_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		sender_kind TEXT NOT NULL,
		content TEXT NOT NULL,
		ts BIGINT NOT NULL,
		reply_to TEXT
	)`, `
	CREATE TABLE IF NOT EXISTS context_entries (
		id TEXT PRIMARY KEY,
		squad_id TEXT NOT NULL,
		content TEXT NOT NULL,
		version INTEGER NOT NULL,
		committed_at TIMESTAMPTZ NOT NULL,
		committed_by TEXT NOT NULL,
		origin TEXT NOT NULL,
		commit_id TEXT NOT NULL,
		UNIQUE (squad_id, version)
	)`, `
	CREATE TABLE IF NOT EXISTS commit_proposals (
		id TEXT PRIMARY KEY,
		squad_id TEXT NOT NULL,
		content TEXT NOT NULL,
		proposed_by TEXT NOT NULL,
		proposed_by_name TEXT NOT NULL,
		origin TEXT NOT NULL,
		status TEXT DEFAULT 'pending',
		consensus_mode TEXT DEFAULT 'majority',
		timeout_seconds INTEGER DEFAULT 300,
		created_at TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ
	)`, `
	CREATE TABLE IF NOT EXISTS votes (
		id TEXT NOT NULL,
		commit_id TEXT NOT NULL,
		voter_id TEXT NOT NULL,
		voter_name TEXT NOT NULL,
		choice TEXT NOT NULL,
		is_human_override BOOLEAN DEFAULT FALSE,
		voted_at TIMESTAMPTZ NOT NULL,
		UNIQUE (commit_id, voter_id)
	)`,
		`CREATE INDEX IF NOT EXISTS idx_members_squad ON members(squad_id, is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_squad_ts ON messages(squad_id, ts)`,
		`CREATE INDEX IF NOT EXISTS idx_context_squad_version ON context_entries(squad_id, version)`,
		`CREATE INDEX IF NOT EXISTS idx_commits_squad_status ON commit_proposals(squad_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_votes_commit ON votes(commit_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateSquad stores a new squad.
func (s *PostgresStore) CreateSquad(ctx context.Context, squad *models.Squad) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO squads (id, name, consensus_mode, commit_timeout_seconds, max_members, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, squad.ID, squad.Name, string(squad.ConsensusMode), squad.CommitTimeoutSeconds, squad.MaxMembers, squad.CreatedAt)
	return err
}

// GetSquad retrieves a squad by ID.
func (s *PostgresStore) GetSquad(ctx context.Context, id string) (*models.Squad, error) {
	squad := &models.Squad{}
	var mode string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, consensus_mode, commit_timeout_seconds, max_members, created_at
		FROM squads WHERE id = $1
	`, id).Scan(&squad.ID, &squad.Name, &mode, &squad.CommitTimeoutSeconds, &squad.MaxMembers, &squad.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	squad.ConsensusMode = models.ConsensusMode(mode)
	return squad, nil
}

// ListSquads returns all squads ordered by creation time.
func (s *PostgresStore) ListSquads(ctx context.Context) ([]models.Squad, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, consensus_mode, commit_timeout_seconds, max_members, created_at
		FROM squads ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var squads []models.Squad
	for rows.Next() {
		var squad models.Squad
		var mode string
		if err := rows.Scan(&squad.ID, &squad.Name, &mode, &squad.CommitTimeoutSeconds, &squad.MaxMembers, &squad.CreatedAt); err != nil {
			return nil, err
		}
		squad.ConsensusMode = models.ConsensusMode(mode)
		squads = append(squads, squad)
	}
	return squads, rows.Err()
}

// DeleteSquad removes the squad and all child entities.
func (s *PostgresStore) DeleteSquad(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		`DELETE FROM votes WHERE commit_id IN (SELECT id FROM commit_proposals WHERE squad_id = $1)`,
		`DELETE FROM commit_proposals WHERE squad_id = $1`,
		`DELETE FROM context_entries WHERE squad_id = $1`,
		`DELETE FROM messages WHERE squad_id = $1`,
		`DELETE FROM members WHERE squad_id = $1`,
		`DELETE FROM squads WHERE id = $1`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AddMember appends a member record.
func (s *PostgresStore) AddMember(ctx context.Context, m *models.Member) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO members (id, squad_id, name, kind, model, is_admin, is_active, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, m.ID, m.SquadID, m.Name, string(m.Kind), m.Model, m.IsAdmin, m.IsActive, m.JoinedAt)
	return err
}

// GetMember retrieves a member by ID, active or not.
func (s *PostgresStore) GetMember(ctx context.Context, squadID, id string) (*models.Member, error) {
	return s.scanMemberRow(s.pool.QueryRow(ctx, `
		SELECT id, squad_id, name, kind, model, is_admin, is_active, joined_at
		FROM members WHERE squad_id = $1 AND id = $2
	`, squadID, id))
}

// GetActiveMemberByName retrieves an active member by display name.
func (s *PostgresStore) GetActiveMemberByName(ctx context.Context, squadID, name string) (*models.Member, error) {
	return s.scanMemberRow(s.pool.QueryRow(ctx, `
		SELECT id, squad_id, name, kind, model, is_admin, is_active, joined_at
		FROM members WHERE squad_id = $1 AND name = $2 AND is_active
	`, squadID, name))
}

func (s *PostgresStore) scanMemberRow(row pgx.Row) (*models.Member, error) {
	m := &models.Member{}
	var kind string
	err := row.Scan(&m.ID, &m.SquadID, &m.Name, &kind, &m.Model, &m.IsAdmin, &m.IsActive, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Kind = models.SenderKind(kind)
	return m, nil
}

// GetActiveMembers returns active members in join order.
func (s *PostgresStore) GetActiveMembers(ctx context.Context, squadID string) ([]models.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, squad_id, name, kind, model, is_admin, is_active, joined_at
		FROM members WHERE squad_id = $1 AND is_active
		ORDER BY joined_at ASC
	`, squadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var m models.Member
		var kind string
		if err := rows.Scan(&m.ID, &m.SquadID, &m.Name, &kind, &m.Model, &m.IsAdmin, &m.IsActive, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Kind = models.SenderKind(kind)
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers counts all members ever added to the squad.
func (s *PostgresStore) CountMembers(ctx context.Context, squadID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM members WHERE squad_id = $1`, squadID).Scan(&count)
	return count, err
}

// DeactivateMember flags a member inactive. The record is kept.
func (s *PostgresStore) DeactivateMember(ctx context.Context, squadID, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE members SET is_active = FALSE WHERE squad_id = $1 AND id = $2
	`, squadID, id)
	return err
}

// AddMessage stores a message, assigning ID, timestamp and sequence.
func (s *PostgresStore) AddMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}

	var replyTo *string
	if msg.ReplyTo != "" {
		replyTo = &msg.ReplyTo
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, squad_id, sender_id, sender_name, sender_kind, content, ts, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`, msg.ID, msg.SquadID, msg.SenderID, msg.SenderName, string(msg.SenderKind), msg.Content, msg.Timestamp, replyTo).Scan(&msg.Seq)
}

// GetMessages returns messages oldest-to-newest. Without a since cursor it
// returns the most recent limit messages.
func (s *PostgresStore) GetMessages(ctx context.Context, squadID string, since int64, limit int) ([]models.Message, error) {
	var rows pgx.Rows
	var err error
	if since > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT seq, id, squad_id, sender_id, sender_name, sender_kind, content, ts, reply_to
			FROM messages WHERE squad_id = $1 AND ts > $2
			ORDER BY ts ASC, seq ASC LIMIT $3
		`, squadID, since, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT seq, id, squad_id, sender_id, sender_name, sender_kind, content, ts, reply_to
			FROM messages WHERE squad_id = $1
			ORDER BY ts DESC, seq DESC LIMIT $2
		`, squadID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var kind string
		var replyTo *string
		if err := rows.Scan(&m.Seq, &m.ID, &m.SquadID, &m.SenderID, &m.SenderName, &kind, &m.Content, &m.Timestamp, &replyTo); err != nil {
			return nil, err
		}
		m.SenderKind = models.SenderKind(kind)
		if replyTo != nil {
			m.ReplyTo = *replyTo
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if since == 0 {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// AddContextEntry appends an entry with version = previous max + 1.
func (s *PostgresStore) AddContextEntry(ctx context.Context, e *models.ContextEntry) error {
	version, err := s.GetContextVersion(ctx, e.SquadID)
	if err != nil {
		return err
	}
	e.Version = version + 1

	_, err = s.pool.Exec(ctx, `
		INSERT INTO context_entries (id, squad_id, content, version, committed_at, committed_by, origin, commit_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, e.SquadID, e.Content, e.Version, e.CommittedAt, e.CommittedBy, string(e.Origin), e.CommitID)
	return err
}

// GetContext returns all entries ordered by version.
func (s *PostgresStore) GetContext(ctx context.Context, squadID string) ([]models.ContextEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, squad_id, content, version, committed_at, committed_by, origin, commit_id
		FROM context_entries WHERE squad_id = $1
		ORDER BY version ASC
	`, squadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.ContextEntry
	for rows.Next() {
		var e models.ContextEntry
		var origin string
		if err := rows.Scan(&e.ID, &e.SquadID, &e.Content, &e.Version, &e.CommittedAt, &e.CommittedBy, &origin, &e.CommitID); err != nil {
			return nil, err
		}
		e.Origin = models.CommitOrigin(origin)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetContextVersion returns the highest committed version, 0 when empty.
func (s *PostgresStore) GetContextVersion(ctx context.Context, squadID string) (int, error) {
	var version int
	err := s.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM context_entries WHERE squad_id = $1
	`, squadID).Scan(&version)
	return version, err
}

// AddProposal stores a new commit proposal.
func (s *PostgresStore) AddProposal(ctx context.Context, p *models.CommitProposal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO commit_proposals
		(id, squad_id, content, proposed_by, proposed_by_name, origin, status, consensus_mode, timeout_seconds, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.SquadID, p.Content, p.ProposedBy, p.ProposedByName, string(p.Origin), string(p.Status),
		string(p.ConsensusMode), p.TimeoutSeconds, p.CreatedAt, p.ResolvedAt)
	return err
}

// GetProposal retrieves a proposal by ID.
func (s *PostgresStore) GetProposal(ctx context.Context, squadID, id string) (*models.CommitProposal, error) {
	p, err := scanPgProposal(s.pool.QueryRow(ctx, `
		SELECT id, squad_id, content, proposed_by, proposed_by_name, origin, status, consensus_mode, timeout_seconds, created_at, resolved_at
		FROM commit_proposals WHERE squad_id = $1 AND id = $2
	`, squadID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

// GetPendingProposals returns pending proposals in creation order.
func (s *PostgresStore) GetPendingProposals(ctx context.Context, squadID string) ([]models.CommitProposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, squad_id, content, proposed_by, proposed_by_name, origin, status, consensus_mode, timeout_seconds, created_at, resolved_at
		FROM commit_proposals WHERE squad_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`, squadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []models.CommitProposal
	for rows.Next() {
		p, err := scanPgProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

func scanPgProposal(row pgx.Row) (*models.CommitProposal, error) {
	p := &models.CommitProposal{}
	var origin, status, mode string
	var resolvedAt *time.Time
	err := row.Scan(&p.ID, &p.SquadID, &p.Content, &p.ProposedBy, &p.ProposedByName,
		&origin, &status, &mode, &p.TimeoutSeconds, &p.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	p.Origin = models.CommitOrigin(origin)
	p.Status = models.CommitStatus(status)
	p.ConsensusMode = models.ConsensusMode(mode)
	p.ResolvedAt = resolvedAt
	return p, nil
}

// UpdateProposalStatus finalizes a proposal.
func (s *PostgresStore) UpdateProposalStatus(ctx context.Context, squadID, id string, status models.CommitStatus, resolvedAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE commit_proposals SET status = $1, resolved_at = $2 WHERE squad_id = $3 AND id = $4
	`, string(status), resolvedAt, squadID, id)
	return err
}

// UpsertVote records a vote, replacing any prior vote by the same voter.
func (s *PostgresStore) UpsertVote(ctx context.Context, v *models.Vote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO votes (id, commit_id, voter_id, voter_name, choice, is_human_override, voted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (commit_id, voter_id) DO UPDATE SET
			choice = EXCLUDED.choice,
			is_human_override = EXCLUDED.is_human_override,
			voted_at = EXCLUDED.voted_at
	`, v.ID, v.CommitID, v.VoterID, v.VoterName, string(v.Choice), v.IsHumanOverride, v.VotedAt)
	return err
}

// GetVotes returns all counted votes for a proposal.
func (s *PostgresStore) GetVotes(ctx context.Context, proposalID string) ([]models.Vote, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, commit_id, voter_id, voter_name, choice, is_human_override, voted_at
		FROM votes WHERE commit_id = $1
		ORDER BY voted_at ASC
	`, proposalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var votes []models.Vote
	for rows.Next() {
		var v models.Vote
		var choice string
		if err := rows.Scan(&v.ID, &v.CommitID, &v.VoterID, &v.VoterName, &choice, &v.IsHumanOverride, &v.VotedAt); err != nil {
			return nil, err
		}
		v.Choice = models.VoteChoice(choice)
		votes = append(votes, v)
	}
	return votes, rows.Err()
}
