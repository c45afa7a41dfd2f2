package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"

	"github.com/SalehHamed1978UAE/squadbot/internal/models"
)

// SQLiteStore handles SQLite database operations. It is the default
// backend when no DATABASE_URL is configured.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/squad.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/squad.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS squads (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		consensus_mode TEXT DEFAULT 'majority',
		commit_timeout_seconds INTEGER DEFAULT 300,
		max_members INTEGER DEFAULT 20,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS members (
		id TEXT NOT NULL,
		squad_id TEXT NOT NULL,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		model TEXT DEFAULT 'unknown',
		is_admin INTEGER DEFAULT 0,
		is_active INTEGER DEFAULT 1,
		joined_at DATETIME NOT NULL,
		PRIMARY KEY (squad_id, id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		squad_id TEXT NOT NULL,
		sender_id TEXT NOT NULL,
		sender_name TEXT NOT NULL,
		sender_kind TEXT NOT NULL,
		content TEXT NOT NULL,
		ts INTEGER NOT NULL,
		reply_to TEXT
	);

	CREATE TABLE IF NOT EXISTS context_entries (
		id TEXT PRIMARY KEY,
		squad_id TEXT NOT NULL,
		content TEXT NOT NULL,
		version INTEGER NOT NULL,
		committed_at DATETIME NOT NULL,
		committed_by TEXT NOT NULL,
		origin TEXT NOT NULL,
		commit_id TEXT NOT NULL,
		UNIQUE (squad_id, version)
	);

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
		created_at DATETIME NOT NULL,
		resolved_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS votes (
		id TEXT NOT NULL,
		commit_id TEXT NOT NULL,
		voter_id TEXT NOT NULL,
		voter_name TEXT NOT NULL,
		choice TEXT NOT NULL,
		is_human_override INTEGER DEFAULT 0,
		voted_at DATETIME NOT NULL,
		UNIQUE (commit_id, voter_id)
	);

	CREATE INDEX IF NOT EXISTS idx_members_squad ON members(squad_id, is_active);
	CREATE INDEX IF NOT EXISTS idx_messages_squad_ts ON messages(squad_id, ts);
	CREATE INDEX IF NOT EXISTS idx_context_squad_version ON context_entries(squad_id, version);
	CREATE INDEX IF NOT EXISTS idx_commits_squad_status ON commit_proposals(squad_id, status);
	CREATE INDEX IF NOT EXISTS idx_votes_commit ON votes(commit_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSquad stores a new squad.
func (s *SQLiteStore) CreateSquad(ctx context.Context, squad *models.Squad) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO squads (id, name, consensus_mode, commit_timeout_seconds, max_members, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, squad.ID, squad.Name, string(squad.ConsensusMode), squad.CommitTimeoutSeconds, squad.MaxMembers, squad.CreatedAt)
	return err
}

// GetSquad retrieves a squad by ID.
func (s *SQLiteStore) GetSquad(ctx context.Context, id string) (*models.Squad, error) {
	squad := &models.Squad{}
	var mode string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, consensus_mode, commit_timeout_seconds, max_members, created_at
		FROM squads WHERE id = ?
	`, id).Scan(&squad.ID, &squad.Name, &mode, &squad.CommitTimeoutSeconds, &squad.MaxMembers, &squad.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	squad.ConsensusMode = models.ConsensusMode(mode)
	return squad, nil
}

// ListSquads returns all squads ordered by creation time.
func (s *SQLiteStore) ListSquads(ctx context.Context) ([]models.Squad, error) {
	rows, err := s.db.QueryContext(ctx, `
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
func (s *SQLiteStore) DeleteSquad(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM votes WHERE commit_id IN (SELECT id FROM commit_proposals WHERE squad_id = ?)`,
		`DELETE FROM commit_proposals WHERE squad_id = ?`,
		`DELETE FROM context_entries WHERE squad_id = ?`,
		`DELETE FROM messages WHERE squad_id = ?`,
		`DELETE FROM members WHERE squad_id = ?`,
		`DELETE FROM squads WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddMember appends a member record.
func (s *SQLiteStore) AddMember(ctx context.Context, m *models.Member) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO members (id, squad_id, name, kind, model, is_admin, is_active, joined_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.SquadID, m.Name, string(m.Kind), m.Model, boolToInt(m.IsAdmin), boolToInt(m.IsActive), m.JoinedAt)
	return err
}

// GetMember retrieves a member by ID, active or not.
func (s *SQLiteStore) GetMember(ctx context.Context, squadID, id string) (*models.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, squad_id, name, kind, model, is_admin, is_active, joined_at
		FROM members WHERE squad_id = ? AND id = ?
	`, squadID, id)
	return scanMember(row)
}

// GetActiveMemberByName retrieves an active member by display name.
func (s *SQLiteStore) GetActiveMemberByName(ctx context.Context, squadID, name string) (*models.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, squad_id, name, kind, model, is_admin, is_active, joined_at
		FROM members WHERE squad_id = ? AND name = ? AND is_active = 1
	`, squadID, name)
	return scanMember(row)
}

// GetActiveMembers returns active members in join order.
func (s *SQLiteStore) GetActiveMembers(ctx context.Context, squadID string) ([]models.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, squad_id, name, kind, model, is_admin, is_active, joined_at
		FROM members WHERE squad_id = ? AND is_active = 1
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
		var isAdmin, isActive int
		if err := rows.Scan(&m.ID, &m.SquadID, &m.Name, &kind, &m.Model, &isAdmin, &isActive, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Kind = models.SenderKind(kind)
		m.IsAdmin = isAdmin == 1
		m.IsActive = isActive == 1
		members = append(members, m)
	}
	return members, rows.Err()
}

// CountMembers counts all members ever added to the squad.
func (s *SQLiteStore) CountMembers(ctx context.Context, squadID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE squad_id = ?`, squadID).Scan(&count)
	return count, err
}

// DeactivateMember flags a member inactive. The record is kept so that
// history referencing it stays resolvable.
func (s *SQLiteStore) DeactivateMember(ctx context.Context, squadID, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE members SET is_active = 0 WHERE squad_id = ? AND id = ?
	`, squadID, id)
	return err
}

// AddMessage stores a message, assigning ID, timestamp and sequence.
func (s *SQLiteStore) AddMessage(ctx context.Context, msg *models.Message) error {
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

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, squad_id, sender_id, sender_name, sender_kind, content, ts, reply_to)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SquadID, msg.SenderID, msg.SenderName, string(msg.SenderKind), msg.Content, msg.Timestamp, replyTo)
	if err != nil {
		return err
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return err
	}
	msg.Seq = seq
	return nil
}

// GetMessages returns messages oldest-to-newest. Without a since cursor it
// returns the most recent limit messages.
func (s *SQLiteStore) GetMessages(ctx context.Context, squadID string, since int64, limit int) ([]models.Message, error) {
	var rows *sql.Rows
	var err error
	if since > 0 {
		rows, err = s.db.QueryContext(ctx, `
			SELECT seq, id, squad_id, sender_id, sender_name, sender_kind, content, ts, reply_to
			FROM messages WHERE squad_id = ? AND ts > ?
			ORDER BY ts ASC, seq ASC LIMIT ?
		`, squadID, since, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT seq, id, squad_id, sender_id, sender_name, sender_kind, content, ts, reply_to
			FROM messages WHERE squad_id = ?
			ORDER BY ts DESC, seq DESC LIMIT ?
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
		// Reverse back to oldest-first
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// AddContextEntry appends an entry with version = previous max + 1.
// Version assignment relies on the orchestrator's per-squad serialization.
func (s *SQLiteStore) AddContextEntry(ctx context.Context, e *models.ContextEntry) error {
	version, err := s.GetContextVersion(ctx, e.SquadID)
	if err != nil {
		return err
	}
	e.Version = version + 1

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO context_entries (id, squad_id, content, version, committed_at, committed_by, origin, commit_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.SquadID, e.Content, e.Version, e.CommittedAt, e.CommittedBy, string(e.Origin), e.CommitID)
	return err
}

// GetContext returns all entries ordered by version.
func (s *SQLiteStore) GetContext(ctx context.Context, squadID string) ([]models.ContextEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, squad_id, content, version, committed_at, committed_by, origin, commit_id
		FROM context_entries WHERE squad_id = ?
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
func (s *SQLiteStore) GetContextVersion(ctx context.Context, squadID string) (int, error) {
	var version sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(version) FROM context_entries WHERE squad_id = ?
	`, squadID).Scan(&version)
	if err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

// AddProposal stores a new commit proposal.
func (s *SQLiteStore) AddProposal(ctx context.Context, p *models.CommitProposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO commit_proposals
		(id, squad_id, content, proposed_by, proposed_by_name, origin, status, consensus_mode, timeout_seconds, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.SquadID, p.Content, p.ProposedBy, p.ProposedByName, string(p.Origin), string(p.Status),
		string(p.ConsensusMode), p.TimeoutSeconds, p.CreatedAt, p.ResolvedAt)
	return err
}

// GetProposal retrieves a proposal by ID.
func (s *SQLiteStore) GetProposal(ctx context.Context, squadID, id string) (*models.CommitProposal, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, squad_id, content, proposed_by, proposed_by_name, origin, status, consensus_mode, timeout_seconds, created_at, resolved_at
		FROM commit_proposals WHERE squad_id = ? AND id = ?
	`, squadID, id)
	return scanProposal(row)
}

// GetPendingProposals returns pending proposals in creation order.
func (s *SQLiteStore) GetPendingProposals(ctx context.Context, squadID string) ([]models.CommitProposal, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, squad_id, content, proposed_by, proposed_by_name, origin, status, consensus_mode, timeout_seconds, created_at, resolved_at
		FROM commit_proposals WHERE squad_id = ? AND status = 'pending'
		ORDER BY created_at ASC
	`, squadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var proposals []models.CommitProposal
	for rows.Next() {
		p, err := scanProposalRows(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// UpdateProposalStatus finalizes a proposal.
func (s *SQLiteStore) UpdateProposalStatus(ctx context.Context, squadID, id string, status models.CommitStatus, resolvedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE commit_proposals SET status = ?, resolved_at = ? WHERE squad_id = ? AND id = ?
	`, string(status), resolvedAt, squadID, id)
	return err
}

// UpsertVote records a vote, replacing any prior vote by the same voter.
func (s *SQLiteStore) UpsertVote(ctx context.Context, v *models.Vote) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO votes (id, commit_id, voter_id, voter_name, choice, is_human_override, voted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (commit_id, voter_id) DO UPDATE SET
			choice = excluded.choice,
			is_human_override = excluded.is_human_override,
			voted_at = excluded.voted_at
	`, v.ID, v.CommitID, v.VoterID, v.VoterName, string(v.Choice), boolToInt(v.IsHumanOverride), v.VotedAt)
	return err
}

// GetVotes returns all counted votes for a proposal.
func (s *SQLiteStore) GetVotes(ctx context.Context, proposalID string) ([]models.Vote, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, commit_id, voter_id, voter_name, choice, is_human_override, voted_at
		FROM votes WHERE commit_id = ?
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
		var override int
		if err := rows.Scan(&v.ID, &v.CommitID, &v.VoterID, &v.VoterName, &choice, &override, &v.VotedAt); err != nil {
			return nil, err
		}
		v.Choice = models.VoteChoice(choice)
		v.IsHumanOverride = override == 1
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMember(row rowScanner) (*models.Member, error) {
	m := &models.Member{}
	var kind string
	var isAdmin, isActive int
	err := row.Scan(&m.ID, &m.SquadID, &m.Name, &kind, &m.Model, &isAdmin, &isActive, &m.JoinedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	m.Kind = models.SenderKind(kind)
	m.IsAdmin = isAdmin == 1
	m.IsActive = isActive == 1
	return m, nil
}

func scanProposal(row rowScanner) (*models.CommitProposal, error) {
	p, err := scanProposalRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func scanProposalRows(row rowScanner) (*models.CommitProposal, error) {
	p := &models.CommitProposal{}
	var origin, status, mode string
	var resolvedAt sql.NullTime
	err := row.Scan(&p.ID, &p.SquadID, &p.Content, &p.ProposedBy, &p.ProposedByName,
		&origin, &status, &mode, &p.TimeoutSeconds, &p.CreatedAt, &resolvedAt)
	if err != nil {
		return nil, err
	}
	p.Origin = models.CommitOrigin(origin)
	p.Status = models.CommitStatus(status)
	p.ConsensusMode = models.ConsensusMode(mode)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		p.ResolvedAt = &t
	}
	return p, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
