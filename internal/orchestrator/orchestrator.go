package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalehHamed1978UAE/squadbot/internal/metrics"
	"github.com/SalehHamed1978UAE/squadbot/internal/models"
	"github.com/SalehHamed1978UAE/squadbot/internal/store"
)

const (
	// OrchestratorSender is the sentinel sender ID for messages the
	// orchestrator itself writes into the channel.
	OrchestratorSender = "orchestrator"
	// OrchestratorName is the display name for those messages.
	OrchestratorName = "Squad Bot"
)

// Orchestrator owns all mutable state of one squad. It is deterministic
// logic, not an LLM: it manages membership, routes and stores messages,
// maintains canonical context, runs the commit/vote protocol and fans out
// events.
//
// Design: read-all, write-through. Everyone reads context and messages
// freely; only the resolution path of the commit protocol ever writes a
// context entry.
//
// Every write path is serialized through mu (single-writer discipline),
// which makes context version assignment, vote tallying and resolution
// race-free. Reads go straight to the store and may run concurrently
// with writes.
type Orchestrator struct {
	squad  models.Squad
	store  store.DataStore
	logger zerolog.Logger

	broadcaster *Broadcaster
	timers      *timerSet
	detector    *Detector

	mu     sync.Mutex
	closed bool
}

// New creates the orchestrator for one squad.
func New(squad models.Squad, st store.DataStore, logger zerolog.Logger, detectorWindow int) *Orchestrator {
	return &Orchestrator{
		squad:       squad,
		store:       st,
		logger:      logger.With().Str("squad_id", squad.ID).Logger(),
		broadcaster: NewBroadcaster(squad.ID, logger),
		timers:      newTimerSet(),
		detector:    NewDetector(detectorWindow),
	}
}

// Squad returns the squad's immutable configuration.
func (o *Orchestrator) Squad() models.Squad {
	return o.squad
}

// Subscribe attaches an observer to the squad's event stream.
func (o *Orchestrator) Subscribe(buffer int) *Subscriber {
	return o.broadcaster.Subscribe(buffer)
}

// Close cancels all pending expiry timers and drops all subscribers.
// Called on squad deletion.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.timers.cancelAll()
	o.broadcaster.Close()
}

// ── Membership ──────────────────────────────────────────────────────────

// Join adds a human+agent pair to the squad. The first member ever to
// join is flagged as the squad's admin. Fails with ErrNameConflict if an
// active member already uses the name.
func (o *Orchestrator) Join(ctx context.Context, name string, kind models.SenderKind, model string) (*models.Member, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrSquadClosed
	}

	existing, err := o.store.GetActiveMemberByName(ctx, o.squad.ID, name)
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %q", ErrNameConflict, name)
	}

	active, err := o.store.GetActiveMembers(ctx, o.squad.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if o.squad.MaxMembers > 0 && len(active) >= o.squad.MaxMembers {
		return nil, ErrSquadFull
	}

	total, err := o.store.CountMembers(ctx, o.squad.ID)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}

	if kind == "" {
		kind = models.SenderAgent
	}
	if model == "" {
		model = "unknown"
	}

	member := &models.Member{
		ID:       models.NewID(),
		SquadID:  o.squad.ID,
		Name:     name,
		Kind:     kind,
		Model:    model,
		IsAdmin:  total == 0,
		IsActive: true,
		JoinedAt: time.Now().UTC(),
	}
	if err := o.store.AddMember(ctx, member); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}

	o.broadcaster.Publish(EventMemberJoined, member)
	if err := o.appendSystemMessage(ctx, models.SenderSystem,
		fmt.Sprintf("👋 **%s** joined the squad (using %s)", name, model)); err != nil {
		return nil, err
	}

	metrics.MembersJoined.Inc()
	o.logger.Info().Str("member", name).Str("model", model).Bool("admin", member.IsAdmin).Msg("member joined")
	return member, nil
}

// Leave deactivates a member. History referencing the member stays
// resolvable: the record is kept, only flagged inactive.
func (o *Orchestrator) Leave(ctx context.Context, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrSquadClosed
	}

	member, err := o.store.GetActiveMemberByName(ctx, o.squad.ID, name)
	if err != nil {
		return fmt.Errorf("lookup member: %w", err)
	}
	if member == nil {
		return fmt.Errorf("%w: %q", ErrMemberNotFound, name)
	}

	if err := o.store.DeactivateMember(ctx, o.squad.ID, member.ID); err != nil {
		return fmt.Errorf("deactivate member: %w", err)
	}

	o.broadcaster.Publish(EventMemberLeft, map[string]string{"id": member.ID, "name": name})
	if err := o.appendSystemMessage(ctx, models.SenderSystem,
		fmt.Sprintf("👋 **%s** left the squad", name)); err != nil {
		return err
	}

	o.logger.Info().Str("member", name).Msg("member left")
	return nil
}

// Members lists active members in join order.
func (o *Orchestrator) Members(ctx context.Context) ([]models.Member, error) {
	return o.store.GetActiveMembers(ctx, o.squad.ID)
}

// ── Messaging ───────────────────────────────────────────────────────────

// Send posts a message to the squad channel on behalf of an active
// member, then re-runs convergence detection over the recent window.
func (o *Orchestrator) Send(ctx context.Context, senderName, content string, kind models.SenderKind, replyTo string) (*models.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrSquadClosed
	}

	member, err := o.store.GetActiveMemberByName(ctx, o.squad.ID, senderName)
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: %q", ErrMemberNotFound, senderName)
	}

	if kind != models.SenderHuman {
		kind = models.SenderAgent
	}

	msg := &models.Message{
		SquadID:    o.squad.ID,
		SenderID:   member.ID,
		SenderName: senderName,
		SenderKind: kind,
		Content:    content,
		ReplyTo:    replyTo,
	}
	if err := o.store.AddMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("add message: %w", err)
	}
	o.broadcaster.Publish(EventNewMessage, msg)
	metrics.MessagesPosted.WithLabelValues(string(kind)).Inc()

	if err := o.detectConvergenceLocked(ctx); err != nil {
		// Detection failure must not fail the send; the message is stored.
		o.logger.Warn().Err(err).Msg("convergence detection failed")
	}

	return msg, nil
}

// ReadMessages returns messages oldest-to-newest. since filters to
// Timestamp > since (Unix ms) when non-zero; limit defaults to 50.
func (o *Orchestrator) ReadMessages(ctx context.Context, since int64, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	return o.store.GetMessages(ctx, o.squad.ID, since, limit)
}

// ── Canonical context ───────────────────────────────────────────────────

// ContextSnapshot is the squad's shared truth: all committed entries in
// version order plus a rendered summary.
type ContextSnapshot struct {
	Version int                   `json:"version"`
	Entries []models.ContextEntry `json:"entries"`
	Summary string                `json:"summary"`
}

// Context reads the canonical context.
func (o *Orchestrator) Context(ctx context.Context) (*ContextSnapshot, error) {
	entries, err := o.store.GetContext(ctx, o.squad.ID)
	if err != nil {
		return nil, err
	}
	snap := &ContextSnapshot{Entries: entries}
	for i, e := range entries {
		if i > 0 {
			snap.Summary += "\n"
		}
		snap.Summary += fmt.Sprintf("[v%d] %s", e.Version, e.Content)
		snap.Version = e.Version
	}
	return snap, nil
}

// ── Commit protocol ─────────────────────────────────────────────────────

// Propose submits a candidate fact for voting. Member-nominated proposals
// use the squad's default consensus mode; detector-synthesized ones use
// no-objection so organic agreement only needs a confirmation window.
func (o *Orchestrator) Propose(ctx context.Context, proposerName, content string) (*models.CommitProposal, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrSquadClosed
	}

	member, err := o.store.GetActiveMemberByName(ctx, o.squad.ID, proposerName)
	if err != nil {
		return nil, fmt.Errorf("lookup member: %w", err)
	}
	if member == nil {
		return nil, fmt.Errorf("%w: %q", ErrMemberNotFound, proposerName)
	}

	return o.proposeLocked(ctx, member.ID, proposerName, content, models.OriginAgentNominated)
}

// proposeLocked creates a proposal, announces it and schedules the expiry
// check for no-objection mode. Callers hold o.mu.
func (o *Orchestrator) proposeLocked(ctx context.Context, proposerID, proposerName, content string, origin models.CommitOrigin) (*models.CommitProposal, error) {
	mode := o.squad.ConsensusMode
	if origin == models.OriginOrchestratorDetected {
		mode = models.ModeNoObjection
	}

	proposal := &models.CommitProposal{
		ID:             models.NewID(),
		SquadID:        o.squad.ID,
		Content:        content,
		ProposedBy:     proposerID,
		ProposedByName: proposerName,
		Origin:         origin,
		Status:         models.StatusPending,
		ConsensusMode:  mode,
		TimeoutSeconds: o.squad.CommitTimeoutSeconds,
		CreatedAt:      time.Now().UTC(),
	}
	if err := o.store.AddProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("add proposal: %w", err)
	}

	var announcement string
	if origin == models.OriginAgentNominated {
		announcement = fmt.Sprintf("📋 **%s** proposes to commit: %q\n\nVote with commit_id=%q and choice 'approve' or 'reject'",
			proposerName, content, proposal.ID)
	} else {
		announcement = fmt.Sprintf("🔍 **%s** detected convergence: %q\n\nObject with commit_id=%q and choice 'reject' within %ds, or it commits automatically",
			OrchestratorName, content, proposal.ID, proposal.TimeoutSeconds)
	}
	if err := o.appendSystemMessage(ctx, models.SenderOrchestrator, announcement); err != nil {
		return nil, err
	}
	o.broadcaster.Publish(EventCommitProposed, proposal)
	metrics.ProposalsOpened.WithLabelValues(string(origin)).Inc()

	if mode == models.ModeNoObjection {
		timeout := time.Duration(proposal.TimeoutSeconds) * time.Second
		id := proposal.ID
		o.timers.schedule(id, timeout, func() { o.handleExpiry(id) })
	}

	o.logger.Info().
		Str("commit_id", proposal.ID).
		Str("origin", string(origin)).
		Str("mode", string(mode)).
		Msg("commit proposed")
	return proposal, nil
}

// Vote records a member's vote and immediately evaluates consensus. A
// later vote from the same voter replaces the earlier one. Fails with
// ErrAlreadyResolved once the proposal left pending.
func (o *Orchestrator) Vote(ctx context.Context, voterName, commitID string, choice models.VoteChoice, isHumanOverride bool) (*models.Vote, Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, Outcome{}, ErrSquadClosed
	}

	if err := choice.Validate(); err != nil {
		return nil, Outcome{}, err
	}

	member, err := o.store.GetActiveMemberByName(ctx, o.squad.ID, voterName)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("lookup member: %w", err)
	}
	if member == nil {
		return nil, Outcome{}, fmt.Errorf("%w: %q", ErrMemberNotFound, voterName)
	}

	proposal, err := o.store.GetProposal(ctx, o.squad.ID, commitID)
	if err != nil {
		return nil, Outcome{}, fmt.Errorf("lookup proposal: %w", err)
	}
	if proposal == nil {
		return nil, Outcome{}, fmt.Errorf("%w: %q", ErrProposalNotFound, commitID)
	}
	if proposal.Status.Terminal() {
		return nil, Outcome{}, fmt.Errorf("%w: %q is %s", ErrAlreadyResolved, commitID, proposal.Status)
	}

	vote := &models.Vote{
		ID:              models.NewID(),
		CommitID:        commitID,
		VoterID:         member.ID,
		VoterName:       voterName,
		Choice:          choice,
		IsHumanOverride: isHumanOverride,
		VotedAt:         time.Now().UTC(),
	}
	if err := o.store.UpsertVote(ctx, vote); err != nil {
		return nil, Outcome{}, fmt.Errorf("upsert vote: %w", err)
	}
	o.broadcaster.Publish(EventVoteCast, vote)
	metrics.VotesCast.WithLabelValues(string(choice)).Inc()

	outcome, err := o.evaluateLocked(ctx, proposal, false)
	if err != nil {
		return nil, Outcome{}, err
	}
	return vote, outcome, nil
}

// evaluateLocked runs the consensus evaluator and performs the resolution
// when it returns a terminal status. Callers hold o.mu.
func (o *Orchestrator) evaluateLocked(ctx context.Context, proposal *models.CommitProposal, timeoutElapsed bool) (Outcome, error) {
	votes, err := o.store.GetVotes(ctx, proposal.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list votes: %w", err)
	}
	active, err := o.store.GetActiveMembers(ctx, o.squad.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("list members: %w", err)
	}

	outcome := Evaluate(proposal.ConsensusMode, timeoutElapsed, len(active), votes)
	if !outcome.Status.Terminal() {
		return outcome, nil
	}
	if err := o.resolveLocked(ctx, proposal, outcome); err != nil {
		return Outcome{}, err
	}
	return outcome, nil
}

// resolveLocked finalizes a proposal: commits to context on approval,
// updates status, announces the result and cancels the expiry timer.
// Callers hold o.mu.
func (o *Orchestrator) resolveLocked(ctx context.Context, proposal *models.CommitProposal, outcome Outcome) error {
	now := time.Now().UTC()
	var entry *models.ContextEntry

	if outcome.Status == models.StatusApproved {
		entry = &models.ContextEntry{
			ID:          models.NewID(),
			SquadID:     o.squad.ID,
			Content:     proposal.Content,
			CommittedAt: now,
			CommittedBy: proposal.ProposedByName,
			Origin:      proposal.Origin,
			CommitID:    proposal.ID,
		}
		if err := o.store.AddContextEntry(ctx, entry); err != nil {
			return fmt.Errorf("commit context entry: %w", err)
		}
	}

	if err := o.store.UpdateProposalStatus(ctx, o.squad.ID, proposal.ID, outcome.Status, now); err != nil {
		return fmt.Errorf("update proposal status: %w", err)
	}

	var announcement string
	if entry != nil {
		announcement = fmt.Sprintf("✅ Committed to context (v%d): %q", entry.Version, proposal.Content)
	} else {
		announcement = fmt.Sprintf("🚫 Commit `%s` **rejected**: %s", proposal.ID, outcome.Reason)
	}
	if err := o.appendSystemMessage(ctx, models.SenderOrchestrator, announcement); err != nil {
		return err
	}

	o.broadcaster.Publish(EventCommitResolved, map[string]string{
		"commit_id": proposal.ID,
		"status":    string(outcome.Status),
	})
	if entry != nil {
		o.broadcaster.Publish(EventContextUpdated, entry)
		metrics.ContextVersion.WithLabelValues(o.squad.ID).Set(float64(entry.Version))
	}

	o.timers.cancel(proposal.ID)
	metrics.ProposalsResolved.WithLabelValues(string(outcome.Status)).Inc()
	o.logger.Info().
		Str("commit_id", proposal.ID).
		Str("status", string(outcome.Status)).
		Str("reason", outcome.Reason).
		Msg("commit resolved")
	return nil
}

// handleExpiry is the deferred expiry check for a no-objection proposal.
// Idempotent: a proposal that already resolved is left untouched.
func (o *Orchestrator) handleExpiry(proposalID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}

	ctx := context.Background()
	proposal, err := o.store.GetProposal(ctx, o.squad.ID, proposalID)
	if err != nil {
		o.logger.Error().Err(err).Str("commit_id", proposalID).Msg("expiry check: lookup failed")
		return
	}
	if proposal == nil || proposal.Status.Terminal() {
		return
	}

	if _, err := o.evaluateLocked(ctx, proposal, true); err != nil {
		o.logger.Error().Err(err).Str("commit_id", proposalID).Msg("expiry check: resolution failed")
	}
}

// PendingCommit pairs a pending proposal with its votes and tally.
type PendingCommit struct {
	models.CommitProposal
	Votes       []models.Vote `json:"votes"`
	VoteSummary Tally         `json:"vote_summary"`
}

// Pending lists pending proposals with their vote status.
func (o *Orchestrator) Pending(ctx context.Context) ([]PendingCommit, error) {
	proposals, err := o.store.GetPendingProposals(ctx, o.squad.ID)
	if err != nil {
		return nil, err
	}
	out := make([]PendingCommit, 0, len(proposals))
	for _, p := range proposals {
		votes, err := o.store.GetVotes(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, PendingCommit{CommitProposal: p, Votes: votes, VoteSummary: CountVotes(votes)})
	}
	return out, nil
}

// ── Status ──────────────────────────────────────────────────────────────

// StatusSnapshot is the squad's full status.
type StatusSnapshot struct {
	Members        []models.Member      `json:"members"`
	MemberCount    int                  `json:"member_count"`
	ContextVersion int                  `json:"context_version"`
	PendingCommits int                  `json:"pending_commits"`
	ConsensusMode  models.ConsensusMode `json:"consensus_mode"`
}

// Status returns the squad's status snapshot.
func (o *Orchestrator) Status(ctx context.Context) (*StatusSnapshot, error) {
	members, err := o.store.GetActiveMembers(ctx, o.squad.ID)
	if err != nil {
		return nil, err
	}
	version, err := o.store.GetContextVersion(ctx, o.squad.ID)
	if err != nil {
		return nil, err
	}
	pending, err := o.store.GetPendingProposals(ctx, o.squad.ID)
	if err != nil {
		return nil, err
	}
	return &StatusSnapshot{
		Members:        members,
		MemberCount:    len(members),
		ContextVersion: version,
		PendingCommits: len(pending),
		ConsensusMode:  o.squad.ConsensusMode,
	}, nil
}

// Snapshot is the full current state sent to a newly connecting observer
// before any incremental event.
type Snapshot struct {
	Status   *StatusSnapshot  `json:"status"`
	Messages []models.Message `json:"messages"`
	Context  *ContextSnapshot `json:"context"`
	Pending  []PendingCommit  `json:"pending_commits"`
}

// Snapshot builds the connect-time state for an observer.
func (o *Orchestrator) Snapshot(ctx context.Context) (*Snapshot, error) {
	status, err := o.Status(ctx)
	if err != nil {
		return nil, err
	}
	messages, err := o.ReadMessages(ctx, 0, 100)
	if err != nil {
		return nil, err
	}
	contextSnap, err := o.Context(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := o.Pending(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Status: status, Messages: messages, Context: contextSnap, Pending: pending}, nil
}

// ── Convergence ─────────────────────────────────────────────────────────

// detectConvergenceLocked re-runs the detector over the recent window and
// synthesizes a no-objection proposal on a hit. Callers hold o.mu.
func (o *Orchestrator) detectConvergenceLocked(ctx context.Context) error {
	messages, err := o.store.GetMessages(ctx, o.squad.ID, 0, o.detector.Window)
	if err != nil {
		return err
	}
	active, err := o.store.GetActiveMembers(ctx, o.squad.ID)
	if err != nil {
		return err
	}
	pending, err := o.store.GetPendingProposals(ctx, o.squad.ID)
	if err != nil {
		return err
	}

	claim, ok := o.detector.Detect(messages, active, pending)
	if !ok {
		return nil
	}

	metrics.ConvergenceDetections.Inc()
	o.logger.Info().Str("claim", claim).Msg("convergence detected")
	_, err = o.proposeLocked(ctx, OrchestratorSender, OrchestratorName, claim, models.OriginOrchestratorDetected)
	return err
}

// appendSystemMessage stores an orchestrator/system message and publishes
// new_message. Callers hold o.mu.
func (o *Orchestrator) appendSystemMessage(ctx context.Context, kind models.SenderKind, content string) error {
	msg := &models.Message{
		SquadID:    o.squad.ID,
		SenderID:   OrchestratorSender,
		SenderName: OrchestratorName,
		SenderKind: kind,
		Content:    content,
	}
	if err := o.store.AddMessage(ctx, msg); err != nil {
		return fmt.Errorf("add system message: %w", err)
	}
	o.broadcaster.Publish(EventNewMessage, msg)
	return nil
}
