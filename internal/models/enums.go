package models

import "fmt"

// SenderKind identifies who authored a message.
type SenderKind string

const (
	SenderHuman        SenderKind = "human"
	SenderAgent        SenderKind = "agent"
	SenderOrchestrator SenderKind = "orchestrator"
	SenderSystem       SenderKind = "system"
)

// Validate checks that the sender kind is one of the known values.
func (k SenderKind) Validate() error {
	switch k {
	case SenderHuman, SenderAgent, SenderOrchestrator, SenderSystem:
		return nil
	}
	return fmt.Errorf("invalid sender kind %q", string(k))
}

// CommitStatus is the lifecycle state of a commit proposal.
// Transitions are one-way: pending -> approved | rejected | expired.
type CommitStatus string

const (
	StatusPending  CommitStatus = "pending"
	StatusApproved CommitStatus = "approved"
	StatusRejected CommitStatus = "rejected"
	StatusExpired  CommitStatus = "expired"
)

// Validate checks that the status is one of the known values.
func (s CommitStatus) Validate() error {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusExpired:
		return nil
	}
	return fmt.Errorf("invalid commit status %q", string(s))
}

// Terminal reports whether the status is a resolved state.
func (s CommitStatus) Terminal() bool {
	return s != StatusPending
}

// VoteChoice is a member's position on a commit proposal.
type VoteChoice string

const (
	ChoiceApprove VoteChoice = "approve"
	ChoiceReject  VoteChoice = "reject"
	ChoiceAbstain VoteChoice = "abstain"
)

// Validate checks that the choice is one of the known values.
func (c VoteChoice) Validate() error {
	switch c {
	case ChoiceApprove, ChoiceReject, ChoiceAbstain:
		return nil
	}
	return fmt.Errorf("invalid vote choice %q", string(c))
}

// CommitOrigin records how a proposal entered the commit protocol.
type CommitOrigin string

const (
	// OriginAgentNominated: a member said "I believe we've decided X".
	OriginAgentNominated CommitOrigin = "agent_nominated"
	// OriginOrchestratorDetected: the convergence detector synthesized it.
	OriginOrchestratorDetected CommitOrigin = "orchestrator_detected"
)

// Validate checks that the origin is one of the known values.
func (o CommitOrigin) Validate() error {
	switch o {
	case OriginAgentNominated, OriginOrchestratorDetected:
		return nil
	}
	return fmt.Errorf("invalid commit origin %q", string(o))
}

// ConsensusMode is the rule governing how votes resolve a proposal.
type ConsensusMode string

const (
	ModeUnanimous   ConsensusMode = "unanimous"
	ModeMajority    ConsensusMode = "majority"
	ModeNoObjection ConsensusMode = "no_objection"
)

// Validate checks that the mode is one of the known values.
func (m ConsensusMode) Validate() error {
	switch m {
	case ModeUnanimous, ModeMajority, ModeNoObjection:
		return nil
	}
	return fmt.Errorf("invalid consensus mode %q", string(m))
}
