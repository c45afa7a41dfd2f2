package orchestrator

import "errors"

// Sentinel errors surfaced to the API layer. Handlers map these to HTTP
// status codes with errors.Is.
var (
	// ErrNameConflict: an active member with the same name already exists.
	ErrNameConflict = errors.New("name already taken by an active member")
	// ErrMemberNotFound: the named member is not in the squad (or inactive).
	ErrMemberNotFound = errors.New("member not found")
	// ErrProposalNotFound: no proposal with the given ID in this squad.
	ErrProposalNotFound = errors.New("commit proposal not found")
	// ErrAlreadyResolved: vote arrived after the proposal left pending.
	ErrAlreadyResolved = errors.New("commit proposal already resolved")
	// ErrSquadNotFound: no squad with the given ID.
	ErrSquadNotFound = errors.New("squad not found")
	// ErrSquadFull: the squad reached its max_members limit.
	ErrSquadFull = errors.New("squad is full")
	// ErrSquadClosed: the squad was deleted while the operation was in flight.
	ErrSquadClosed = errors.New("squad has been deleted")
)
