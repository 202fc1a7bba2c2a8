package ledger

import "errors"

// Error kinds shared across the settlement core. The HTTP layer maps
// these to status codes; nothing below the route handlers knows about
// transports.
var (
	// ErrNotFound indicates a referenced group, transaction, or
	// settlement does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates invalid input: split amounts not summing
	// to the transaction total, duplicate members, negative amounts,
	// non-members, or settling with oneself.
	ErrValidation = errors.New("validation failed")

	// ErrUnauthorized indicates the caller is not a member of the group
	// or lacks the role the operation requires.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidStateTransition indicates a settlement transition was
	// attempted from a terminal state, including losing a race against
	// a concurrent transition.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrConflict indicates a concurrent write lost an atomicity race;
	// callers may retry.
	ErrConflict = errors.New("conflict")

	// ErrDataIntegrity indicates stored split data violates the sum
	// invariant; balances are not computed from inconsistent data.
	ErrDataIntegrity = errors.New("data integrity violation")
)
