package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Settlement statuses as known to the state machine.
const (
	StatusPending   = "pending"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
)

// CanTransition reports whether a settlement may move from one status
// to another. pending may become paid or cancelled; paid and cancelled
// are terminal.
func CanTransition(from, to string) bool {
	if from != StatusPending {
		return false
	}
	return to == StatusPaid || to == StatusCancelled
}

// ValidateSettlement checks a proposed settlement between two members.
// The amount view is informative, not a constraint: callers may settle
// partial or arbitrary amounts, so nothing here compares against
// computed balances.
func ValidateSettlement(fromUserID, toUserID string, amount decimal.Decimal, memberIDs map[string]bool) error {
	if fromUserID == toUserID {
		return fmt.Errorf("%w: cannot settle with yourself", ErrValidation)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: settlement amount must be positive, got %s", ErrValidation, amount)
	}
	if !memberIDs[fromUserID] {
		return fmt.Errorf("%w: user %s is not a member of this group", ErrValidation, fromUserID)
	}
	if !memberIDs[toUserID] {
		return fmt.Errorf("%w: user %s is not a member of this group", ErrValidation, toUserID)
	}
	return nil
}
