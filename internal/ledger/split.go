package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SplitShare is a proposed share of a transaction for one member.
type SplitShare struct {
	UserID string
	Amount decimal.Decimal
}

// SplitEvent is emitted for every newly created split whose member is
// not the payer. The notification subsystem turns these into user-facing
// messages; this package only produces them.
type SplitEvent struct {
	UserID        string
	TransactionID string
	Amount        decimal.Decimal
	Currency      string
}

// ValidateSplits checks a proposed split set against a transaction
// amount and the group's member set. Each violation is reported as an
// ErrValidation. memberIDs must contain every current member of the
// transaction's group.
func ValidateSplits(txAmount decimal.Decimal, memberIDs map[string]bool, shares []SplitShare) error {
	if len(shares) == 0 {
		return fmt.Errorf("%w: split set is empty", ErrValidation)
	}

	seen := make(map[string]bool, len(shares))
	sum := decimal.Zero
	for _, share := range shares {
		if seen[share.UserID] {
			return fmt.Errorf("%w: duplicate member %s in split set", ErrValidation, share.UserID)
		}
		seen[share.UserID] = true

		if !memberIDs[share.UserID] {
			return fmt.Errorf("%w: user %s is not a member of this group", ErrValidation, share.UserID)
		}
		if share.Amount.IsNegative() {
			return fmt.Errorf("%w: negative amount %s for member %s", ErrValidation, share.Amount, share.UserID)
		}
		sum = sum.Add(share.Amount)
	}

	if sum.Sub(txAmount).Abs().GreaterThan(sumTolerance) {
		return fmt.Errorf("%w: split amounts sum to %s, transaction amount is %s", ErrValidation, sum, txAmount)
	}

	return nil
}

// BuildSplitEvents produces the notification payloads for a newly
// persisted split set: one event per share whose member is not the
// payer (the payer's own share is already settled).
func BuildSplitEvents(transactionID, payerID, currency string, shares []SplitShare) []SplitEvent {
	var events []SplitEvent
	for _, share := range shares {
		if share.UserID == payerID {
			continue
		}
		events = append(events, SplitEvent{
			UserID:        share.UserID,
			TransactionID: transactionID,
			Amount:        share.Amount,
			Currency:      currency,
		})
	}
	return events
}
