// Package ledger implements the settlement accounting core for spending
// groups: pairwise and net balance aggregation over transaction splits,
// split-set validation, and the settlement state machine. It is pure
// computation; persistence and transport live elsewhere.
package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// sumTolerance is the maximum absolute difference allowed between a
// transaction amount and the sum of its splits (0.01 currency units).
var sumTolerance = decimal.New(1, -2)

// Member identifies a current group member for balance computation.
type Member struct {
	UserID string
	Name   string
}

// Split is one member's share of a transaction.
type Split struct {
	UserID string
	Amount decimal.Decimal
	IsPaid bool
}

// Transaction is a group expense with its split set. PayerID is the
// member who paid the full amount.
type Transaction struct {
	ID      string
	PayerID string
	Amount  decimal.Decimal
	Splits  []Split
}

// BalanceEntry is one counterparty amount inside an owes/isOwed list.
// Amounts are always non-negative; direction is conveyed by which list
// the entry appears in.
type BalanceEntry struct {
	UserID   string          `json:"userId"`
	UserName string          `json:"userName"`
	Amount   decimal.Decimal `json:"amount"`
}

// MemberBalance is the derived balance state for one member.
type MemberBalance struct {
	UserID          string          `json:"userId"`
	UserName        string          `json:"userName"`
	Owes            []BalanceEntry  `json:"owes"`
	IsOwed          []BalanceEntry  `json:"isOwed"`
	NetBalance      decimal.Decimal `json:"netBalance"`
	IsCurrentMember bool            `json:"isCurrentMember"`
}

type memberState struct {
	name    string
	owes    map[string]decimal.Decimal
	isOwed  map[string]decimal.Decimal
	net     decimal.Decimal
	current bool
}

// ComputeBalances derives the full pairwise and net balance state of a
// group from its transactions. Paid splits and the payer's own share
// contribute nothing. Members absent from the current member list but
// present in historical splits are synthesized with
// IsCurrentMember=false. The result is ordered by user id.
//
// Every transaction that carries splits is re-checked against the sum
// invariant first; a violation fails the whole computation with
// ErrDataIntegrity rather than producing wrong balances.
func ComputeBalances(members []Member, transactions []Transaction) ([]MemberBalance, error) {
	for _, tx := range transactions {
		if len(tx.Splits) == 0 {
			continue
		}
		sum := decimal.Zero
		for _, s := range tx.Splits {
			sum = sum.Add(s.Amount)
		}
		if sum.Sub(tx.Amount).Abs().GreaterThan(sumTolerance) {
			return nil, fmt.Errorf("%w: splits of transaction %s sum to %s, want %s",
				ErrDataIntegrity, tx.ID, sum, tx.Amount)
		}
	}

	states := make(map[string]*memberState, len(members))
	for _, m := range members {
		states[m.UserID] = &memberState{
			name:    m.Name,
			owes:    make(map[string]decimal.Decimal),
			isOwed:  make(map[string]decimal.Decimal),
			net:     decimal.Zero,
			current: true,
		}
	}

	// Resolves historical members that no longer appear in the member list.
	ghost := func(userID string) *memberState {
		st, ok := states[userID]
		if !ok {
			st = &memberState{
				owes:   make(map[string]decimal.Decimal),
				isOwed: make(map[string]decimal.Decimal),
				net:    decimal.Zero,
			}
			states[userID] = st
		}
		return st
	}

	for _, tx := range transactions {
		for _, split := range tx.Splits {
			if split.IsPaid || split.UserID == tx.PayerID {
				continue
			}

			ower := ghost(split.UserID)
			ower.owes[tx.PayerID] = ower.owes[tx.PayerID].Add(split.Amount)
			ower.net = ower.net.Sub(split.Amount)

			payer := ghost(tx.PayerID)
			payer.isOwed[split.UserID] = payer.isOwed[split.UserID].Add(split.Amount)
			payer.net = payer.net.Add(split.Amount)
		}
	}

	balances := make([]MemberBalance, 0, len(states))
	for userID, st := range states {
		balances = append(balances, MemberBalance{
			UserID:          userID,
			UserName:        st.name,
			Owes:            toEntries(st.owes, states),
			IsOwed:          toEntries(st.isOwed, states),
			NetBalance:      st.net,
			IsCurrentMember: st.current,
		})
	}
	sort.Slice(balances, func(i, j int) bool { return balances[i].UserID < balances[j].UserID })

	return balances, nil
}

func toEntries(amounts map[string]decimal.Decimal, states map[string]*memberState) []BalanceEntry {
	entries := make([]BalanceEntry, 0, len(amounts))
	for userID, amount := range amounts {
		name := ""
		if st, ok := states[userID]; ok {
			name = st.name
		}
		entries = append(entries, BalanceEntry{UserID: userID, UserName: name, Amount: amount})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}
