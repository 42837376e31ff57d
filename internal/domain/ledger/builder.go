package ledger

import (
	"sort"

	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
)

// Ledger is the balance-annotated ledger, most recent entry first
type Ledger struct {
	Entries []Entry           `json:"entries"`
	Balance valueobject.Money `json:"balance"`
}

// Sign returns the sign of the closing balance
func (l Ledger) Sign() BalanceSign {
	return SignOf(l.Balance)
}

// Ascending returns a copy of the entries in chronological order
func (l Ledger) Ascending() []Entry {
	out := make([]Entry, len(l.Entries))
	for i, e := range l.Entries {
		out[len(out)-1-i] = e
	}
	return out
}

// Builder orders normalized entries and computes the running balance
type Builder struct{}

// NewBuilder creates a new Builder
func NewBuilder() Builder {
	return Builder{}
}

// Build sorts entries by (date, id, kind), scans them once left to right and
// returns them newest first. The input slice is not modified.
func (Builder) Build(entries []Entry) Ledger {
	ordered := make([]Entry, len(entries))
	copy(ordered, entries)
	SortChronological(ordered)

	balance := valueobject.Zero()
	for i := range ordered {
		e := &ordered[i]
		switch e.Kind {
		case EntryKindBill:
			balance = valueobject.NewMoney(balance.Amount().Add(e.Debit.Amount()).Sub(e.Credit.Amount()))
		default:
			balance = valueobject.NewMoney(balance.Amount().Sub(e.Credit.Amount()))
		}
		e.BalanceAfter = balance
	}

	// reversal is presentation only, the scan above is not repeated
	descending := make([]Entry, len(ordered))
	for i, e := range ordered {
		descending[len(ordered)-1-i] = e
	}

	return Ledger{Entries: descending, Balance: balance}
}

// SortChronological sorts in place by date, then id, then kind.
// The secondary keys make equal-timestamp ordering reproducible.
func SortChronological(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		return a.Kind.rank() < b.Kind.rank()
	})
}
