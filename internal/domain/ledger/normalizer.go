package ledger

import (
	"time"

	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
)

// Normalizer maps raw bills, payments and returns onto the common Entry shape.
// It is built once per snapshot so per-bill attribution is indexed a single time.
type Normalizer struct {
	idx     attributionIndex
	billIDs map[string]struct{}
	now     time.Time
}

// NewNormalizer indexes the snapshot. now is used for every absent or unparsable timestamp.
func NewNormalizer(s Snapshot, now time.Time) *Normalizer {
	billIDs := make(map[string]struct{}, len(s.Bills))
	for _, b := range s.Bills {
		billIDs[b.ID] = struct{}{}
	}
	return &Normalizer{
		idx:     newAttributionIndex(s.Payments, s.Returns),
		billIDs: billIDs,
		now:     now,
	}
}

// Settle returns the attribution of the indexed payments and returns to b
func (n *Normalizer) Settle(b Bill) Settlement {
	return n.idx.settle(b)
}

// Date resolves a raw timestamp, falling back to the normalizer's now
func (n *Normalizer) Date(t valueobject.RawTime) time.Time {
	return valueobject.SafeParseDate(t, n.now)
}

// DueDate resolves an optional due date. Empty or unparsable values mean "no due date".
func (n *Normalizer) DueDate(t valueobject.RawTime) *time.Time {
	due, ok := valueobject.ParseDate(t)
	if !ok {
		return nil
	}
	return &due
}

func (n *Normalizer) hasBill(id string) bool {
	if id == "" {
		return false
	}
	_, ok := n.billIDs[id]
	return ok
}

// NormalizeBill emits the bill's debit (its full total) and the point-of-sale
// part of AmountPaid as its credit.
func (n *Normalizer) NormalizeBill(b Bill) Entry {
	settlement := n.Settle(b)
	return Entry{
		Kind:   EntryKindBill,
		ID:     b.ID,
		Date:   n.Date(b.CreatedAt),
		Debit:  settlement.TotalAmount,
		Credit: settlement.InitialPayment,
		Bill: &BillDetail{
			Settlement:      settlement,
			BillNumber:      b.BillNumber,
			Status:          settlement.Status(),
			DueDate:         n.DueDate(b.DueDate),
			IsManualBalance: b.IsManualBalance,
			LineItems:       viewLineItems(b.LineItems),
			Notes:           b.Notes,
		},
	}
}

// NormalizePayment emits the full payment amount as a credit
func (n *Normalizer) NormalizePayment(p Payment) Entry {
	return Entry{
		Kind:   EntryKindPayment,
		ID:     p.ID,
		Date:   n.Date(p.CreatedAt),
		Debit:  valueobject.Zero(),
		Credit: valueobject.NewMoney(p.Amount.Decimal()),
		Payment: &PaymentDetail{
			SaleID:        p.SaleID,
			Attributed:    n.hasBill(p.SaleID),
			PaymentMethod: p.PaymentMethod,
			Notes:         p.Notes,
		},
	}
}

// NormalizeReturn always emits an entry so the return shows in history,
// but only credit refunds carry a non-zero credit.
func (n *Normalizer) NormalizeReturn(r Return) Entry {
	return Entry{
		Kind:   EntryKindReturn,
		ID:     r.ID,
		Date:   n.Date(r.CreatedAt),
		Debit:  valueobject.Zero(),
		Credit: r.CreditedRefund(),
		Return: &ReturnDetail{
			SaleID:       r.SaleID,
			Attributed:   n.hasBill(r.SaleID),
			RefundMethod: r.RefundMethod.Normalize(),
			ReturnType:   r.ReturnType,
			TotalRefund:  valueobject.NewMoney(r.TotalRefund.Decimal()),
			LineItems:    viewLineItems(r.LineItems),
			Notes:        r.Notes,
		},
	}
}

// NormalizeAll converts every record of the snapshot, bills first, in input order
func (n *Normalizer) NormalizeAll(s Snapshot) []Entry {
	entries := make([]Entry, 0, len(s.Bills)+len(s.Payments)+len(s.Returns))
	for _, b := range s.Bills {
		entries = append(entries, n.NormalizeBill(b))
	}
	for _, p := range s.Payments {
		entries = append(entries, n.NormalizePayment(p))
	}
	for _, r := range s.Returns {
		entries = append(entries, n.NormalizeReturn(r))
	}
	return entries
}
