package ledger

import "github.com/erp/customer-ledger/internal/domain/shared/valueobject"

// BillStatus partitions bills into paid and unpaid
type BillStatus string

const (
	BillStatusPaid   BillStatus = "paid"
	BillStatusUnpaid BillStatus = "unpaid"
)

// IsValid checks if the status is a valid BillStatus
func (s BillStatus) IsValid() bool {
	return s == BillStatusPaid || s == BillStatusUnpaid
}

// Settlement is the attribution of payments and credited returns to one bill.
// Both the ledger builder and the classifier derive it through SettleBill, never separately.
type Settlement struct {
	BillID           string            `json:"bill_id"`
	TotalAmount      valueobject.Money `json:"total_amount"`
	AmountPaid       valueobject.Money `json:"amount_paid"`
	BillReturns      valueobject.Money `json:"bill_returns"`
	RecoveryPayments valueobject.Money `json:"recovery_payments"`
	InitialPayment   valueobject.Money `json:"initial_payment"`
	Outstanding      valueobject.Money `json:"outstanding"`
}

// IsPaid returns true when nothing is left outstanding on the bill
func (s Settlement) IsPaid() bool {
	return !s.Outstanding.IsPositive()
}

// Status returns the paid/unpaid classification
func (s Settlement) Status() BillStatus {
	if s.IsPaid() {
		return BillStatusPaid
	}
	return BillStatusUnpaid
}

// attributionIndex holds per-bill sums of recovery payments and credited returns.
// Records with an empty or unknown SaleID are simply never looked up.
type attributionIndex struct {
	recovery map[string]valueobject.Money
	returns  map[string]valueobject.Money
}

// newAttributionIndex sums each record as the ledger shows it, rounded to
// cents, so a bill's attributed credits equal the credits of its entries.
func newAttributionIndex(payments []Payment, returns []Return) attributionIndex {
	idx := attributionIndex{
		recovery: make(map[string]valueobject.Money, len(payments)),
		returns:  make(map[string]valueobject.Money, len(returns)),
	}
	for _, p := range payments {
		if p.SaleID == "" {
			continue
		}
		idx.recovery[p.SaleID] = idx.recovery[p.SaleID].Add(valueobject.NewMoney(p.Amount.Decimal()))
	}
	for _, r := range returns {
		if r.SaleID == "" {
			continue
		}
		idx.returns[r.SaleID] = idx.returns[r.SaleID].Add(r.CreditedRefund())
	}
	return idx
}

// settle applies the attribution rule:
//
//	initialPayment = max(0, paid - recoveryPayments)
//	outstanding    = max(0, total - paid - billReturns)
func (idx attributionIndex) settle(b Bill) Settlement {
	total := valueobject.NewMoney(b.TotalAmount.Decimal())
	paid := valueobject.NewMoney(b.AmountPaid.Decimal())
	billReturns := idx.returns[b.ID]
	recovery := idx.recovery[b.ID]

	return Settlement{
		BillID:           b.ID,
		TotalAmount:      total,
		AmountPaid:       paid,
		BillReturns:      billReturns,
		RecoveryPayments: recovery,
		InitialPayment:   paid.Sub(recovery).ClampZero(),
		Outstanding:      total.Sub(paid).Sub(billReturns).ClampZero(),
	}
}

// SettleBill attributes the given payments and returns to b.
// Callers settling many bills should go through a Normalizer, which indexes once.
func SettleBill(b Bill, payments []Payment, returns []Return) Settlement {
	return newAttributionIndex(payments, returns).settle(b)
}
