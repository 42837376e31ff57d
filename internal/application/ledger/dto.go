package ledger

import (
	"time"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// Balance labels shown next to an absolute balance
const (
	LabelOutstanding = "Outstanding"
	LabelCredit      = "Credit"
)

// BalanceLabel returns "Credit" when the customer holds a credit and "Outstanding" otherwise
func BalanceLabel(sign ledger.BalanceSign) string {
	if sign == ledger.BalanceAdvance {
		return LabelCredit
	}
	return LabelOutstanding
}

// CustomerLedger is a reconciliation plus its display balance
type CustomerLedger struct {
	*ledger.Reconciliation
	BalanceLabel   string            `json:"balance_label"`
	DisplayBalance valueobject.Money `json:"display_balance"`
	Balanced       bool              `json:"balanced"`
}

// ToCustomerLedger converts a reconciliation to its response DTO
func ToCustomerLedger(r *ledger.Reconciliation) *CustomerLedger {
	return &CustomerLedger{
		Reconciliation: r,
		BalanceLabel:   BalanceLabel(r.BalanceSign),
		DisplayBalance: r.Balance.Abs(),
		Balanced:       r.IsBalanced(),
	}
}

// BillList is one side of the paid/unpaid partition, or both when Status is empty
type BillList struct {
	CustomerID string            `json:"customer_id"`
	Status     ledger.BillStatus `json:"status,omitempty"`
	Bills      []ledger.BillView `json:"bills"`
	Stats      ledger.Stats      `json:"stats"`
}

// DuePaymentList is the due-payment view with per-status counts
type DuePaymentList struct {
	CustomerID   string              `json:"customer_id"`
	DuePayments  []ledger.DuePayment `json:"due_payments"`
	OverdueCount int                 `json:"overdue_count"`
	DueSoonCount int                 `json:"due_soon_count"`
	TotalDue     valueobject.Money   `json:"total_due"`
}

// ToDuePaymentList summarizes due payments
func ToDuePaymentList(customerID string, due []ledger.DuePayment) *DuePaymentList {
	list := &DuePaymentList{
		CustomerID:  customerID,
		DuePayments: due,
		TotalDue:    valueobject.Zero(),
	}
	for _, d := range due {
		switch d.Status {
		case ledger.DueStatusOverdue:
			list.OverdueCount++
		case ledger.DueStatusDueSoon:
			list.DueSoonCount++
		}
		list.TotalDue = list.TotalDue.Add(d.Outstanding)
	}
	return list
}

// RecordPaymentCommand records a recovery payment against a bill
type RecordPaymentCommand struct {
	CustomerID    string          `json:"customer_id" validate:"required,max=64"`
	SaleID        string          `json:"sale_id" validate:"required,max=64"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethod string          `json:"payment_method" validate:"omitempty,max=32"`
	Notes         string          `json:"notes" validate:"omitempty,max=500"`
	PaidAt        *time.Time      `json:"paid_at"`
}

// UpdatePaymentCommand edits a recovery payment. An empty SaleID keeps the current bill.
type UpdatePaymentCommand struct {
	CustomerID    string          `json:"customer_id" validate:"required,max=64"`
	PaymentID     string          `json:"payment_id" validate:"required,max=64"`
	SaleID        string          `json:"sale_id" validate:"omitempty,max=64"`
	Amount        decimal.Decimal `json:"amount" validate:"gt=0"`
	PaymentMethod *string         `json:"payment_method" validate:"omitempty,max=32"`
	Notes         *string         `json:"notes" validate:"omitempty,max=500"`
	PaidAt        *time.Time      `json:"paid_at"`
}

// DeletePaymentCommand removes a recovery payment
type DeletePaymentCommand struct {
	CustomerID string `json:"customer_id" validate:"required,max=64"`
	PaymentID  string `json:"payment_id" validate:"required,max=64"`
}

// PaymentResult is the written payment and the recomputed ledger
type PaymentResult struct {
	Payment *ledger.Payment `json:"payment,omitempty"`
	Ledger  *CustomerLedger `json:"ledger"`
}
