// Package ledger reconciles a customer's bills, payments and returns into a
// single chronological ledger with a running signed balance.
//
// Everything in this package is a pure function of its inputs: records are
// read, never mutated, and nothing derived is cached between calls.
package ledger

import (
	"strings"

	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
)

// RefundMethod is how a return was settled with the customer
type RefundMethod string

const (
	RefundMethodCash   RefundMethod = "cash"   // money handed back on the spot, never touches the ledger
	RefundMethodCredit RefundMethod = "credit" // credited to the customer's account
)

// Normalize lowercases and trims the method
func (m RefundMethod) Normalize() RefundMethod {
	return RefundMethod(strings.ToLower(strings.TrimSpace(string(m))))
}

// IsValid checks if the refund method is known
func (m RefundMethod) IsValid() bool {
	switch m.Normalize() {
	case RefundMethodCash, RefundMethodCredit:
		return true
	}
	return false
}

// IsCredited returns true only for credit refunds. Unknown methods count as not credited.
func (m RefundMethod) IsCredited() bool {
	return m.Normalize() == RefundMethodCredit
}

// ReturnType is informational only
type ReturnType string

const (
	ReturnTypeFullBill ReturnType = "full_bill"
	ReturnTypeItem     ReturnType = "item"
)

// LineItem is one product line on a bill or return
type LineItem struct {
	ProductID   string                `json:"product_id"`
	ProductName string                `json:"product_name,omitempty"`
	Quantity    valueobject.RawAmount `json:"quantity"`
	Rate        valueobject.RawAmount `json:"rate"`
	Subtotal    valueobject.RawAmount `json:"subtotal"`
}

// Bill is a sale or manually entered opening balance.
// AmountPaid is cumulative: the point-of-sale payment plus every later recovery payment.
// AmountPaid > TotalAmount is legal and produces a credit.
type Bill struct {
	ID              string                `json:"id"`
	CustomerID      string                `json:"customer_id"`
	BillNumber      string                `json:"bill_number,omitempty"`
	TotalAmount     valueobject.RawAmount `json:"total_amount"`
	AmountPaid      valueobject.RawAmount `json:"amount_paid"`
	CreatedAt       valueobject.RawTime   `json:"created_at"`
	DueDate         valueobject.RawTime   `json:"due_date,omitempty"`
	IsManualBalance bool                  `json:"is_manual_balance"`
	LineItems       []LineItem            `json:"line_items,omitempty"`
	Notes           string                `json:"notes,omitempty"`
}

// Payment is a recovery payment recorded against a bill after the sale
type Payment struct {
	ID            string                `json:"id"`
	CustomerID    string                `json:"customer_id"`
	SaleID        string                `json:"sale_id"`
	Amount        valueobject.RawAmount `json:"amount"`
	CreatedAt     valueobject.RawTime   `json:"created_at"`
	PaymentMethod string                `json:"payment_method,omitempty"`
	Notes         string                `json:"notes,omitempty"`
}

// Return is a refund event, optionally tied to a bill through SaleID
type Return struct {
	ID           string                `json:"id"`
	CustomerID   string                `json:"customer_id"`
	SaleID       string                `json:"sale_id,omitempty"`
	TotalRefund  valueobject.RawAmount `json:"total_refund"`
	RefundMethod RefundMethod          `json:"refund_method"`
	ReturnType   ReturnType            `json:"return_type,omitempty"`
	CreatedAt    valueobject.RawTime   `json:"created_at"`
	LineItems    []LineItem            `json:"line_items,omitempty"`
	Notes        string                `json:"notes,omitempty"`
}

// CreditedRefund is the part of the return that reduces what the customer owes:
// the rounded refund for credit returns, zero otherwise.
func (r Return) CreditedRefund() valueobject.Money {
	if !r.RefundMethod.IsCredited() {
		return valueobject.Zero()
	}
	return valueobject.NewMoney(r.TotalRefund.Decimal())
}

// Snapshot is every record belonging to one customer, already fetched
type Snapshot struct {
	CustomerID string    `json:"customer_id"`
	Bills      []Bill    `json:"bills"`
	Payments   []Payment `json:"payments"`
	Returns    []Return  `json:"returns"`
}

// IsEmpty returns true if the snapshot holds no records at all
func (s Snapshot) IsEmpty() bool {
	return len(s.Bills) == 0 && len(s.Payments) == 0 && len(s.Returns) == 0
}
