package ledger

import (
	"time"

	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// EntryKind identifies which raw record an entry was derived from
type EntryKind string

const (
	EntryKindBill    EntryKind = "bill"
	EntryKindPayment EntryKind = "payment"
	EntryKindReturn  EntryKind = "return"
)

// rank orders kinds for the last tie-break level
func (k EntryKind) rank() int {
	switch k {
	case EntryKindBill:
		return 0
	case EntryKindPayment:
		return 1
	default:
		return 2
	}
}

// BalanceSign is the arithmetic sign of a running balance.
// It is a separate concept from the credit column of an entry.
type BalanceSign string

const (
	BalanceOwed    BalanceSign = "owed"    // positive: the customer owes money
	BalanceSettled BalanceSign = "settled" // exactly zero
	BalanceAdvance BalanceSign = "advance" // negative: the customer holds a credit
)

// SignOf classifies a signed balance
func SignOf(balance valueobject.Money) BalanceSign {
	switch balance.Sign() {
	case 1:
		return BalanceOwed
	case -1:
		return BalanceAdvance
	default:
		return BalanceSettled
	}
}

// Entry is one normalized, time-ordered, balance-annotated ledger row.
// Debit raises what the customer owes; Credit is the credit-column amount that lowers it.
type Entry struct {
	Kind         EntryKind         `json:"kind"`
	ID           string            `json:"id"`
	Date         time.Time         `json:"date"`
	Debit        valueobject.Money `json:"debit"`
	Credit       valueobject.Money `json:"credit"`
	BalanceAfter valueobject.Money `json:"balance_after"`

	Bill    *BillDetail    `json:"bill,omitempty"`
	Payment *PaymentDetail `json:"payment,omitempty"`
	Return  *ReturnDetail  `json:"return,omitempty"`
}

// BalanceSign returns the sign of the balance after this entry
func (e Entry) BalanceSign() BalanceSign {
	return SignOf(e.BalanceAfter)
}

// BillDetail is the bill metadata carried on a bill entry
type BillDetail struct {
	Settlement
	BillNumber      string         `json:"bill_number,omitempty"`
	Status          BillStatus     `json:"status"`
	DueDate         *time.Time     `json:"due_date,omitempty"`
	IsManualBalance bool           `json:"is_manual_balance"`
	LineItems       []LineItemView `json:"line_items,omitempty"`
	Notes           string         `json:"notes,omitempty"`
}

// PaymentDetail is the payment metadata carried on a payment entry.
// Attributed is false when SaleID points at no known bill.
type PaymentDetail struct {
	SaleID        string `json:"sale_id"`
	Attributed    bool   `json:"attributed"`
	PaymentMethod string `json:"payment_method,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// ReturnDetail is the return metadata carried on a return entry.
// TotalRefund is shown even for cash refunds whose Credit is zero.
type ReturnDetail struct {
	SaleID       string            `json:"sale_id,omitempty"`
	Attributed   bool              `json:"attributed"`
	RefundMethod RefundMethod      `json:"refund_method"`
	ReturnType   ReturnType        `json:"return_type,omitempty"`
	TotalRefund  valueobject.Money `json:"total_refund"`
	LineItems    []LineItemView    `json:"line_items,omitempty"`
	Notes        string            `json:"notes,omitempty"`
}

// LineItemView is a parsed line item for statement rendering
type LineItemView struct {
	ProductID   string            `json:"product_id"`
	ProductName string            `json:"product_name,omitempty"`
	Quantity    decimal.Decimal   `json:"quantity"`
	Rate        valueobject.Money `json:"rate"`
	Subtotal    valueobject.Money `json:"subtotal"`
}

func viewLineItems(items []LineItem) []LineItemView {
	if len(items) == 0 {
		return nil
	}
	views := make([]LineItemView, len(items))
	for i, item := range items {
		views[i] = LineItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    valueobject.SafeParseDecimal(item.Quantity),
			Rate:        valueobject.ParseMoney(item.Rate),
			Subtotal:    valueobject.ParseMoney(item.Subtotal),
		}
	}
	return views
}
