package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// BillRepository reads bills. Bills are created by the sales flow; the ledger
// only moves a bill's cumulative AmountPaid when recovery payments change.
type BillRepository interface {
	// FindByCustomer returns every bill of a customer
	FindByCustomer(ctx context.Context, customerID string) ([]Bill, error)

	// FindByID returns a bill, or nil when it does not exist
	FindByID(ctx context.Context, id string) (*Bill, error)

	// AdjustAmountPaid adds delta (which may be negative) to the bill's AmountPaid
	AdjustAmountPaid(ctx context.Context, id string, delta decimal.Decimal) error
}

// PaymentRepository defines the interface for recovery payment persistence
type PaymentRepository interface {
	// FindByCustomer returns every payment of a customer
	FindByCustomer(ctx context.Context, customerID string) ([]Payment, error)

	// FindByID returns a payment, or nil when it does not exist
	FindByID(ctx context.Context, id string) (*Payment, error)

	// Save creates or updates a payment
	Save(ctx context.Context, payment *Payment) error

	// Delete removes a payment
	Delete(ctx context.Context, id string) error
}

// ReturnRepository reads returns
type ReturnRepository interface {
	// FindByCustomer returns every return of a customer
	FindByCustomer(ctx context.Context, customerID string) ([]Return, error)
}
