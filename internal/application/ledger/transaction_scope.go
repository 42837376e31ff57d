package ledger

import (
	"context"

	"github.com/erp/customer-ledger/internal/domain/ledger"
)

// TransactionScope runs payment writes atomically. A payment and the
// AmountPaid of the bills it touches are committed or rolled back together.
type TransactionScope interface {
	// Execute runs fn within a transaction; an error from fn rolls it back
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories share the scope's underlying transaction
type TransactionalRepositories interface {
	BillRepo() ledger.BillRepository
	PaymentRepo() ledger.PaymentRepository
}

// NoOpTransactionScope calls fn directly with plain repositories.
// Used in tests and by callers without transaction support.
type NoOpTransactionScope struct {
	bills    ledger.BillRepository
	payments ledger.PaymentRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope
func NewNoOpTransactionScope(bills ledger.BillRepository, payments ledger.PaymentRepository) *NoOpTransactionScope {
	return &NoOpTransactionScope{bills: bills, payments: payments}
}

// Execute runs fn without a transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// BillRepo returns the bill repository
func (s *NoOpTransactionScope) BillRepo() ledger.BillRepository {
	return s.bills
}

// PaymentRepo returns the payment repository
func (s *NoOpTransactionScope) PaymentRepo() ledger.PaymentRepository {
	return s.payments
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
