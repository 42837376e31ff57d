package persistence

import (
	"context"

	appledger "github.com/erp/customer-ledger/internal/application/ledger"
	"github.com/erp/customer-ledger/internal/domain/ledger"
	"gorm.io/gorm"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// A payment write and the matching amount_paid adjustment commit together or not at all.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction, rolling back if it returns an error.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos appledger.TransactionalRepositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// BillRepo returns the bill repository scoped to the current transaction.
func (r *gormTransactionalRepositories) BillRepo() ledger.BillRepository {
	return NewGormBillRepository(r.tx)
}

// PaymentRepo returns the payment repository scoped to the current transaction.
func (r *gormTransactionalRepositories) PaymentRepo() ledger.PaymentRepository {
	return NewGormPaymentRepository(r.tx)
}

var (
	_ appledger.TransactionScope          = (*GormTransactionScope)(nil)
	_ appledger.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
)
