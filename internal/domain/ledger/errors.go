package ledger

import "github.com/erp/customer-ledger/internal/domain/shared"

// Ledger error codes
const (
	CodeBillNotFound    = "BILL_NOT_FOUND"
	CodePaymentNotFound = "PAYMENT_NOT_FOUND"
)

var (
	ErrBillNotFound    = shared.NewDomainError(CodeBillNotFound, "Bill not found")
	ErrPaymentNotFound = shared.NewDomainError(CodePaymentNotFound, "Payment not found")
)
