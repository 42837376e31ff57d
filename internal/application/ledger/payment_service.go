package ledger

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/erp/customer-ledger/internal/infrastructure/logger"
	"github.com/erp/customer-ledger/internal/infrastructure/telemetry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Payment write operations, used as metric and span labels
const (
	OperationCreate = "create"
	OperationUpdate = "update"
	OperationDelete = "delete"
)

// PaymentService manages recovery payments. Every write moves the affected
// bills' cumulative AmountPaid in the same transaction and is followed by a
// full recomputation of the customer's ledger.
type PaymentService struct {
	scope    TransactionScope
	ledgers  *LedgerService
	validate *validator.Validate
	metrics  *telemetry.LedgerMetrics
	now      func() time.Time
	newID    func() string
}

// PaymentServiceOption configures a PaymentService
type PaymentServiceOption func(*PaymentService)

// WithPaymentClock sets the clock used when a payment has no explicit date
func WithPaymentClock(now func() time.Time) PaymentServiceOption {
	return func(s *PaymentService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator sets the payment id generator
func WithIDGenerator(newID func() string) PaymentServiceOption {
	return func(s *PaymentService) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithPaymentMetrics sets the ledger metrics for payment writes
func WithPaymentMetrics(metrics *telemetry.LedgerMetrics) PaymentServiceOption {
	return func(s *PaymentService) {
		s.metrics = metrics
	}
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(scope TransactionScope, ledgers *LedgerService, opts ...PaymentServiceOption) *PaymentService {
	s := &PaymentService{
		scope:    scope,
		ledgers:  ledgers,
		validate: newCommandValidator(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newCommandValidator validates decimals as float64 so numeric tags like gt=0 apply
func newCommandValidator() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// RecordPayment records a recovery payment against one of the customer's bills
func (s *PaymentService) RecordPayment(ctx context.Context, cmd RecordPaymentCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "record_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, cmd.CustomerID,
		telemetry.SpanAttrBillID, cmd.SaleID,
	)

	amount, err := s.checkAmount(cmd, cmd.Amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrAmount, amount.String())

	var payment *ledger.Payment
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		bill, err := customerBill(ctx, repos.BillRepo(), cmd.CustomerID, cmd.SaleID)
		if err != nil {
			return err
		}

		p := &ledger.Payment{
			ID:            s.newID(),
			CustomerID:    cmd.CustomerID,
			SaleID:        bill.ID,
			Amount:        valueobject.AmountOf(amount),
			CreatedAt:     valueobject.TimeOf(s.paidAt(cmd.PaidAt)),
			PaymentMethod: cmd.PaymentMethod,
			Notes:         cmd.Notes,
		}
		if err := repos.PaymentRepo().Save(ctx, p); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		if err := repos.BillRepo().AdjustAmountPaid(ctx, bill.ID, amount); err != nil {
			return fmt.Errorf("failed to update bill amount paid: %w", err)
		}
		payment = p
		return nil
	})
	s.metrics.RecordPaymentWrite(ctx, OperationCreate, err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span, telemetry.SpanAttrPaymentID, payment.ID)
	logger.L(withCustomer(ctx, cmd.CustomerID)).Info("Recovery payment recorded",
		zap.String("payment_id", payment.ID),
		zap.String("bill_id", payment.SaleID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return s.result(ctx, cmd.CustomerID, payment)
}

// UpdatePayment edits a payment's amount, bill, date or notes
func (s *PaymentService) UpdatePayment(ctx context.Context, cmd UpdatePaymentCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "update_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, cmd.CustomerID,
		telemetry.SpanAttrPaymentID, cmd.PaymentID,
	)

	amount, err := s.checkAmount(cmd, cmd.Amount)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrAmount, amount.String())

	var payment *ledger.Payment
	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		bills := repos.BillRepo()
		p, err := customerPayment(ctx, repos.PaymentRepo(), cmd.CustomerID, cmd.PaymentID)
		if err != nil {
			return err
		}

		targetID := p.SaleID
		if cmd.SaleID != "" {
			targetID = cmd.SaleID
		}
		target, err := customerBill(ctx, bills, cmd.CustomerID, targetID)
		if err != nil {
			return err
		}

		previous := valueobject.Round2(p.Amount.Decimal())
		if p.SaleID == target.ID {
			if delta := amount.Sub(previous); !delta.IsZero() {
				if err := bills.AdjustAmountPaid(ctx, target.ID, delta); err != nil {
					return fmt.Errorf("failed to update bill amount paid: %w", err)
				}
			}
		} else {
			if err := releaseFromBill(ctx, bills, cmd.CustomerID, p.SaleID, previous); err != nil {
				return err
			}
			if err := bills.AdjustAmountPaid(ctx, target.ID, amount); err != nil {
				return fmt.Errorf("failed to update bill amount paid: %w", err)
			}
		}

		p.SaleID = target.ID
		p.Amount = valueobject.AmountOf(amount)
		if cmd.PaidAt != nil {
			p.CreatedAt = valueobject.TimeOf(*cmd.PaidAt)
		}
		if cmd.PaymentMethod != nil {
			p.PaymentMethod = *cmd.PaymentMethod
		}
		if cmd.Notes != nil {
			p.Notes = *cmd.Notes
		}
		if err := repos.PaymentRepo().Save(ctx, p); err != nil {
			return fmt.Errorf("failed to save payment: %w", err)
		}
		payment = p
		return nil
	})
	s.metrics.RecordPaymentWrite(ctx, OperationUpdate, err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(withCustomer(ctx, cmd.CustomerID)).Info("Recovery payment updated",
		zap.String("payment_id", payment.ID),
		zap.String("bill_id", payment.SaleID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return s.result(ctx, cmd.CustomerID, payment)
}

// DeletePayment removes a payment and takes its amount back off the bill
func (s *PaymentService) DeletePayment(ctx context.Context, cmd DeletePaymentCommand) (*PaymentResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "payment", "delete_payment")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, cmd.CustomerID,
		telemetry.SpanAttrPaymentID, cmd.PaymentID,
	)

	if err := s.validate.Struct(cmd); err != nil {
		verr := validationError(err)
		telemetry.RecordError(span, verr)
		return nil, verr
	}

	var payment *ledger.Payment
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		p, err := customerPayment(ctx, repos.PaymentRepo(), cmd.CustomerID, cmd.PaymentID)
		if err != nil {
			return err
		}
		if err := releaseFromBill(ctx, repos.BillRepo(), cmd.CustomerID, p.SaleID, valueobject.Round2(p.Amount.Decimal())); err != nil {
			return err
		}
		if err := repos.PaymentRepo().Delete(ctx, p.ID); err != nil {
			return fmt.Errorf("failed to delete payment: %w", err)
		}
		payment = p
		return nil
	})
	s.metrics.RecordPaymentWrite(ctx, OperationDelete, err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	logger.L(withCustomer(ctx, cmd.CustomerID)).Info("Recovery payment deleted",
		zap.String("payment_id", payment.ID),
		zap.String("bill_id", payment.SaleID),
	)
	return s.result(ctx, cmd.CustomerID, payment)
}

// checkAmount validates the command and returns the amount rounded to cents
// checkAmount bounds raw before anything formats or converts it
func (s *PaymentService) checkAmount(cmd any, raw decimal.Decimal) (decimal.Decimal, error) {
	if !valueobject.InAmountRange(raw) {
		return decimal.Zero, shared.NewDomainError(shared.CodeValidation, "amount is out of range")
	}
	if err := s.validate.Struct(cmd); err != nil {
		return decimal.Zero, validationError(err)
	}
	amount := valueobject.Round2(raw)
	if !amount.IsPositive() {
		return decimal.Zero, shared.NewDomainError(shared.CodeValidation, "amount must be at least 0.01")
	}
	return amount, nil
}

func (s *PaymentService) paidAt(t *time.Time) time.Time {
	if t != nil && !t.IsZero() {
		return t.UTC()
	}
	return s.now().UTC()
}

// result recomputes the whole ledger after a write
func (s *PaymentService) result(ctx context.Context, customerID string, payment *ledger.Payment) (*PaymentResult, error) {
	l, err := s.ledgers.GetCustomerLedger(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("payment saved but ledger recomputation failed: %w", err)
	}
	return &PaymentResult{Payment: payment, Ledger: l}, nil
}

// customerBill loads a bill and checks it belongs to the customer
func customerBill(ctx context.Context, bills ledger.BillRepository, customerID, billID string) (*ledger.Bill, error) {
	bill, err := bills.FindByID(ctx, billID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bill: %w", err)
	}
	if bill == nil || bill.CustomerID != customerID {
		return nil, ledger.ErrBillNotFound
	}
	return bill, nil
}

// customerPayment loads a payment and checks it belongs to the customer
func customerPayment(ctx context.Context, payments ledger.PaymentRepository, customerID, paymentID string) (*ledger.Payment, error) {
	p, err := payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	if p == nil || p.CustomerID != customerID {
		return nil, ledger.ErrPaymentNotFound
	}
	return p, nil
}

// releaseFromBill takes amount back off a bill. Orphaned payments have no bill to adjust.
func releaseFromBill(ctx context.Context, bills ledger.BillRepository, customerID, billID string, amount decimal.Decimal) error {
	if billID == "" {
		return nil
	}
	_, err := customerBill(ctx, bills, customerID, billID)
	if errors.Is(err, ledger.ErrBillNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := bills.AdjustAmountPaid(ctx, billID, amount.Neg()); err != nil {
		return fmt.Errorf("failed to update bill amount paid: %w", err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return shared.NewDomainError(shared.CodeValidation,
			fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()))
	}
	return shared.NewDomainError(shared.CodeValidation, err.Error())
}
