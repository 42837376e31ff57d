package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestPaymentService_RecordPayment(t *testing.T) {
	store := newMemoryStore()
	seedCustomer(store)
	svc := newTestPaymentService(store)

	result, err := svc.RecordPayment(context.Background(), RecordPaymentCommand{
		CustomerID:    "c1",
		SaleID:        "b1",
		Amount:        decimal.RequireFromString("250.004"),
		PaymentMethod: "cash",
	})
	require.NoError(t, err)

	require.NotNil(t, result.Payment)
	assert.Equal(t, "pay-a", result.Payment.ID)
	assert.Equal(t, "250", result.Payment.Amount.Decimal().String())
	assert.Equal(t, "b1", result.Payment.SaleID)

	// AmountPaid is cumulative, so the bill moves with the payment
	assert.Equal(t, "650", store.bill("b1").AmountPaid.Decimal().String())

	assert.Equal(t, "250.00", result.Ledger.Balance.String())
	assert.True(t, result.Ledger.Balanced)
	assert.Equal(t, "pay-a", result.Ledger.Entries[0].ID)
	assert.Equal(t, testNow, result.Ledger.Entries[0].Date)
}

func TestPaymentService_RecordPayment_Rejects(t *testing.T) {
	tests := []struct {
		name string
		cmd  RecordPaymentCommand
		code string
	}{
		{
			name: "zero amount",
			cmd:  RecordPaymentCommand{CustomerID: "c1", SaleID: "b1", Amount: decimal.Zero},
			code: "VALIDATION_ERROR",
		},
		{
			name: "negative amount",
			cmd:  RecordPaymentCommand{CustomerID: "c1", SaleID: "b1", Amount: decimal.NewFromInt(-5)},
			code: "VALIDATION_ERROR",
		},
		{
			name: "rounds to zero",
			cmd:  RecordPaymentCommand{CustomerID: "c1", SaleID: "b1", Amount: decimal.RequireFromString("0.004")},
			code: "VALIDATION_ERROR",
		},
		{
			name: "huge exponent",
			cmd:  RecordPaymentCommand{CustomerID: "c1", SaleID: "b1", Amount: decimal.New(1, 2000000000)},
			code: "VALIDATION_ERROR",
		},
		{
			name: "more integer digits than a stored amount",
			cmd:  RecordPaymentCommand{CustomerID: "c1", SaleID: "b1", Amount: decimal.RequireFromString("12345678901234567")},
			code: "VALIDATION_ERROR",
		},
		{
			name: "missing sale id",
			cmd:  RecordPaymentCommand{CustomerID: "c1", Amount: decimal.NewFromInt(5)},
			code: "VALIDATION_ERROR",
		},
		{
			name: "unknown bill",
			cmd:  RecordPaymentCommand{CustomerID: "c1", SaleID: "nope", Amount: decimal.NewFromInt(5)},
			code: ledger.CodeBillNotFound,
		},
		{
			name: "bill of another customer",
			cmd:  RecordPaymentCommand{CustomerID: "c1", SaleID: "x1", Amount: decimal.NewFromInt(5)},
			code: ledger.CodeBillNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			seedCustomer(store)
			svc := newTestPaymentService(store)

			_, err := svc.RecordPayment(context.Background(), tt.cmd)
			require.Error(t, err)
			var domainErr *shared.DomainError
			require.ErrorAs(t, err, &domainErr)
			assert.Equal(t, tt.code, domainErr.Code)
			assert.Equal(t, 1, store.paymentCount())
			assert.Equal(t, "400", store.bill("b1").AmountPaid.Decimal().String())
		})
	}
}

func TestPaymentService_RecordPayment_SaveFails(t *testing.T) {
	store := newMemoryStore()
	seedCustomer(store)
	store.saveErr = errors.New("disk full")
	svc := newTestPaymentService(store)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentCommand{
		CustomerID: "c1", SaleID: "b1", Amount: decimal.NewFromInt(10),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to save payment")
	assert.Equal(t, "400", store.bill("b1").AmountPaid.Decimal().String())
}

func TestPaymentService_UpdatePayment(t *testing.T) {
	t.Run("same bill moves by the difference", func(t *testing.T) {
		store := newMemoryStore()
		seedCustomer(store)
		svc := newTestPaymentService(store)

		result, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
			CustomerID: "c1",
			PaymentID:  "p1",
			Amount:     decimal.NewFromInt(150),
			Notes:      strPtr("partial reversal"),
		})
		require.NoError(t, err)

		assert.Equal(t, "450", store.bill("b2").AmountPaid.Decimal().String())
		assert.Equal(t, "partial reversal", result.Payment.Notes)
		assert.Equal(t, "bank", result.Payment.PaymentMethod)
		// b2 now shows 300 at the till, 150 recovered, 50 outstanding
		assert.Equal(t, "550.00", result.Ledger.Balance.String())
		assert.True(t, result.Ledger.Balanced)
	})

	t.Run("out of range amount", func(t *testing.T) {
		store := newMemoryStore()
		seedCustomer(store)
		svc := newTestPaymentService(store)

		_, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
			CustomerID: "c1",
			PaymentID:  "p1",
			Amount:     decimal.New(5, 2000000000),
		})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, shared.CodeValidation, domainErr.Code)
		assert.Equal(t, "500", store.bill("b2").AmountPaid.Decimal().String())
	})

	t.Run("moving to another bill", func(t *testing.T) {
		store := newMemoryStore()
		seedCustomer(store)
		svc := newTestPaymentService(store)

		result, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
			CustomerID: "c1",
			PaymentID:  "p1",
			SaleID:     "b1",
			Amount:     decimal.NewFromInt(200),
		})
		require.NoError(t, err)

		assert.Equal(t, "300", store.bill("b2").AmountPaid.Decimal().String())
		assert.Equal(t, "600", store.bill("b1").AmountPaid.Decimal().String())
		assert.Equal(t, "b1", result.Payment.SaleID)
		assert.Equal(t, "500.00", result.Ledger.Balance.String())
		assert.True(t, result.Ledger.Balanced)
	})

	t.Run("unknown payment", func(t *testing.T) {
		store := newMemoryStore()
		seedCustomer(store)
		svc := newTestPaymentService(store)

		_, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
			CustomerID: "c1", PaymentID: "missing", Amount: decimal.NewFromInt(1),
		})
		assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
	})

	t.Run("payment of another customer", func(t *testing.T) {
		store := newMemoryStore()
		seedCustomer(store)
		svc := newTestPaymentService(store)

		_, err := svc.UpdatePayment(context.Background(), UpdatePaymentCommand{
			CustomerID: "c2", PaymentID: "p1", Amount: decimal.NewFromInt(1),
		})
		assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
	})
}

func TestPaymentService_DeletePayment(t *testing.T) {
	t.Run("takes the amount back off the bill", func(t *testing.T) {
		store := newMemoryStore()
		seedCustomer(store)
		svc := newTestPaymentService(store)

		result, err := svc.DeletePayment(context.Background(), DeletePaymentCommand{
			CustomerID: "c1", PaymentID: "p1",
		})
		require.NoError(t, err)

		assert.Equal(t, 0, store.paymentCount())
		assert.Equal(t, "300", store.bill("b2").AmountPaid.Decimal().String())
		assert.Equal(t, "700.00", result.Ledger.Balance.String())
		assert.Len(t, result.Ledger.Entries, 3)
		assert.True(t, result.Ledger.Balanced)
	})

	t.Run("orphaned payment", func(t *testing.T) {
		store := newMemoryStore()
		store.addPayment(ledger.Payment{
			ID: "p9", CustomerID: "c1", SaleID: "gone", Amount: amt("40"), CreatedAt: at(-day),
		})
		svc := newTestPaymentService(store)

		result, err := svc.DeletePayment(context.Background(), DeletePaymentCommand{
			CustomerID: "c1", PaymentID: "p9",
		})
		require.NoError(t, err)
		assert.Empty(t, result.Ledger.Entries)
	})

	t.Run("missing ids", func(t *testing.T) {
		svc := newTestPaymentService(newMemoryStore())
		_, err := svc.DeletePayment(context.Background(), DeletePaymentCommand{CustomerID: "c1"})
		var domainErr *shared.DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "VALIDATION_ERROR", domainErr.Code)
		assert.Contains(t, domainErr.Message, "payment_id")
	})
}
