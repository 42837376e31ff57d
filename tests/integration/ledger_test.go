//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	ledgerapp "github.com/erp/customer-ledger/internal/application/ledger"
	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/erp/customer-ledger/internal/infrastructure/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	code := m.Run()
	CleanupSharedContainer()
	os.Exit(code)
}

var (
	integrationNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	octFirst       = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
)

type services struct {
	ledgers  *ledgerapp.LedgerService
	payments *ledgerapp.PaymentService
}

func newServices(tdb *TestDB) services {
	var seq atomic.Int64
	ledgers := ledgerapp.NewLedgerService(
		persistence.NewGormBillRepository(tdb.DB),
		persistence.NewGormPaymentRepository(tdb.DB),
		persistence.NewGormReturnRepository(tdb.DB),
		ledgerapp.WithEngine(ledger.NewEngine(ledger.WithClock(func() time.Time { return integrationNow }))),
	)
	payments := ledgerapp.NewPaymentService(
		persistence.NewGormTransactionScope(tdb.DB),
		ledgers,
		ledgerapp.WithPaymentClock(func() time.Time { return integrationNow }),
		ledgerapp.WithIDGenerator(func() string { return fmt.Sprintf("pay-%d", seq.Add(1)) }),
	)
	return services{ledgers: ledgers, payments: payments}
}

func seed(t *testing.T, tdb *TestDB) {
	t.Helper()
	ctx := context.Background()
	bills := persistence.NewGormBillRepository(tdb.DB)
	returns := persistence.NewGormReturnRepository(tdb.DB)

	require.NoError(t, bills.Save(ctx, &ledger.Bill{
		ID: "b1", CustomerID: "c1", BillNumber: "INV-1",
		TotalAmount: "1000", AmountPaid: "400",
		CreatedAt: valueobject.TimeOf(octFirst),
		DueDate:   valueobject.TimeOf(octFirst.Add(14 * 24 * time.Hour)),
		LineItems: []ledger.LineItem{{ProductID: "sku-1", Quantity: "2", Rate: "500", Subtotal: "1000"}},
	}))
	require.NoError(t, bills.Save(ctx, &ledger.Bill{
		ID: "b2", CustomerID: "c1", BillNumber: "OPENING",
		TotalAmount: "250.50", IsManualBalance: true,
		CreatedAt: valueobject.TimeOf(octFirst.Add(-30 * 24 * time.Hour)),
	}))
	require.NoError(t, returns.Save(ctx, &ledger.Return{
		ID: "r1", CustomerID: "c1", SaleID: "b1", TotalRefund: "50",
		RefundMethod: ledger.RefundMethodCredit,
		CreatedAt:    valueobject.TimeOf(octFirst.Add(48 * time.Hour)),
	}))
	require.NoError(t, returns.Save(ctx, &ledger.Return{
		ID: "r2", CustomerID: "c1", SaleID: "b1", TotalRefund: "30",
		RefundMethod: ledger.RefundMethodCash,
		CreatedAt:    valueobject.TimeOf(octFirst.Add(72 * time.Hour)),
	}))
}

func TestLedger_ReadsFromPostgres(t *testing.T) {
	tdb := NewTestDB(t)
	seed(t, tdb)
	svc := newServices(tdb)

	l, err := svc.ledgers.GetCustomerLedger(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, "800.50", l.Balance.String())
	assert.Equal(t, ledger.BalanceOwed, l.BalanceSign)
	assert.True(t, l.Balanced)
	require.Len(t, l.Entries, 4)
	assert.Equal(t, "b2", l.Entries[0].ID)
	assert.Equal(t, 2, l.Stats.UnpaidBills)
	assert.Equal(t, 2, l.Stats.TotalReturns)
	assert.Equal(t, "50.00", l.Stats.TotalReturnCredits.String())
}

func TestPayments_Lifecycle(t *testing.T) {
	tdb := NewTestDB(t)
	seed(t, tdb)
	svc := newServices(tdb)
	ctx := context.Background()

	res, err := svc.payments.RecordPayment(ctx, ledgerapp.RecordPaymentCommand{
		CustomerID: "c1", SaleID: "b1", Amount: decimal.RequireFromString("200"),
	})
	require.NoError(t, err)
	assert.Equal(t, "600.50", res.Ledger.Balance.String())

	bill, err := persistence.NewGormBillRepository(tdb.DB).FindByID(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "600", bill.AmountPaid.Decimal().String())

	res, err = svc.payments.UpdatePayment(ctx, ledgerapp.UpdatePaymentCommand{
		CustomerID: "c1", PaymentID: res.Payment.ID, SaleID: "b2", Amount: decimal.RequireFromString("250.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, "550.00", res.Ledger.Balance.String())
	assert.Equal(t, 1, res.Ledger.Stats.PaidBills)

	res, err = svc.payments.DeletePayment(ctx, ledgerapp.DeletePaymentCommand{CustomerID: "c1", PaymentID: res.Payment.ID})
	require.NoError(t, err)
	assert.Equal(t, "800.50", res.Ledger.Balance.String())

	_, err = svc.payments.DeletePayment(ctx, ledgerapp.DeletePaymentCommand{CustomerID: "c1", PaymentID: res.Payment.ID})
	assert.ErrorIs(t, err, ledger.ErrPaymentNotFound)
}

func TestPayments_FailedWriteRollsBack(t *testing.T) {
	tdb := NewTestDB(t)
	seed(t, tdb)
	svc := newServices(tdb)
	ctx := context.Background()

	_, err := svc.payments.RecordPayment(ctx, ledgerapp.RecordPaymentCommand{
		CustomerID: "c2", SaleID: "b1", Amount: decimal.RequireFromString("10"),
	})
	assert.ErrorIs(t, err, ledger.ErrBillNotFound)

	var count int64
	require.NoError(t, tdb.DB.Table("payments").Count(&count).Error)
	assert.Zero(t, count)
}

func TestPayments_ConcurrentWritesKeepAmountPaid(t *testing.T) {
	tdb := NewTestDB(t)
	seed(t, tdb)
	svc := newServices(tdb)

	const writers = 8
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < writers; i++ {
		g.Go(func() error {
			_, err := svc.payments.RecordPayment(ctx, ledgerapp.RecordPaymentCommand{
				CustomerID: "c1", SaleID: "b1", Amount: decimal.RequireFromString("10.25"),
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	bill, err := persistence.NewGormBillRepository(tdb.DB).FindByID(context.Background(), "b1")
	require.NoError(t, err)
	assert.Equal(t, "482", bill.AmountPaid.Decimal().String())

	l, err := svc.ledgers.GetCustomerLedger(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "718.50", l.Balance.String())
	assert.True(t, l.Balanced)
}

func TestStatement_Period(t *testing.T) {
	tdb := NewTestDB(t)
	seed(t, tdb)
	svc := newServices(tdb)

	period, err := ledgerapp.ParsePeriod("2026-10-02", "2026-10-31")
	require.NoError(t, err)

	st, err := svc.ledgers.GetStatement(context.Background(), "c1", period)
	require.NoError(t, err)
	assert.Equal(t, "850.50", st.OpeningBalance.String())
	require.Len(t, st.Rows, 2)
	assert.Equal(t, "800.50", st.DisplayClosing.String())
}
