package ledger

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reconcileSeeded(t *testing.T) *ledger.Reconciliation {
	t.Helper()
	store := newMemoryStore()
	seedCustomer(store)
	svc := newTestLedgerService(store)
	snap, err := svc.LoadSnapshot(context.Background(), "c1")
	require.NoError(t, err)
	return svc.Reconcile(context.Background(), snap)
}

func timePtr(t time.Time) *time.Time { return &t }

func TestParseStatementFormat(t *testing.T) {
	for in, want := range map[string]StatementFormat{
		"":      FormatJSON,
		"json":  FormatJSON,
		" CSV ": FormatCSV,
		"text":  FormatText,
	} {
		got, err := ParseStatementFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseStatementFormat("pdf")
	assert.Error(t, err)
}

func TestNewStatementProjector(t *testing.T) {
	p, err := NewStatementProjector("")
	require.NoError(t, err)
	assert.Equal(t, "en-US", p.Locale().String())

	_, err = NewStatementProjector("not a locale!")
	assert.Error(t, err)
}

func TestStatementProjector_FormatAmount(t *testing.T) {
	p, err := NewStatementProjector("en-US")
	require.NoError(t, err)

	assert.Equal(t, "1,234.50", p.FormatAmount(valueobject.NewMoneyFromFloat(1234.5)))
	assert.Equal(t, "0.00", p.FormatAmount(valueobject.Zero()))
	assert.Equal(t, "-1,234.05", p.FormatAmount(valueobject.NewMoney(decimal.RequireFromString("-1234.05"))))

	// beyond float64 precision every cent is still printed
	assert.Equal(t, "9,999,999,999,999,999.99",
		p.FormatAmount(valueobject.NewMoney(decimal.RequireFromString("9999999999999999.99"))))
	assert.Equal(t, "90,071,992,547,409.93",
		p.FormatAmount(valueobject.NewMoney(decimal.RequireFromString("90071992547409.93"))))

	de, err := NewStatementProjector("de-DE")
	require.NoError(t, err)
	assert.Equal(t, "1.234.567,89", de.FormatAmount(valueobject.NewMoney(decimal.RequireFromString("1234567.89"))))
}

func TestStatementProjector_Project(t *testing.T) {
	rec := reconcileSeeded(t)
	p, err := NewStatementProjector("en-US")
	require.NoError(t, err)

	t.Run("whole history", func(t *testing.T) {
		st := p.Project(rec, Period{})

		require.Len(t, st.Rows, 4)
		assert.Equal(t, "INV-0002", st.Rows[0].Reference)
		assert.Equal(t, "Sale", st.Rows[0].Description)
		assert.Equal(t, "Payment received (bank)", st.Rows[1].Description)
		assert.Equal(t, "Return credited to account", st.Rows[3].Description)

		assert.True(t, st.OpeningBalance.IsZero())
		assert.Equal(t, "1500.00", st.TotalDebit.String())
		assert.Equal(t, "1000.00", st.TotalCredit.String())
		assert.Equal(t, "500.00", st.ClosingBalance.String())
		assert.Equal(t, LabelOutstanding, st.ClosingLabel)
	})

	t.Run("period carries the opening balance", func(t *testing.T) {
		st := p.Project(rec, Period{
			From: timePtr(testNow.Add(-12 * day)),
			To:   timePtr(testNow.Add(-8 * day)),
		})

		require.Len(t, st.Rows, 1)
		assert.Equal(t, "INV-0001", st.Rows[0].Reference)
		assert.True(t, st.OpeningBalance.IsZero())
		assert.Equal(t, "600.00", st.ClosingBalance.String())
	})

	t.Run("opening balance before the period", func(t *testing.T) {
		st := p.Project(rec, Period{From: timePtr(testNow.Add(-17 * day))})

		assert.Equal(t, "200.00", st.OpeningBalance.String())
		assert.Equal(t, LabelOutstanding, st.OpeningLabel)
		require.Len(t, st.Rows, 3)
		assert.Equal(t, "500.00", st.ClosingBalance.String())
	})

	t.Run("credit balance label", func(t *testing.T) {
		st := p.Project(&ledger.Reconciliation{
			CustomerID: "c9",
			Entries: []ledger.Entry{{
				Kind: ledger.EntryKindBill, ID: "b1", Date: testNow,
				Debit:        valueobject.NewMoneyFromInt(500),
				Credit:       valueobject.NewMoneyFromInt(700),
				BalanceAfter: valueobject.NewMoneyFromInt(-200),
			}},
			Balance: valueobject.NewMoneyFromInt(-200),
		}, Period{})

		assert.Equal(t, LabelCredit, st.ClosingLabel)
		assert.Equal(t, "200.00", st.DisplayClosing.String())
		assert.Equal(t, LabelCredit, st.Rows[0].BalanceLabel)
		assert.Equal(t, "200.00", st.Rows[0].Balance.String())
	})
}

func TestPeriod_Validate(t *testing.T) {
	assert.NoError(t, Period{}.Validate())
	assert.Error(t, Period{
		From: timePtr(testNow),
		To:   timePtr(testNow.Add(-day)),
	}.Validate())
}

func TestStatementProjector_WriteCSV(t *testing.T) {
	rec := reconcileSeeded(t)
	p, err := NewStatementProjector("en-US")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.WriteCSV(&buf, p.Project(rec, Period{From: timePtr(testNow.Add(-17 * day))})))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6)

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "Opening balance", records[1][3])
	assert.Equal(t, "200.00", records[1][6])
	assert.Equal(t, []string{
		testNow.Add(-10 * day).Format(time.DateOnly),
		"bill", "INV-0001", "Sale", "1000.00", "400.00", "600.00", "Outstanding",
	}, records[3])
	assert.Equal(t, []string{"", "", "", "Closing balance", "1000.00", "700.00", "500.00", "Outstanding"}, records[5])
}

func TestStatementProjector_WriteText(t *testing.T) {
	rec := reconcileSeeded(t)
	p, err := NewStatementProjector("en-US")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, p.WriteText(&buf, p.Project(rec, Period{})))
	out := buf.String()

	assert.Contains(t, out, "Statement for customer c1")
	assert.Contains(t, out, "INV-0001")
	assert.Contains(t, out, "1,000.00")
	assert.Contains(t, out, "Closing balance")
	assert.Equal(t, 9, strings.Count(out, "\n"))
}

func TestLedgerService_ExportStatement(t *testing.T) {
	store := newMemoryStore()
	seedCustomer(store)
	svc := newTestLedgerService(store)
	ctx := context.Background()

	st, err := svc.GetStatement(ctx, "c1", Period{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportStatement(ctx, &buf, st, FormatJSON))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "c1", decoded["customer_id"])
	assert.Equal(t, "500.00", decoded["closing_balance"])

	_, err = svc.GetStatement(ctx, "c1", Period{From: timePtr(testNow), To: timePtr(testNow.Add(-day))})
	assert.Error(t, err)
}

func TestParsePeriod(t *testing.T) {
	t.Run("empty bounds stay open", func(t *testing.T) {
		p, err := ParsePeriod("", "")
		require.NoError(t, err)
		assert.Nil(t, p.From)
		assert.Nil(t, p.To)
	})

	t.Run("date-only to ends the day", func(t *testing.T) {
		p, err := ParsePeriod("2026-10-01", "2026-10-01")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), *p.From)
		assert.Equal(t, time.Date(2026, 10, 1, 23, 59, 59, 999999999, time.UTC), *p.To)
	})

	t.Run("rfc3339 to is exact", func(t *testing.T) {
		p, err := ParsePeriod("", "2026-10-01T10:00:00Z")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC), *p.To)
	})

	t.Run("invalid to", func(t *testing.T) {
		_, err := ParsePeriod("", "10/01/2026")
		assert.Error(t, err)
	})
}
