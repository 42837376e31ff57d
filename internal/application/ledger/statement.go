package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// StatementFormat is an export format for statements
type StatementFormat string

const (
	FormatJSON StatementFormat = "json"
	FormatCSV  StatementFormat = "csv"
	FormatText StatementFormat = "text"
)

// ParseStatementFormat parses a format name; empty means json
func ParseStatementFormat(s string) (StatementFormat, error) {
	switch f := StatementFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatText:
		return f, nil
	default:
		return "", shared.NewDomainError(shared.CodeInvalidInput, "format must be one of: json, csv, text")
	}
}

// Period limits a statement to entries dated within [From, To]. Nil bounds are open.
type Period struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
}

// Validate checks that From is not after To
func (p Period) Validate() error {
	if p.From != nil && p.To != nil && p.From.After(*p.To) {
		return shared.NewDomainError(shared.CodeInvalidInput, "from must not be after to")
	}
	return nil
}

func (p Period) before(t time.Time) bool {
	return p.From != nil && t.Before(*p.From)
}

func (p Period) after(t time.Time) bool {
	return p.To != nil && t.After(*p.To)
}

// StatementRow is one ledger entry in statement form
type StatementRow struct {
	Date         time.Time         `json:"date"`
	Kind         ledger.EntryKind  `json:"kind"`
	Reference    string            `json:"reference"`
	Description  string            `json:"description"`
	Debit        valueobject.Money `json:"debit"`
	Credit       valueobject.Money `json:"credit"`
	Balance      valueobject.Money `json:"balance"`
	BalanceLabel string            `json:"balance_label"`
	BalanceAfter valueobject.Money `json:"balance_after"`
}

// Statement is a customer statement, oldest row first
type Statement struct {
	CustomerID     string            `json:"customer_id"`
	GeneratedAt    time.Time         `json:"generated_at"`
	Period         Period            `json:"period"`
	OpeningBalance valueobject.Money `json:"opening_balance"`
	OpeningLabel   string            `json:"opening_label"`
	Rows           []StatementRow    `json:"rows"`
	TotalDebit     valueobject.Money `json:"total_debit"`
	TotalCredit    valueobject.Money `json:"total_credit"`
	ClosingBalance valueobject.Money `json:"closing_balance"`
	ClosingLabel   string            `json:"closing_label"`
	DisplayClosing valueobject.Money `json:"display_closing"`
	Stats          ledger.Stats      `json:"stats"`
}

// StatementProjector renders reconciliations as statements
type StatementProjector struct {
	locale  language.Tag
	printer *message.Printer
}

// NewStatementProjector creates a projector that formats amounts for locale, e.g. "en-US"
func NewStatementProjector(locale string) (*StatementProjector, error) {
	tag := language.AmericanEnglish
	if locale != "" {
		parsed, err := language.Parse(locale)
		if err != nil {
			return nil, fmt.Errorf("invalid statement locale %q: %w", locale, err)
		}
		tag = parsed
	}
	return &StatementProjector{
		locale:  tag,
		printer: message.NewPrinter(tag),
	}, nil
}

// Locale returns the projector's language tag
func (p *StatementProjector) Locale() language.Tag {
	return p.locale
}

// Project builds a statement. With a period, the opening balance is the
// balance after the last entry before From and the closing balance is the
// balance after the last entry up to To.
func (p *StatementProjector) Project(rec *ledger.Reconciliation, period Period) *Statement {
	opening := valueobject.Zero()
	closing := valueobject.Zero()
	totalDebit := valueobject.Zero()
	totalCredit := valueobject.Zero()
	rows := make([]StatementRow, 0, len(rec.Entries))

	l := ledger.Ledger{Entries: rec.Entries, Balance: rec.Balance}
	for _, e := range l.Ascending() {
		if period.after(e.Date) {
			break
		}
		closing = e.BalanceAfter
		if period.before(e.Date) {
			opening = e.BalanceAfter
			continue
		}
		rows = append(rows, toStatementRow(e))
		totalDebit = totalDebit.Add(e.Debit)
		totalCredit = totalCredit.Add(e.Credit)
	}

	return &Statement{
		CustomerID:     rec.CustomerID,
		GeneratedAt:    rec.GeneratedAt,
		Period:         period,
		OpeningBalance: opening,
		OpeningLabel:   BalanceLabel(ledger.SignOf(opening)),
		Rows:           rows,
		TotalDebit:     totalDebit,
		TotalCredit:    totalCredit,
		ClosingBalance: closing,
		ClosingLabel:   BalanceLabel(ledger.SignOf(closing)),
		DisplayClosing: closing.Abs(),
		Stats:          rec.Stats,
	}
}

func toStatementRow(e ledger.Entry) StatementRow {
	row := StatementRow{
		Date:         e.Date,
		Kind:         e.Kind,
		Reference:    e.ID,
		Debit:        e.Debit,
		Credit:       e.Credit,
		Balance:      e.BalanceAfter.Abs(),
		BalanceLabel: BalanceLabel(e.BalanceSign()),
		BalanceAfter: e.BalanceAfter,
	}

	switch {
	case e.Bill != nil:
		if e.Bill.BillNumber != "" {
			row.Reference = e.Bill.BillNumber
		}
		row.Description = "Sale"
		if e.Bill.IsManualBalance {
			row.Description = "Opening balance"
		}
	case e.Payment != nil:
		row.Description = "Payment received"
		if e.Payment.PaymentMethod != "" {
			row.Description += " (" + e.Payment.PaymentMethod + ")"
		}
	case e.Return != nil:
		if e.Return.RefundMethod.IsCredited() {
			row.Description = "Return credited to account"
		} else {
			row.Description = "Return refunded in cash"
		}
	}
	return row
}

// maxGroupedAmount bounds the amounts whose integer part fits an int64
var maxGroupedAmount = decimal.New(1, 18)

// FormatAmount formats an amount with the locale's grouping and two decimals.
// The integer part is printed from an int64 and only the cents pass through a
// float, so every cent survives for any stored amount.
func (p *StatementProjector) FormatAmount(m valueobject.Money) string {
	abs := m.Abs().Amount()
	if abs.GreaterThanOrEqual(maxGroupedAmount) {
		return m.Amount().StringFixed(valueobject.CentPlaces)
	}
	whole := abs.Truncate(0)
	cents := abs.Sub(whole).Shift(valueobject.CentPlaces).IntPart()

	// "0.05" in the locale's digits; keep the separator and the cents
	frac := p.printer.Sprintf("%.2f", float64(cents)/100)
	if i := strings.IndexFunc(frac, func(r rune) bool { return !unicode.IsDigit(r) }); i >= 0 {
		frac = frac[i:]
	}

	sign := ""
	if m.IsNegative() {
		sign = "-"
	}
	return sign + p.printer.Sprint(number.Decimal(whole.IntPart())) + frac
}

// formatColumn leaves zero amounts blank so a row shows only its own column
func (p *StatementProjector) formatColumn(m valueobject.Money) string {
	if m.IsZero() {
		return ""
	}
	return p.FormatAmount(m)
}

var csvHeader = []string{"Date", "Type", "Reference", "Description", "Debit", "Credit", "Balance", "Balance Type"}

// WriteCSV writes the statement as CSV. Amounts are plain decimals so the file stays machine readable.
func (p *StatementProjector) WriteCSV(w io.Writer, st *Statement) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	if st.Period.From != nil {
		if err := cw.Write([]string{
			st.Period.From.Format(time.DateOnly), "", "", "Opening balance", "", "",
			st.OpeningBalance.Abs().String(), st.OpeningLabel,
		}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	for _, r := range st.Rows {
		if err := cw.Write([]string{
			r.Date.Format(time.DateOnly),
			string(r.Kind),
			r.Reference,
			r.Description,
			r.Debit.String(),
			r.Credit.String(),
			r.Balance.String(),
			r.BalanceLabel,
		}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	if err := cw.Write([]string{
		"", "", "", "Closing balance",
		st.TotalDebit.String(), st.TotalCredit.String(),
		st.DisplayClosing.String(), st.ClosingLabel,
	}); err != nil {
		return fmt.Errorf("failed to write csv row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// WriteText writes the statement as an aligned plain-text table
func (p *StatementProjector) WriteText(w io.Writer, st *Statement) error {
	if _, err := fmt.Fprintf(w, "Statement for customer %s\n", st.CustomerID); err != nil {
		return err
	}
	if st.Period.From != nil || st.Period.To != nil {
		if _, err := fmt.Fprintf(w, "Period: %s to %s\n", periodBound(st.Period.From, "start"), periodBound(st.Period.To, "now")); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Date\tReference\tDescription\tDebit\tCredit\tBalance\t")
	if st.Period.From != nil {
		fmt.Fprintf(tw, "%s\t\tOpening balance\t\t\t%s\t%s\n",
			st.Period.From.Format(time.DateOnly), p.FormatAmount(st.OpeningBalance.Abs()), st.OpeningLabel)
	}
	for _, r := range st.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Date.Format(time.DateOnly),
			r.Reference,
			r.Description,
			p.formatColumn(r.Debit),
			p.formatColumn(r.Credit),
			p.FormatAmount(r.Balance),
			r.BalanceLabel,
		)
	}
	fmt.Fprintf(tw, "\t\tTotal\t%s\t%s\t\t\n", p.FormatAmount(st.TotalDebit), p.FormatAmount(st.TotalCredit))
	fmt.Fprintf(tw, "\t\tClosing balance\t\t\t%s\t%s\n", p.FormatAmount(st.DisplayClosing), st.ClosingLabel)

	return tw.Flush()
}

func periodBound(t *time.Time, open string) string {
	if t == nil {
		return open
	}
	return t.Format(time.DateOnly)
}

// ParsePeriod reads statement bounds given as RFC 3339 or YYYY-MM-DD.
// A date-only upper bound covers that whole day.
func ParsePeriod(from, to string) (Period, error) {
	var period Period
	if from != "" {
		t, _, err := parseBound(from)
		if err != nil {
			return period, shared.Invalidf("invalid from date %q: use RFC 3339 or YYYY-MM-DD", from)
		}
		period.From = &t
	}
	if to != "" {
		t, dateOnly, err := parseBound(to)
		if err != nil {
			return period, shared.Invalidf("invalid to date %q: use RFC 3339 or YYYY-MM-DD", to)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		period.To = &t
	}
	return period, nil
}

func parseBound(s string) (time.Time, bool, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	return t, false, err
}
