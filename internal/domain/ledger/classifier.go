package ledger

import (
	"sort"
	"time"

	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
)

// DefaultDueSoonWindow is how far ahead an unpaid due date counts as due soon
const DefaultDueSoonWindow = 7 * 24 * time.Hour

// DueStatus describes an unpaid bill's due date relative to now
type DueStatus string

const (
	DueStatusOverdue DueStatus = "overdue"
	DueStatusDueSoon DueStatus = "due_soon"
	DueStatusNormal  DueStatus = "normal"
)

// BillView is a classified bill
type BillView struct {
	Settlement
	BillNumber      string     `json:"bill_number,omitempty"`
	Status          BillStatus `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	IsManualBalance bool       `json:"is_manual_balance"`
	Notes           string     `json:"notes,omitempty"`
}

// DuePayment is an unpaid bill with a due date
type DuePayment struct {
	Bill         BillView          `json:"bill"`
	DueDate      time.Time         `json:"due_date"`
	Outstanding  valueobject.Money `json:"outstanding"`
	Status       DueStatus         `json:"status"`
	DaysUntilDue int               `json:"days_until_due"`
}

// Stats are aggregate figures over every bill and return of a customer.
// TotalOutstanding is signed: negative means the customer holds a credit.
type Stats struct {
	TotalBills         int               `json:"total_bills"`
	PaidBills          int               `json:"paid_bills"`
	UnpaidBills        int               `json:"unpaid_bills"`
	TotalPurchases     valueobject.Money `json:"total_purchases"`
	TotalPaid          valueobject.Money `json:"total_paid"`
	TotalReturnCredits valueobject.Money `json:"total_return_credits"`
	TotalReturns       int               `json:"total_returns"`
	TotalOutstanding   valueobject.Money `json:"total_outstanding"`
	DisplayOutstanding valueobject.Money `json:"display_outstanding"`
	HasCredit          bool              `json:"has_credit"`
	BalanceSign        BalanceSign       `json:"balance_sign"`
}

// Classification is the paid/unpaid partition plus derived views
type Classification struct {
	Paid        []BillView   `json:"paid"`
	Unpaid      []BillView   `json:"unpaid"`
	Stats       Stats        `json:"stats"`
	DuePayments []DuePayment `json:"due_payments"`
}

// Classifier partitions bills using the same settlement as the ledger builder
type Classifier struct {
	dueSoonWindow time.Duration
}

// NewClassifier creates a classifier; a non-positive window falls back to the default
func NewClassifier(dueSoonWindow time.Duration) Classifier {
	if dueSoonWindow <= 0 {
		dueSoonWindow = DefaultDueSoonWindow
	}
	return Classifier{dueSoonWindow: dueSoonWindow}
}

// Classify splits the snapshot's bills and computes stats and due payments as of now
func (c Classifier) Classify(n *Normalizer, s Snapshot, now time.Time) Classification {
	result := Classification{
		Paid:        make([]BillView, 0),
		Unpaid:      make([]BillView, 0),
		DuePayments: make([]DuePayment, 0),
	}

	stats := Stats{
		TotalBills:         len(s.Bills),
		TotalPurchases:     valueobject.Zero(),
		TotalPaid:          valueobject.Zero(),
		TotalReturnCredits: valueobject.Zero(),
		TotalReturns:       len(s.Returns),
	}

	for _, b := range s.Bills {
		settlement := n.Settle(b)
		view := BillView{
			Settlement:      settlement,
			BillNumber:      b.BillNumber,
			Status:          settlement.Status(),
			CreatedAt:       n.Date(b.CreatedAt),
			DueDate:         n.DueDate(b.DueDate),
			IsManualBalance: b.IsManualBalance,
			Notes:           b.Notes,
		}

		stats.TotalPurchases = stats.TotalPurchases.Add(settlement.TotalAmount)
		stats.TotalPaid = stats.TotalPaid.Add(settlement.AmountPaid)

		if settlement.IsPaid() {
			result.Paid = append(result.Paid, view)
			continue
		}
		result.Unpaid = append(result.Unpaid, view)
		if view.DueDate != nil {
			result.DuePayments = append(result.DuePayments, c.duePayment(view, now))
		}
	}

	for _, r := range s.Returns {
		stats.TotalReturnCredits = stats.TotalReturnCredits.Add(r.CreditedRefund())
	}

	stats.PaidBills = len(result.Paid)
	stats.UnpaidBills = len(result.Unpaid)
	stats.TotalOutstanding = stats.TotalPurchases.Sub(stats.TotalPaid).Sub(stats.TotalReturnCredits)
	stats.DisplayOutstanding = stats.TotalOutstanding.Abs()
	stats.HasCredit = stats.TotalOutstanding.IsNegative()
	stats.BalanceSign = SignOf(stats.TotalOutstanding)
	result.Stats = stats

	sortBillViews(result.Paid)
	sortBillViews(result.Unpaid)
	sort.SliceStable(result.DuePayments, func(i, j int) bool {
		a, b := result.DuePayments[i], result.DuePayments[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.Bill.BillID < b.Bill.BillID
	})

	return result
}

func (c Classifier) duePayment(view BillView, now time.Time) DuePayment {
	due := *view.DueDate
	return DuePayment{
		Bill:         view,
		DueDate:      due,
		Outstanding:  view.Outstanding,
		Status:       c.DueStatus(due, now),
		DaysUntilDue: daysBetween(now, due),
	}
}

// DueStatus is overdue when due is in the past, due soon when it falls
// within the window, and normal otherwise.
func (c Classifier) DueStatus(due, now time.Time) DueStatus {
	switch {
	case due.Before(now):
		return DueStatusOverdue
	case !due.After(now.Add(c.dueSoonWindow)):
		return DueStatusDueSoon
	default:
		return DueStatusNormal
	}
}

// daysBetween counts whole days from now to due, negative when overdue
func daysBetween(now, due time.Time) int {
	d := due.Sub(now)
	days := int(d / (24 * time.Hour))
	if d < 0 && d%(24*time.Hour) != 0 {
		days--
	}
	return days
}

// sortBillViews orders bills newest first, matching the ledger's display order
func sortBillViews(views []BillView) {
	sort.SliceStable(views, func(i, j int) bool {
		a, b := views[i], views[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.BillID < b.BillID
	})
}
