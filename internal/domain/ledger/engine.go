package ledger

import (
	"time"

	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
)

// Reconciliation is the full read-only projection of one customer's records
type Reconciliation struct {
	CustomerID  string            `json:"customer_id"`
	GeneratedAt time.Time         `json:"generated_at"`
	Entries     []Entry           `json:"entries"`
	Balance     valueobject.Money `json:"balance"`
	BalanceSign BalanceSign       `json:"balance_sign"`
	Paid        []BillView        `json:"paid_bills"`
	Unpaid      []BillView        `json:"unpaid_bills"`
	Stats       Stats             `json:"stats"`
	DuePayments []DuePayment      `json:"due_payments"`
}

// IsBalanced reports whether the ledger's closing balance ties out to the
// aggregate bill figures. They diverge only when the raw records disagree,
// e.g. recovery payments exceeding a bill's AmountPaid or orphaned payments.
func (r *Reconciliation) IsBalanced() bool {
	return r.Balance.Equals(r.Stats.TotalOutstanding)
}

// Discrepancy is the closing ledger balance minus the aggregate outstanding
func (r *Reconciliation) Discrepancy() valueobject.Money {
	return r.Balance.Sub(r.Stats.TotalOutstanding)
}

// Engine reconciles snapshots. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	now        func() time.Time
	classifier Classifier
	builder    Builder
}

// EngineOption is a functional option for configuring Engine
type EngineOption func(*Engine)

// WithClock sets the clock used for due-date status and missing timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithDueSoonWindow sets how far ahead a due date counts as due soon
func WithDueSoonWindow(window time.Duration) EngineOption {
	return func(e *Engine) {
		e.classifier = NewClassifier(window)
	}
}

// NewEngine creates a new reconciliation engine with optional configuration
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		now:        time.Now,
		classifier: NewClassifier(DefaultDueSoonWindow),
		builder:    NewBuilder(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile builds the ledger and classification from one snapshot.
// The clock is read once, so a single call is internally consistent.
func (e *Engine) Reconcile(s Snapshot) *Reconciliation {
	now := e.now()
	n := NewNormalizer(s, now)

	l := e.builder.Build(n.NormalizeAll(s))
	c := e.classifier.Classify(n, s, now)

	return &Reconciliation{
		CustomerID:  s.CustomerID,
		GeneratedAt: now,
		Entries:     l.Entries,
		Balance:     l.Balance,
		BalanceSign: l.Sign(),
		Paid:        c.Paid,
		Unpaid:      c.Unpaid,
		Stats:       c.Stats,
		DuePayments: c.DuePayments,
	}
}

// BuildLedger returns only the balance-annotated ledger
func (e *Engine) BuildLedger(s Snapshot) Ledger {
	n := NewNormalizer(s, e.now())
	return e.builder.Build(n.NormalizeAll(s))
}

// Classify returns only the paid/unpaid partition and derived views
func (e *Engine) Classify(s Snapshot) Classification {
	now := e.now()
	return e.classifier.Classify(NewNormalizer(s, now), s, now)
}
