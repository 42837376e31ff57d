// Package ledger serves customer ledgers: it fetches a customer's records,
// reconciles them through the domain engine and projects statements.
// Nothing derived is cached; every read and every write recomputes.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/domain/shared"
	"github.com/erp/customer-ledger/internal/domain/shared/valueobject"
	"github.com/erp/customer-ledger/internal/infrastructure/logger"
	"github.com/erp/customer-ledger/internal/infrastructure/telemetry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchTimeout bounds the concurrent fetch of one customer's records
const DefaultFetchTimeout = 10 * time.Second

// LedgerService reads and reconciles customer ledgers
type LedgerService struct {
	bills        ledger.BillRepository
	payments     ledger.PaymentRepository
	returns      ledger.ReturnRepository
	engine       *ledger.Engine
	metrics      *telemetry.LedgerMetrics
	projector    *StatementProjector
	fetchTimeout time.Duration
}

// LedgerServiceOption configures a LedgerService
type LedgerServiceOption func(*LedgerService)

// WithEngine sets the reconciliation engine
func WithEngine(engine *ledger.Engine) LedgerServiceOption {
	return func(s *LedgerService) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithMetrics sets the ledger metrics. A nil value disables recording.
func WithMetrics(metrics *telemetry.LedgerMetrics) LedgerServiceOption {
	return func(s *LedgerService) {
		s.metrics = metrics
	}
}

// WithFetchTimeout bounds the record fetch; zero or negative disables the bound
func WithFetchTimeout(d time.Duration) LedgerServiceOption {
	return func(s *LedgerService) {
		s.fetchTimeout = d
	}
}

// WithStatementProjector sets the projector used for statements
func WithStatementProjector(projector *StatementProjector) LedgerServiceOption {
	return func(s *LedgerService) {
		if projector != nil {
			s.projector = projector
		}
	}
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(
	bills ledger.BillRepository,
	payments ledger.PaymentRepository,
	returns ledger.ReturnRepository,
	opts ...LedgerServiceOption,
) *LedgerService {
	s := &LedgerService{
		bills:        bills,
		payments:     payments,
		returns:      returns,
		engine:       ledger.NewEngine(),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.projector == nil {
		s.projector, _ = NewStatementProjector("")
	}
	return s
}

// Projector returns the statement projector
func (s *LedgerService) Projector() *StatementProjector {
	return s.projector
}

// LoadSnapshot fetches the three record streams of a customer concurrently
func (s *LedgerService) LoadSnapshot(ctx context.Context, customerID string) (ledger.Snapshot, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	var (
		bills    []ledger.Bill
		payments []ledger.Payment
		returns  []ledger.Return
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if bills, err = s.bills.FindByCustomer(gctx, customerID); err != nil {
			return fmt.Errorf("failed to load bills: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if payments, err = s.payments.FindByCustomer(gctx, customerID); err != nil {
			return fmt.Errorf("failed to load payments: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if returns, err = s.returns.FindByCustomer(gctx, customerID); err != nil {
			return fmt.Errorf("failed to load returns: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return ledger.Snapshot{}, err
	}

	return ledger.Snapshot{
		CustomerID: customerID,
		Bills:      bills,
		Payments:   payments,
		Returns:    returns,
	}, nil
}

// GetCustomerLedger fetches and reconciles a customer's full ledger
func (s *LedgerService) GetCustomerLedger(ctx context.Context, customerID string) (*CustomerLedger, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "get_customer_ledger")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	rec, err := s.reconcileCustomer(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrEntryCount, len(rec.Entries),
		telemetry.SpanAttrBalance, rec.Balance.String(),
	)
	return ToCustomerLedger(rec), nil
}

// ListBills returns the paid or unpaid bills, or all bills when status is empty
func (s *LedgerService) ListBills(ctx context.Context, customerID, status string) (*BillList, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "list_bills")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, customerID,
		telemetry.SpanAttrBillStatus, status,
	)

	billStatus := ledger.BillStatus(strings.ToLower(strings.TrimSpace(status)))
	if billStatus != "" && !billStatus.IsValid() {
		err := shared.NewDomainError(shared.CodeInvalidInput, "status must be one of: paid, unpaid")
		telemetry.RecordError(span, err)
		return nil, err
	}

	rec, err := s.reconcileCustomer(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	list := &BillList{
		CustomerID: customerID,
		Status:     billStatus,
		Stats:      rec.Stats,
	}
	switch billStatus {
	case ledger.BillStatusPaid:
		list.Bills = rec.Paid
	case ledger.BillStatusUnpaid:
		list.Bills = rec.Unpaid
	default:
		list.Bills = make([]ledger.BillView, 0, len(rec.Paid)+len(rec.Unpaid))
		list.Bills = append(list.Bills, rec.Unpaid...)
		list.Bills = append(list.Bills, rec.Paid...)
	}
	return list, nil
}

// ListDuePayments returns unpaid bills that carry a due date, soonest first
func (s *LedgerService) ListDuePayments(ctx context.Context, customerID string) (*DuePaymentList, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "list_due_payments")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	rec, err := s.reconcileCustomer(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return ToDuePaymentList(customerID, rec.DuePayments), nil
}

// GetStatement reconciles a customer and projects the statement for period
func (s *LedgerService) GetStatement(ctx context.Context, customerID string, period Period) (*Statement, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "ledger", "get_statement")
	defer span.End()
	telemetry.SetAttributes(span, telemetry.SpanAttrCustomerID, customerID)

	if err := period.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	rec, err := s.reconcileCustomer(ctx, customerID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return s.projector.Project(rec, period), nil
}

// ExportStatement writes a statement in the given format and counts the export
func (s *LedgerService) ExportStatement(ctx context.Context, w io.Writer, st *Statement, format StatementFormat) error {
	_, span := telemetry.StartServiceSpan(ctx, "ledger", "export_statement")
	defer span.End()
	telemetry.SetAttributes(span,
		telemetry.SpanAttrCustomerID, st.CustomerID,
		telemetry.SpanAttrExportFormat, string(format),
	)

	var err error
	switch format {
	case FormatCSV:
		err = s.projector.WriteCSV(w, st)
	case FormatText:
		err = s.projector.WriteText(w, st)
	case FormatJSON, "":
		format = FormatJSON
		err = json.NewEncoder(w).Encode(st)
	default:
		err = shared.NewDomainError(shared.CodeInvalidInput, "unsupported statement format")
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	s.metrics.RecordStatementExport(ctx, string(format))
	return nil
}

// Reconcile runs the engine over an already fetched snapshot
func (s *LedgerService) Reconcile(ctx context.Context, snapshot ledger.Snapshot) *ledger.Reconciliation {
	ctx = withCustomer(ctx, snapshot.CustomerID)
	if n := countDegraded(snapshot); n > 0 {
		logger.L(ctx).Debug("Records with unparsable amounts or dates were degraded",
			zap.Int("degraded_fields", n),
		)
	}

	start := time.Now()
	var rec *ledger.Reconciliation
	telemetry.ProfileOperation(ctx, "reconcile", func(context.Context) {
		rec = s.engine.Reconcile(snapshot)
	})
	balanced := rec.IsBalanced()
	s.metrics.RecordReconcile(ctx, time.Since(start), len(rec.Entries), string(rec.BalanceSign), balanced)

	if !balanced {
		logger.L(ctx).Warn("Ledger balance does not tie out to bill totals",
			zap.String("balance", rec.Balance.String()),
			zap.String("total_outstanding", rec.Stats.TotalOutstanding.String()),
			zap.String("discrepancy", rec.Discrepancy().String()),
		)
	}
	return rec
}

func (s *LedgerService) reconcileCustomer(ctx context.Context, customerID string) (*ledger.Reconciliation, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, shared.NewDomainError(shared.CodeInvalidInput, "customer id is required")
	}

	snapshot, err := s.LoadSnapshot(ctx, customerID)
	if err != nil {
		logger.L(withCustomer(ctx, customerID)).Error("Failed to load customer records", zap.Error(err))
		return nil, err
	}
	return s.Reconcile(ctx, snapshot), nil
}

// withCustomer tags log lines with the customer unless the request already did
func withCustomer(ctx context.Context, customerID string) context.Context {
	if customerID == "" || logger.GetCustomerID(ctx) != "" {
		return ctx
	}
	return logger.WithCustomerID(ctx, customerID)
}

// countDegraded counts amounts and timestamps the engine will replace with 0 or now
func countDegraded(s ledger.Snapshot) int {
	n := 0
	amount := func(a valueobject.RawAmount) {
		text := strings.TrimSpace(string(a))
		if text == "" {
			return
		}
		if d, err := decimal.NewFromString(text); err != nil || !valueobject.InAmountRange(d) {
			n++
		}
	}
	timestamp := func(t valueobject.RawTime) {
		if _, ok := valueobject.ParseDate(t); !ok {
			n++
		}
	}

	for _, b := range s.Bills {
		amount(b.TotalAmount)
		amount(b.AmountPaid)
		timestamp(b.CreatedAt)
	}
	for _, p := range s.Payments {
		amount(p.Amount)
		timestamp(p.CreatedAt)
	}
	for _, r := range s.Returns {
		amount(r.TotalRefund)
		timestamp(r.CreatedAt)
	}
	return n
}
