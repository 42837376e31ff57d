package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	ledgerapp "github.com/erp/customer-ledger/internal/application/ledger"
	"github.com/erp/customer-ledger/internal/domain/ledger"
	"github.com/erp/customer-ledger/internal/infrastructure/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	input         string
	asOf          string
	dueSoonWindow time.Duration
	locale        string
	logLevel      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Reconcile a customer's bills, payments and returns from a snapshot file",
		Long: `ledgerctl reads one customer's records as a JSON snapshot
({"customer_id", "bills", "payments", "returns"}) and prints the reconciled
ledger, the paid/unpaid statistics, due payments or a statement.

The snapshot uses the same field names as the HTTP API.`,
		Example: `  # Full ledger from a file
  ledgerctl ledger -i customer.json

  # Due payments as of a fixed date
  ledgerctl due -i customer.json --as-of 2026-10-19

  # October statement as CSV from stdin
  cat customer.json | ledgerctl statement --from 2026-10-01 --to 2026-10-31 --format csv`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.input, "input", "i", "-", "Snapshot file, - for stdin")
	flags.StringVar(&opts.asOf, "as-of", "", "Reconcile as of this time (RFC 3339 or YYYY-MM-DD, default: now)")
	flags.DurationVar(&opts.dueSoonWindow, "due-soon", ledger.DefaultDueSoonWindow, "Window in which unpaid bills count as due soon")
	flags.StringVar(&opts.locale, "locale", "en-US", "BCP 47 locale for statement amounts")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	root.AddCommand(
		newLedgerCmd(opts),
		newStatsCmd(opts),
		newDueCmd(opts),
		newStatementCmd(opts),
	)
	return root
}

// session is one loaded snapshot plus the service that reconciles it
type session struct {
	ctx      context.Context
	service  *ledgerapp.LedgerService
	snapshot ledger.Snapshot
}

func (o *rootOptions) open(cmd *cobra.Command) (*session, error) {
	log, err := logger.New(&logger.Config{
		Level:  o.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	now := time.Now()
	if o.asOf != "" {
		p, err := ledgerapp.ParsePeriod(o.asOf, "")
		if err != nil {
			return nil, fmt.Errorf("invalid --as-of: %w", err)
		}
		now = *p.From
	}

	projector, err := ledgerapp.NewStatementProjector(o.locale)
	if err != nil {
		return nil, err
	}

	snapshot, err := readSnapshot(cmd.InOrStdin(), o.input)
	if err != nil {
		return nil, err
	}
	log.Debug("Snapshot loaded",
		zap.String("customer_id", snapshot.CustomerID),
		zap.Int("bills", len(snapshot.Bills)),
		zap.Int("payments", len(snapshot.Payments)),
		zap.Int("returns", len(snapshot.Returns)),
	)

	engine := ledger.NewEngine(
		ledger.WithClock(func() time.Time { return now }),
		ledger.WithDueSoonWindow(o.dueSoonWindow),
	)
	return &session{
		ctx: logger.WithContext(cmd.Context(), log),
		service: ledgerapp.NewLedgerService(nil, nil, nil,
			ledgerapp.WithEngine(engine),
			ledgerapp.WithStatementProjector(projector),
		),
		snapshot: snapshot,
	}, nil
}

func (s *session) reconcile() *ledger.Reconciliation {
	return s.service.Reconcile(s.ctx, s.snapshot)
}

func readSnapshot(stdin io.Reader, path string) (ledger.Snapshot, error) {
	var snapshot ledger.Snapshot

	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return snapshot, fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()
		r = f
	}

	if err := json.NewDecoder(r).Decode(&snapshot); err != nil {
		return snapshot, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snapshot, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
