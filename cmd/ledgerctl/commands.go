package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	ledgerapp "github.com/erp/customer-ledger/internal/application/ledger"
	"github.com/spf13/cobra"
)

func newLedgerCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print the reconciled ledger with its running balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			rec := s.reconcile()
			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), rec)
			case "text":
				st := s.service.Projector().Project(rec, ledgerapp.Period{})
				return s.service.ExportStatement(s.ctx, cmd.OutOrStdout(), st, ledgerapp.FormatText)
			default:
				return fmt.Errorf("unknown format %q: use json or text", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or text")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print paid/unpaid counts and totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			rec := s.reconcile()
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"customer_id":  rec.CustomerID,
				"balance":      rec.Balance,
				"balance_sign": rec.BalanceSign,
				"stats":        rec.Stats,
			})
		},
	}
}

func newDueCmd(opts *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List unpaid bills with a due date, earliest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			due := s.reconcile().DuePayments
			switch format {
			case "json":
				return writeJSON(cmd.OutOrStdout(), due)
			case "text":
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BILL\tDUE\tOUTSTANDING\tSTATUS\tDAYS")
				for _, d := range due {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
						d.Bill.BillID,
						d.DueDate.Format(time.DateOnly),
						s.service.Projector().FormatAmount(d.Outstanding),
						d.Status,
						d.DaysUntilDue,
					)
				}
				return tw.Flush()
			default:
				return fmt.Errorf("unknown format %q: use json or text", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or text")
	return cmd
}

func newStatementCmd(opts *rootOptions) *cobra.Command {
	var from, to, format string
	cmd := &cobra.Command{
		Use:   "statement",
		Short: "Print an account statement for a period",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := ledgerapp.ParseStatementFormat(format)
			if err != nil {
				return err
			}
			period, err := ledgerapp.ParsePeriod(from, to)
			if err != nil {
				return err
			}
			if err := period.Validate(); err != nil {
				return err
			}

			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			st := s.service.Projector().Project(s.reconcile(), period)
			if f == ledgerapp.FormatJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			return s.service.ExportStatement(s.ctx, cmd.OutOrStdout(), st, f)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First day of the statement (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day of the statement (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format: json, csv or text")
	return cmd
}
