package cli

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"scadenze/internal/backend"
	"scadenze/internal/core"
	"scadenze/internal/reconcile"
)

func init() {
	rootCmd.AddCommand(forecastCmd, arrearsCmd, upcomingCmd, scheduleCmd, orphansCmd, reconcileCmd)

	forecastCmd.Flags().String("month", "", "Center month of the window, YYYY-MM (default: this month)")
	upcomingCmd.Flags().String("month", "", "Month to list, YYYY-MM (default: this month)")
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Show monthly income, expense and balance totals around a month",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := requireOwner()
		if err != nil {
			return err
		}
		d, err := today()
		if err != nil {
			return err
		}
		center, err := monthFlag(cmd, "month", d)
		if err != nil {
			return err
		}
		return withBackend(cmd, func(res *backend.BackendResult) error {
			totals, err := res.Reports.MonthlyTotals(cmd.Context(), owner, center)
			if err != nil {
				return err
			}
			return writeTotals(cmd.OutOrStdout(), totals)
		})
	},
}

var arrearsCmd = &cobra.Command{
	Use:   "arrears",
	Short: "List overdue expenses and receivable income",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := requireOwner()
		if err != nil {
			return err
		}
		d, err := today()
		if err != nil {
			return err
		}
		return withBackend(cmd, func(res *backend.BackendResult) error {
			backlog, err := res.Reports.ArrearsBacklog(cmd.Context(), owner, d)
			if err != nil {
				return err
			}
			return writeArrears(cmd.OutOrStdout(), backlog)
		})
	},
}

var upcomingCmd = &cobra.Command{
	Use:   "upcoming",
	Short: "List the installments of a month with their urgency",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := requireOwner()
		if err != nil {
			return err
		}
		d, err := today()
		if err != nil {
			return err
		}
		p, err := monthFlag(cmd, "month", d)
		if err != nil {
			return err
		}
		return withBackend(cmd, func(res *backend.BackendResult) error {
			items, err := res.Reports.Upcoming(cmd.Context(), owner, p, d)
			if err != nil {
				return err
			}
			return writeUpcoming(cmd.OutOrStdout(), items)
		})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule COMMITMENT_ID",
	Short: "List the installments of one commitment across all term versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := requireOwner()
		if err != nil {
			return err
		}
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid commitment id %q: %w", args[0], err)
		}
		d, err := today()
		if err != nil {
			return err
		}
		return withBackend(cmd, func(res *backend.BackendResult) error {
			rows, err := res.Reports.Schedule(cmd.Context(), owner, id, d)
			if err != nil {
				return err
			}
			return writeSchedule(cmd.OutOrStdout(), rows)
		})
	},
}

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List payments whose period no longer falls under any term",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := requireOwner()
		if err != nil {
			return err
		}
		return withBackend(cmd, func(res *backend.BackendResult) error {
			list, err := res.Commitments.Orphans(cmd.Context(), owner, nil)
			if err != nil {
				return err
			}
			return writeOrphans(cmd.OutOrStdout(), list)
		})
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [COMMITMENT_ID]",
	Short: "Re-link payments to the terms covering their periods",
	Long: `Re-run reconciliation for one commitment, or for every commitment of the owner
when no id is given. Running it twice in a row changes nothing the second time.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := requireOwner()
		if err != nil {
			return err
		}
		return withBackend(cmd, func(res *backend.BackendResult) error {
			if len(args) == 1 {
				id, err := uuid.Parse(args[0])
				if err != nil {
					return fmt.Errorf("invalid commitment id %q: %w", args[0], err)
				}
				result, err := res.Commitments.Reconcile(cmd.Context(), owner, id)
				if err != nil {
					return err
				}
				return writeReconcile(cmd.OutOrStdout(), map[uuid.UUID]reconcile.Result{id: result})
			}
			results, err := res.Commitments.ReconcileAll(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return writeReconcile(cmd.OutOrStdout(), results)
		})
	},
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func writeTotals(w io.Writer, totals []core.MonthTotals) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "MONTH\tINCOME\tEXPENSES\tBALANCE\tPAID IN\tPAID OUT")
	for _, mt := range totals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", mt.Period,
			mt.Income.StringFixed(2), mt.Expenses.StringFixed(2), mt.Balance.StringFixed(2),
			mt.PaidIncome.StringFixed(2), mt.PaidExpenses.StringFixed(2))
	}
	return tw.Flush()
}

func writeArrears(w io.Writer, b core.ArrearsBacklog) error {
	if len(b.Items) == 0 {
		_, err := fmt.Fprintln(w, "Nothing overdue.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "DUE\tPERIOD\tFLOW\tNAME\tAMOUNT\tWINDOW")
	for _, it := range b.Items {
		window := ""
		if it.InWindow {
			window = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", it.DueDate, it.Period, it.Flow, it.Name, it.Amount.StringFixed(2), window)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nOverdue: %s (outside window %s)  Receivable: %s\n",
		b.Total.StringFixed(2), b.OutsideWindow.StringFixed(2), b.Receivable.StringFixed(2))
	return err
}

func writeUpcoming(w io.Writer, items []core.UpcomingItem) error {
	if len(items) == 0 {
		_, err := fmt.Fprintln(w, "Nothing due.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "DUE\tNAME\tAMOUNT\tCUOTA\tSTATUS\tURGENCY\tDAYS")
	for _, it := range items {
		name := it.Name
		if it.Important {
			name += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n", it.DueDate, name, it.Amount.StringFixed(2),
			cuota(it.Cuota, it.Installments), it.Status, it.Urgency, it.DaysUntil)
	}
	return tw.Flush()
}

func writeSchedule(w io.Writer, rows []core.ScheduleRow) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "PERIOD\tDUE\tVERSION\tCUOTA\tAMOUNT\tSTATUS")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\tv%d\t%s\t%s\t%s\n", row.Period, row.DueDate, row.Version,
			cuota(row.Cuota, row.Installments), row.Amount.StringFixed(2), row.Status)
	}
	return tw.Flush()
}

func writeOrphans(w io.Writer, list []core.Payment) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No orphaned payments.")
		return err
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "PAYMENT\tCOMMITMENT\tPERIOD\tAMOUNT")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\n", p.ID, p.CommitmentID, p.Period, p.Amount.Amount.StringFixed(2), p.Amount.Unit)
	}
	return tw.Flush()
}

func writeReconcile(w io.Writer, results map[uuid.UUID]reconcile.Result) error {
	ids := make([]uuid.UUID, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	tw := newTable(w)
	fmt.Fprintln(tw, "COMMITMENT\tUPDATED\tORPHANED")
	for _, id := range ids {
		res := results[id]
		fmt.Fprintf(tw, "%s\t%d\t%d\n", id, len(res.Updated), len(res.Orphaned))
	}
	return tw.Flush()
}

func cuota(n, of int) string {
	if of == 0 {
		return "-"
	}
	return fmt.Sprintf("%d/%d", n, of)
}
