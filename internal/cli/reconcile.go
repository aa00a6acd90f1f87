package cli

import (
	"context"
	"fmt"
	"os"

	reconciledomain "github.com/smallbiznis/purchasesync/internal/reconcile/domain"
	reconcileservice "github.com/smallbiznis/purchasesync/internal/reconcile/service"
	"github.com/spf13/cobra"
)

type ReconcileOptions struct {
	*RootOptions
	Feed string
	Out  string
}

// Comparer produces a reconciliation report for a feed.
type Comparer interface {
	Compare(ctx context.Context, feed string) (reconciledomain.Report, error)
}

func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare loaded prices with the legacy reporting facts",
		Long: `Compare the resolved price of every loaded purchase with the base price
the legacy reporting pipeline recorded for it, and write the purchases that
differ by more than 0.0001 to a CSV file.

Example:
  purchasesync reconcile --feed purchases --out price_mismatches.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var reconciler *reconcileservice.Reconciler
			return withApp(cmd.Context(), func(ctx context.Context) error {
				return reconcileFeed(ctx, cmd, opts, reconciler)
			}, &reconciler)
		},
	}

	cmd.Flags().StringVar(&opts.Feed, "feed", "", "feed to reconcile (required)")
	cmd.Flags().StringVar(&opts.Out, "out", "price_mismatches.csv", "CSV output path")
	_ = cmd.MarkFlagRequired("feed")

	return cmd
}

func reconcileFeed(ctx context.Context, cmd *cobra.Command, opts *ReconcileOptions, c Comparer) error {
	report, err := c.Compare(ctx, opts.Feed)
	if err != nil {
		return err
	}

	f, err := os.Create(opts.Out)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.Out, err)
	}
	if err := reconcileservice.WriteCSV(f, report.Mismatches); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", opts.Out, err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, map[string]any{
			"feed":         report.Feed,
			"fact_rows":    report.FactRows,
			"legacy_rows":  report.LegacyRows,
			"matched":      report.Matched,
			"incomparable": report.Incomparable,
			"mismatches":   len(report.Mismatches),
			"out":          opts.Out,
		})
	}
	writeLine(out, "facts=%d legacy=%d matched=%d incomparable=%d mismatches=%d",
		report.FactRows, report.LegacyRows, report.Matched, report.Incomparable, len(report.Mismatches))
	writeLine(out, "mismatches written to %s", opts.Out)
	return nil
}
