package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	etldomain "github.com/smallbiznis/purchasesync/internal/etl/domain"
	"github.com/smallbiznis/purchasesync/internal/etl/service"
	reportingdomain "github.com/smallbiznis/purchasesync/internal/reporting/domain"
	"github.com/spf13/cobra"
)

type RunOptions struct {
	*RootOptions
	Feed string
}

func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one sync pass",
		Long: `Run one extract, enrich, price and load pass.

Without --feed every configured feed is synced in order.

Example:
  purchasesync run --feed purchases
  purchasesync run --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var runner *service.Runner
			return withApp(ctx, func(ctx context.Context) error {
				return runFeeds(ctx, cmd, opts, runner)
			}, &runner)
		},
	}

	cmd.Flags().StringVar(&opts.Feed, "feed", "", "feed to sync (default: all configured feeds)")

	return cmd
}

// FeedRunner is the part of the runner the command needs.
type FeedRunner interface {
	Run(ctx context.Context, feed string) (*etldomain.Run, error)
	RunAll(ctx context.Context) error
}

func runFeeds(ctx context.Context, cmd *cobra.Command, opts *RunOptions, runner FeedRunner) error {
	if opts.Feed == "" {
		return classify(runner.RunAll(ctx))
	}

	run, err := runner.Run(ctx, opts.Feed)
	if run != nil {
		out := cmd.OutOrStdout()
		if opts.Format == "json" {
			if encErr := writeJSON(out, run); encErr != nil {
				return encErr
			}
		} else {
			writeLine(out, "run %s feed=%s status=%s extracted=%d inserted=%d updated=%d unchanged=%d failed=%d unresolved=%d",
				run.ID, run.Feed, run.Status, run.Extracted, run.Inserted, run.Updated, run.Unchanged, run.Failed, run.Unresolved)
		}
	}
	return classify(err)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, reportingdomain.ErrPartialLoad):
		return &ExitError{Code: ExitPartial, Err: err}
	case errors.Is(err, service.ErrRunInProgress):
		return &ExitError{Code: ExitInProgress, Err: err}
	default:
		return &ExitError{Code: ExitFailure, Err: err}
	}
}
