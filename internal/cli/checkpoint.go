package cli

import (
	"context"
	"time"

	checkpointdomain "github.com/smallbiznis/purchasesync/internal/checkpoint/domain"
	"github.com/spf13/cobra"
)

type CheckpointOptions struct {
	*RootOptions
	Feed string
}

func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckpointOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or reset a feed checkpoint",
	}
	cmd.PersistentFlags().StringVar(&opts.Feed, "feed", "", "feed name (required)")
	_ = cmd.MarkPersistentFlagRequired("feed")

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print the last successful extraction time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var store checkpointdomain.Store
			return withApp(cmd.Context(), func(ctx context.Context) error {
				return getCheckpoint(ctx, cmd, opts, store)
			}, &store)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Clear the checkpoint so the next run reloads the whole feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var store checkpointdomain.Store
			return withApp(cmd.Context(), func(ctx context.Context) error {
				if err := store.Reset(ctx, opts.Feed); err != nil {
					return err
				}
				writeLine(cmd.OutOrStdout(), "checkpoint for %s cleared", opts.Feed)
				return nil
			}, &store)
		},
	})

	return cmd
}

func getCheckpoint(ctx context.Context, cmd *cobra.Command, opts *CheckpointOptions, store checkpointdomain.Store) error {
	at, err := store.Get(ctx, opts.Feed)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return writeJSON(out, map[string]any{"feed": opts.Feed, "last_run": at})
	}
	if at == nil {
		writeLine(out, "%s: no checkpoint", opts.Feed)
		return nil
	}
	writeLine(out, "%s: %s", opts.Feed, at.UTC().Format(time.RFC3339Nano))
	return nil
}
