package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-session/internal/checkpoint"
)

func newCheckpointCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Inspect or clear stored checkpoints",
	}
	cmd.AddCommand(newCheckpointShowCmd(opts))
	cmd.AddCommand(newCheckpointClearCmd(opts))
	return cmd
}

func newCheckpointShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show EXAM_ID",
		Short: "Print the checkpoint for --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.user == "" {
				return errUserRequired
			}
			return showCheckpoint(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
}

func showCheckpoint(ctx context.Context, opts *rootOptions, examID string, out io.Writer) error {
	d := newDeps(opts.cfg, opts.log)
	defer d.Close()

	mgr, err := d.checkpointManager(ctx)
	if err != nil {
		return err
	}
	submitted, err := mgr.Submitted(ctx, opts.user, examID)
	if err != nil {
		return err
	}
	cp, err := mgr.Load(ctx, opts.user, examID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		fmt.Fprintf(out, "no checkpoint (submitted: %t)\n", submitted)
		return nil
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cp); err != nil {
		return err
	}
	fmt.Fprintf(out, "submitted: %t\n", submitted)
	return nil
}

func newCheckpointClearCmd(opts *rootOptions) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear EXAM_ID",
		Short: "Delete the checkpoint for --user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.user == "" {
				return errUserRequired
			}
			if !yes {
				return errors.New("refusing to clear without --yes")
			}
			d := newDeps(opts.cfg, opts.log)
			defer d.Close()

			mgr, err := d.checkpointManager(cmd.Context())
			if err != nil {
				return err
			}
			if err := mgr.Clear(cmd.Context(), opts.user, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "checkpoint cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
