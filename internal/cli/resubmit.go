package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/submission"
)

var errUserRequired = errors.New("--user is required")

func newResubmitCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resubmit EXAM_ID",
		Short: "Deliver a student's retained checkpoint to the hub",
		Long: "Deliver the checkpoint kept after an expired, undelivered session. " +
			"AUTH_TOKEN must belong to a proctor or admin.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.user == "" {
				return errUserRequired
			}
			return resubmit(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}
}

func resubmit(ctx context.Context, opts *rootOptions, examID string, out io.Writer) error {
	d := newDeps(opts.cfg, opts.log)
	defer d.Close()

	mgr, err := d.checkpointManager(ctx)
	if err != nil {
		return err
	}
	gw, err := d.gateway()
	if err != nil {
		return err
	}

	var exam *model.ExamContent
	if provider, err := d.contentProvider(ctx); err == nil {
		if exam, err = provider.Load(ctx, examID); err != nil {
			opts.log.Warn().Err(err).Str("exam_id", examID).Msg("Paper unavailable, sending recorded answers only")
			exam = nil
		}
	}

	res, err := session.Resubmit(ctx, mgr, gw, d.clock, opts.log, opts.user, examID, exam)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s (attempts: %d)\n", res.Outcome, res.Message, res.Attempts)
	if res.Outcome != submission.OutcomeAccepted {
		return fmt.Errorf("resubmission %s: %s", res.Outcome, res.Message)
	}
	return nil
}
