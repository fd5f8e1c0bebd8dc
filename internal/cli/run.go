package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/gdamore/tcell/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-session/internal/console"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/proctor"
	"github.com/stemsi/exstem-session/internal/session"
	"github.com/stemsi/exstem-session/internal/timer"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
)

var errNoTerminal = errors.New("run needs an interactive terminal on stdin")

func newRunCmd(opts *rootOptions) *cobra.Command {
	var takeover bool
	cmd := &cobra.Command{
		Use:   "run EXAM_ID",
		Short: "Start or resume an exam session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), opts, args[0], takeover)
		},
	}
	cmd.Flags().BoolVar(&takeover, "takeover", false, "resume a session whose previous client crashed without waiting for its lease to lapse")
	return cmd
}

func runSession(ctx context.Context, opts *rootOptions, examID string, takeover bool) error {
	ctx, stop := signalContext(ctx)
	defer stop()

	d := newDeps(opts.cfg, opts.log)
	defer d.Close()

	mgr, err := d.checkpointManager(ctx)
	if err != nil {
		return err
	}
	provider, err := d.contentProvider(ctx)
	if err != nil {
		return err
	}
	gw, err := d.gateway()
	if err != nil {
		return err
	}
	id, err := d.identityProvider(opts.user).Identity(ctx)
	if err != nil {
		return fmt.Errorf("resolve identity: %w", err)
	}

	con := console.New(opts.log)
	ctrl := session.NewController(session.Deps{
		Content:     provider,
		Checkpoints: mgr,
		Gateway:     gw,
		Clock:       d.clock,
		Listener:    con,
		Log:         opts.log,
		Holder:      leaseHolder(),
		Takeover:    takeover,
	})
	if err := ctrl.Start(ctx, examID, id); err != nil {
		if errors.Is(err, session.ErrActiveElsewhere) {
			return fmt.Errorf("%w; close the other client or rerun with --takeover", err)
		}
		return err
	}
	defer ctrl.ReleaseLease(context.WithoutCancel(ctx))

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return errNoTerminal
	}
	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("open terminal: %w", err)
	}
	if err := con.Open(screen); err != nil {
		return err
	}
	defer con.Close()

	reporter, batch := d.reporter()
	monitor := proctor.NewMonitor(con, reporter, d.clock, opts.cfg.ProctorOverrideHash, opts.log)
	release := engageProctoring(monitor, id, examID, ctrl.Session().ID, opts.log)
	defer release()

	sched := timer.NewScheduler(d.clock, opts.cfg.TickInterval, opts.cfg.CheckpointInterval)
	runner := session.NewRunner(ctrl, sched, opts.log)
	con.Attach(runner, monitor, d.verifyProctor)

	// The reporter outlives the session so events raised during teardown still flush.
	reporterCtx, stopReporter := context.WithCancel(context.WithoutCancel(ctx))
	reporterDone := make(chan struct{})
	if batch != nil {
		go func() {
			defer close(reporterDone)
			batch.Run(reporterCtx)
		}()
	} else {
		close(reporterDone)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error { return con.Run(gctx) })
	err = g.Wait()

	stopReporter()
	<-reporterDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	opts.log.Info().
		Str("exam_id", examID).
		Str("status", string(ctrl.Status())).
		Interface("flags", monitor.Flags()).
		Msg("Session finished")
	return nil
}

// engageProctoring switches the shell into exam mode. A shell that cannot
// apply every measure leaves the session degraded, not stopped. The returned
// func undoes whatever was applied.
func engageProctoring(m *proctor.Monitor, id model.Identity, examID string, sessionID uuid.UUID, log zerolog.Logger) func() {
	release := func() {
		if err := m.Release(); err != nil {
			log.Warn().Err(err).Msg("Failed to release proctoring")
		}
	}
	if err := m.Engage(id, examID, sessionID); err != nil {
		log.Warn().Err(err).Str("exam_id", examID).Msg("Proctoring degraded, session continues")
	}
	return release
}

// leaseHolder names this process in the session lease so a refused start
// can tell the operator which machine holds the exam.
func leaseHolder() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "examclient"
	}
	return fmt.Sprintf("%s/%d", host, os.Getpid())
}
