// Package cli implements the examclient command line.
package cli

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-session/internal/config"
	"github.com/stemsi/exstem-session/internal/logger"
)

type rootOptions struct {
	cfg  *config.Config
	user string
	log  zerolog.Logger
	// logOut is closed when the command finishes.
	logOut io.Closer
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	return newRootCmd(config.Load()).ExecuteContext(ctx)
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	opts := &rootOptions{cfg: cfg}

	cmd := &cobra.Command{
		Use:          "examclient",
		Short:        "Run a proctored exam session in the terminal",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			f, err := logger.OpenFile(cfg.LogFile)
			if err != nil {
				return err
			}
			opts.logOut = f
			opts.log = logger.Setup(cfg.LogLevel, cfg.LogFormat, f)
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.logOut != nil {
				return opts.logOut.Close()
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.user, "user", "", "student id; without it the identity comes from AUTH_TOKEN")
	cmd.PersistentFlags().StringVar(&cfg.CheckpointDriver, "checkpoint-driver", cfg.CheckpointDriver, "file, sqlite, redis or postgres")
	cmd.PersistentFlags().StringVar(&cfg.HubURL, "hub", cfg.HubURL, "hub base URL")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newResubmitCmd(opts))
	cmd.AddCommand(newCheckpointCmd(opts))
	return cmd
}
