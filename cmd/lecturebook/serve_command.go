package main

import (
	"time"

	"github.com/spf13/cobra"

	"lecturebook/internal/daemonrun"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the job server in the foreground",
		Long: "Serve runs queued jobs until interrupted. It accepts submissions over NATS\n" +
			"when events.nats_url is set and picks up audio files dropped into the inbox.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if opts.LogLevel == "" && ctx.logLevelFlag != nil {
				opts.LogLevel = *ctx.logLevelFlag
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Watch, "watch", "", "Inbox directory to watch (overrides watch.inbox_dir)")
	cmd.Flags().DurationVar(&opts.PollInterval, "poll-interval", 2*time.Second, "How often to check for queued jobs")
	return cmd
}
