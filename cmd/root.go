package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"mediaroom/internal/logger"
)

var (
	verbose bool
	log     = logger.New()
)

var rootCmd = &cobra.Command{
	Use:   "mediaroom",
	Short: "Mediaroom - discover and remote control Mediaroom set-top boxes",
	Long: `Mediaroom finds set-top boxes on the local network by listening to their
multicast NOTIFY announcements and drives them over the TCP control channel.
It includes one-shot commands, an interactive terminal remote and a hub daemon
exposing configured boxes over HTTP.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		}
		log = logger.New()
	},
}

// Execute runs the root command; SIGINT and SIGTERM cancel the command context
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(cliCmd)
	rootCmd.AddCommand(hubCmd)
}
