package cmd

import (
	"github.com/spf13/cobra"
	"mediaroom/cmd/cli"
	"mediaroom/internal/config"
	"mediaroom/internal/logger"
)

var (
	debugFlag     bool
	cliConfigPath string
)

var cliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Start the interactive terminal remote",
	Long: `Launch the interactive Terminal User Interface (TUI) for Mediaroom.
Pick a box by address, from the configuration file or from a discovery scan,
then drive it with the keyboard.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Log output would corrupt the alternate screen unless asked for
		if debugFlag {
			logger.SetSilentMode(false)
			logger.SetLevel(logger.LOG_DEBUG)
		} else {
			logger.SetSilentMode(true)
		}

		var cfg *config.Config
		if cliConfigPath != "" {
			loaded, err := config.Load(cliConfigPath)
			if err != nil {
				return err
			}
			cfg = loaded
		}

		log := logger.New()
		log.Info().
			Bool("debug", debugFlag).
			Str("config_path", cliConfigPath).
			Msg("Starting Mediaroom terminal remote")

		if err := cli.StartTUI(debugFlag, cfg); err != nil {
			log.Error().Err(err).Msg("Failed to start TUI")
			return err
		}

		return nil
	},
}

func init() {
	cliCmd.Flags().BoolVar(&debugFlag, "debug", false, "Enable debug logging and the in-screen log panel")
	cliCmd.Flags().StringVarP(&cliConfigPath, "config", "c", "", "Optional configuration file listing boxes")
}
