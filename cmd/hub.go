// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"mediaroom/internal/config"
	"mediaroom/internal/hub"
	"mediaroom/internal/logger"
)

var (
	hubConfigPath   string
	hubDebugFlag    bool
	hubTokenSubject string
	hubBoxName      string
	hubBoxPort      int
)

var hubCmd = &cobra.Command{
	Use:   "hub",
	Short: "Start the Mediaroom hub daemon",
	Long: `Mediaroom Hub is a daemon that listens for box announcements and exposes the
boxes named in its configuration file over an HTTP API. Clients press keys,
query state, run discovery scans and stream announcements over a WebSocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetSilentMode(false)
		if hubDebugFlag || verbose {
			logger.SetLevel(logger.LOG_DEBUG)
		} else {
			logger.SetLevel(logger.LOG_INFO)
		}

		log := logger.New()
		log.Info().
			Str("config_path", hubConfigPath).
			Bool("debug", hubDebugFlag).
			Msg("Starting Mediaroom Hub daemon")

		// Check if config file exists
		if _, err := os.Stat(hubConfigPath); errors.Is(err, os.ErrNotExist) {
			defaultConfig := config.NewDefaultConfig()
			if err := defaultConfig.Save(hubConfigPath); err != nil {
				log.Error().Err(err).Msg("Failed to create default config file")
				return fmt.Errorf("failed to create default config file: %w", err)
			}
			log.Info().
				Str("config_path", hubConfigPath).
				Msg("Created default configuration file. Please edit it with your settings.")
			return nil
		}

		daemon, err := hub.NewDaemon(hubConfigPath)
		if err != nil {
			log.Error().Err(err).Msg("Failed to create hub daemon")
			return fmt.Errorf("failed to create hub daemon: %w", err)
		}

		// Blocks until shutdown
		if err := daemon.Run(); err != nil {
			log.Error().Err(err).Msg("Hub daemon stopped with error")
			return fmt.Errorf("hub daemon error: %w", err)
		}

		return nil
	},
}

var hubConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage hub configuration",
	Long:  `Generate or validate hub configuration files.`,
}

var hubConfigGenerateCmd = &cobra.Command{
	Use:   "generate [config-file]",
	Short: "Generate default configuration file",
	Long:  `Generate a default configuration file with example settings.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		defaultConfig := config.NewDefaultConfig()
		if err := defaultConfig.Save(configPath); err != nil {
			return fmt.Errorf("failed to save default config: %w", err)
		}

		cmd.Printf("Default configuration saved to: %s\n", configPath)
		cmd.Println("Please edit the file with the addresses of your boxes.")
		return nil
	},
}

var hubConfigValidateCmd = &cobra.Command{
	Use:   "validate [config-file]",
	Short: "Validate configuration file",
	Long:  `Validate a hub configuration file for syntax and required fields.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := hubConfigPath
		if len(args) > 0 {
			configPath = args[0]
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		cmd.Printf("Configuration file is valid: %s\n", configPath)
		cmd.Printf("API listen address: %s\n", cfg.API.Listen)
		cmd.Printf("Authentication: %t\n", cfg.API.JWTSecret != "")
		cmd.Printf("Configured boxes: %d\n", len(cfg.Boxes))

		for _, box := range cfg.Boxes {
			port := cfg.Control.Port
			if box.Port != 0 {
				port = box.Port
			}
			cmd.Printf("  - %s (%s) at %s:%d\n", box.ID, box.Name, box.Address, port)
		}

		return nil
	},
}

var hubTokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API bearer token",
	Long: `Issue a bearer token signed with the configured api.jwt_secret. Clients
send it in the Authorization header of every request except /api/v1/health.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(hubConfigPath)
		if err != nil {
			return err
		}
		if cfg.API.JWTSecret == "" {
			return fmt.Errorf("api.jwt_secret is not set in %s; the API runs without authentication", hubConfigPath)
		}

		tokens := hub.NewTokenService(cfg.API.JWTSecret, cfg.API.JWTIssuer, cfg.API.TokenExpiry)
		token, err := tokens.GenerateToken(hubTokenSubject)
		if err != nil {
			return fmt.Errorf("failed to generate token: %w", err)
		}

		cmd.Println(token)
		return nil
	},
}

var hubConfigBackupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Copy the configuration file to <config>.backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := config.NewManager(hubConfigPath)
		if err := manager.BackupConfig(); err != nil {
			return err
		}
		cmd.Printf("Backup written to: %s.backup\n", manager.Path())
		return nil
	},
}

var hubConfigRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the configuration file with its backup",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := config.NewManager(hubConfigPath)
		if err := manager.RestoreFromBackup(); err != nil {
			return err
		}
		cmd.Printf("Configuration restored: %s\n", manager.Path())
		return nil
	},
}

var hubBoxCmd = &cobra.Command{
	Use:   "box",
	Short: "Manage the boxes served by the hub",
}

var hubBoxListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured boxes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		boxes, err := config.NewManager(hubConfigPath).ListBoxes()
		if err != nil {
			return err
		}
		for _, box := range boxes {
			line := fmt.Sprintf("%s\t%s", box.ID, box.Address)
			if box.Port != 0 {
				line += fmt.Sprintf(":%d", box.Port)
			}
			if box.Name != "" {
				line += "\t" + box.Name
			}
			cmd.Println(line)
		}
		return nil
	},
}

var hubBoxAddCmd = &cobra.Command{
	Use:   "add <id> <address>",
	Short: "Add a box to the configuration",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		box := config.BoxConfig{ID: args[0], Name: hubBoxName, Address: args[1], Port: hubBoxPort}
		if err := config.NewManager(hubConfigPath).AddBox(box); err != nil {
			return err
		}
		cmd.Printf("Added box %s at %s\n", box.ID, box.Address)
		return nil
	},
}

var hubBoxUpdateCmd = &cobra.Command{
	Use:   "update <id> <address>",
	Short: "Change the address, name or port of a box",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		box := config.BoxConfig{Name: hubBoxName, Address: args[1], Port: hubBoxPort}
		if err := config.NewManager(hubConfigPath).UpdateBox(args[0], box); err != nil {
			return err
		}
		cmd.Printf("Updated box %s\n", args[0])
		return nil
	},
}

var hubBoxRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a box from the configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.NewManager(hubConfigPath).RemoveBox(args[0]); err != nil {
			return err
		}
		cmd.Printf("Removed box %s\n", args[0])
		return nil
	},
}

func init() {
	// Main hub command flags
	hubCmd.PersistentFlags().StringVarP(&hubConfigPath, "config", "c", config.DefaultPath, "Path to hub configuration file")
	hubCmd.Flags().BoolVarP(&hubDebugFlag, "debug", "d", false, "Enable debug logging")

	// Add subcommands
	hubCmd.AddCommand(hubConfigCmd)
	hubCmd.AddCommand(hubTokenCmd)
	hubConfigCmd.AddCommand(hubConfigGenerateCmd)
	hubConfigCmd.AddCommand(hubConfigValidateCmd)
	hubConfigCmd.AddCommand(hubConfigBackupCmd)
	hubConfigCmd.AddCommand(hubConfigRestoreCmd)

	hubCmd.AddCommand(hubBoxCmd)
	hubBoxCmd.AddCommand(hubBoxListCmd)
	hubBoxCmd.AddCommand(hubBoxAddCmd)
	hubBoxCmd.AddCommand(hubBoxUpdateCmd)
	hubBoxCmd.AddCommand(hubBoxRemoveCmd)
	for _, c := range []*cobra.Command{hubBoxAddCmd, hubBoxUpdateCmd} {
		c.Flags().StringVarP(&hubBoxName, "name", "n", "", "Display name")
		c.Flags().IntVarP(&hubBoxPort, "port", "p", 0, "Control port when it differs from control.port")
	}

	hubTokenCmd.Flags().StringVarP(&hubTokenSubject, "subject", "s", "mediaroom-client", "Subject recorded in the token")
}
