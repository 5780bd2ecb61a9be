package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"mediaroom/internal/config"
	"mediaroom/internal/discovery"
	"mediaroom/internal/keys"
	"mediaroom/internal/remote"
)

var (
	boxConfigPath   string
	boxPort         int
	boxStateTimeout time.Duration

	discoverMaxWait time.Duration
	discoverIgnore  []string
	discoverDetails bool
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Listen for set-top box announcements",
	Long: `Listen on the NOTIFY multicast group and print the address of every box
heard before --max-wait elapses. Addresses passed with --ignore are left out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		scanner := discovery.NewScanner()
		maxWait := discoverMaxWait
		var cfg *config.Config

		if boxConfigPath != "" {
			loaded, err := config.Load(boxConfigPath)
			if err != nil {
				return err
			}
			cfg = loaded
			scanner.ListenConfig = cfg.ListenConfig()
			if !cmd.Flags().Changed("max-wait") {
				maxWait = cfg.Discovery.MaxWait
			}
		}
		ignore := ignoreList(discoverIgnore, cfg)

		log.Info().
			Dur("max_wait", maxWait).
			Strs("ignore", ignore).
			Msg("Scanning for boxes")

		if !discoverDetails {
			found, err := scanner.Discover(cmd.Context(), ignore, maxWait)
			if err != nil {
				return err
			}
			for _, address := range found {
				cmd.Println(address)
			}
			if len(found) == 0 {
				cmd.PrintErrln("No boxes found")
			}
			return nil
		}

		found, err := scanner.Scan(cmd.Context(), maxWait)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ADDRESS\tSTATE\tANNOUNCEMENTS\tDEVICE UUID")
		for _, box := range found {
			if contains(ignore, box.Address) {
				continue
			}
			state := remote.StateStandby
			if box.Tuned {
				state = remote.StatePlaying
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", box.Address, state, box.Announcements, box.DeviceUUID)
		}
		return w.Flush()
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <box> <command>...",
	Short: "Press keys on a box",
	Long: `Send one or more commands to a box. A command is a key name such as Power,
Menu or ChanUp, or a channel number below 999 which is entered digit by digit.
<box> is an address, or a box id when --config is given.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController(cmd, args[0])
		if err != nil {
			return err
		}
		defer controller.Close()

		for _, arg := range args[1:] {
			command := remote.ParseCommand(arg)
			if err := controller.SendCommand(cmd.Context(), command); err != nil {
				return err
			}
			cmd.Printf("Sent %s to %s\n", command, controller.Address())
		}
		return nil
	},
}

var stateCmd = &cobra.Command{
	Use:   "state <box>",
	Short: "Report whether a box is off, in standby or playing",
	Long: `Wait for the box's next NOTIFY announcement and print its state.
A box that stays silent for --state-timeout is reported as OFF.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		controller, err := newController(cmd, args[0])
		if err != nil {
			return err
		}
		defer controller.Close()

		state, err := controller.GetState(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println(state)
		return nil
	},
}

var onCmd = &cobra.Command{
	Use:   "on <box>",
	Short: "Switch a box on unless it is already playing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPower(cmd, args[0], true)
	},
}

var offCmd = &cobra.Command{
	Use:   "off <box>",
	Short: "Put a box in standby unless it is already off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPower(cmd, args[0], false)
	},
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List key names and their codes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		table := keys.Default()
		if boxConfigPath != "" {
			cfg, err := config.Load(boxConfigPath)
			if err != nil {
				return err
			}
			table = cfg.KeyTable()
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, name := range table.Names() {
			fmt.Fprintf(w, "%s\t%d\n", name, table[name])
		}
		return w.Flush()
	},
}

func runPower(cmd *cobra.Command, target string, on bool) error {
	controller, err := newController(cmd, target)
	if err != nil {
		return err
	}
	defer controller.Close()

	var sent bool
	if on {
		sent, err = controller.TurnOn(cmd.Context())
	} else {
		sent, err = controller.TurnOff(cmd.Context())
	}
	if err != nil {
		return err
	}

	if sent {
		cmd.Printf("Sent %s to %s\n", keys.Power, controller.Address())
	} else {
		cmd.Printf("%s already in the requested state, nothing sent\n", controller.Address())
	}
	return nil
}

// newController builds a controller for target. With --config, target may
// name a configured box and the file's control settings apply; explicit
// flags win over both.
func newController(cmd *cobra.Command, target string) (*remote.Controller, error) {
	address := target
	var opts []remote.Option

	if boxConfigPath != "" {
		cfg, err := config.Load(boxConfigPath)
		if err != nil {
			return nil, err
		}
		box := config.BoxConfig{Address: target}
		if configured, err := cfg.GetBox(target); err == nil {
			box = *configured
			address = configured.Address
		}
		opts = cfg.ControllerOptions(box)
	}

	if cmd.Flags().Changed("port") {
		opts = append(opts, remote.WithPort(boxPort))
	}
	if cmd.Flags().Changed("state-timeout") {
		opts = append(opts, remote.WithQueryTimeout(boxStateTimeout))
	}

	log.Debug().
		Str("target", target).
		Str("address", address).
		Msg("Creating controller")

	return remote.New(address, opts...)
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

func init() {
	for _, c := range []*cobra.Command{discoverCmd, sendCmd, stateCmd, onCmd, offCmd, keysCmd} {
		c.Flags().StringVarP(&boxConfigPath, "config", "c", "", "Optional configuration file with network, control and box settings")
		rootCmd.AddCommand(c)
	}

	for _, c := range []*cobra.Command{sendCmd, stateCmd, onCmd, offCmd} {
		c.Flags().IntVarP(&boxPort, "port", "p", 8082, "Control port on the box")
		c.Flags().DurationVar(&boxStateTimeout, "state-timeout", remote.DefaultQueryTimeout, "How long to wait for an announcement before reporting OFF")
	}

	discoverCmd.Flags().DurationVarP(&discoverMaxWait, "max-wait", "w", discovery.DefaultScanTimeout, "How long to listen for announcements")
	discoverCmd.Flags().StringSliceVarP(&discoverIgnore, "ignore", "i", nil, "Addresses to leave out of the results")
	discoverCmd.Flags().BoolVarP(&discoverDetails, "details", "d", false, "Show state and device UUID for each box")
}

// ignoreList merges the --ignore flag with the configured ignore list into a fresh slice
func ignoreList(flagged []string, cfg *config.Config) []string {
	ignore := append([]string(nil), flagged...)
	if cfg != nil {
		ignore = append(ignore, cfg.Discovery.Ignore...)
	}
	return ignore
}
