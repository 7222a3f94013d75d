package main

import (
	"fmt"
	"strconv"

	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/spf13/cobra"
)

var relayCmd = &cobra.Command{
	Use:   "relay on|off|auto <id>",
	Short: "Switch a relay",
	Long: `Switch a single relay on, off or back to automatic mode. All other
relays keep their current state. Relay ids are 0-based, 8-15 address the
relay extension.`,
	Args: cobra.ExactArgs(2),
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	action, err := procon.ParseRelayAction(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid relay id %q", args[1])
	}

	c, err := newController()
	if err != nil {
		return err
	}
	if err := c.SwitchRelay(cmd.Context(), id, action); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Relay %d set to %s\n", id, action)
	return nil
}
