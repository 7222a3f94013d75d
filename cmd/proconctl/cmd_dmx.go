package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/spf13/cobra"
)

var dmxCmd = &cobra.Command{
	Use:   "dmx",
	Short: "DMX channel commands",
	Long:  `Read and write the 16 DMX channels. Channel numbers are 0-based.`,
}

var dmxGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print all DMX channel levels",
	Args:  cobra.NoArgs,
	RunE:  runDMXGet,
}

var dmxSetCmd = &cobra.Command{
	Use:   "set <channel> <value>",
	Short: "Set one DMX channel (0-255)",
	Args:  cobra.ExactArgs(2),
	RunE:  runDMXSet,
}

func init() {
	rootCmd.AddCommand(dmxCmd)
	dmxCmd.AddCommand(dmxGetCmd)
	dmxCmd.AddCommand(dmxSetCmd)
}

func runDMXGet(cmd *cobra.Command, args []string) error {
	c, err := newController()
	if err != nil {
		return err
	}
	state, err := c.DMX(cmd.Context())
	if err != nil {
		return err
	}
	printDMX(cmd.OutOrStdout(), state)
	return nil
}

func runDMXSet(cmd *cobra.Command, args []string) error {
	channel, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid channel %q", args[0])
	}
	value, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid value %q", args[1])
	}

	c, err := newController()
	if err != nil {
		return err
	}
	state, err := c.SetDMXChannel(cmd.Context(), channel, value)
	if err != nil {
		return err
	}
	printDMX(cmd.OutOrStdout(), state)
	return nil
}

func printDMX(out io.Writer, state *procon.DMXState) {
	for i, v := range state.Channels {
		fmt.Fprintf(out, "CH%-2d %3d\n", i, v)
	}
}
