package main

import (
	"fmt"
	"strconv"

	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/spf13/cobra"
)

var dosageCmd = &cobra.Command{
	Use:   "dosage <chlorine|ph_minus|ph_plus> <seconds>",
	Short: "Start a manual dosage",
	Args:  cobra.ExactArgs(2),
	RunE:  runDosage,
}

func init() {
	rootCmd.AddCommand(dosageCmd)
}

func runDosage(cmd *cobra.Command, args []string) error {
	target, err := procon.ParseDosageTarget(args[0])
	if err != nil {
		return err
	}
	seconds, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid duration %q", args[1])
	}

	c, err := newController()
	if err != nil {
		return err
	}
	if err := c.StartDosage(cmd.Context(), target, seconds); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Started %s dosage for %ds\n", target, seconds)
	return nil
}
