package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/KevinKickass/OpenPoolCore/internal/procon"
	"github.com/spf13/cobra"
)

var stateJSON bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the current controller state",
	Long:  `Fetch GetState.csv and print all measurements and relays.`,
	Args:  cobra.NoArgs,
	RunE:  runState,
}

func init() {
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "print the snapshot as JSON")
	rootCmd.AddCommand(stateCmd)
}

func runState(cmd *cobra.Command, args []string) error {
	c, err := newController()
	if err != nil {
		return err
	}

	s, err := c.Refresh(cmd.Context())
	if err != nil {
		return err
	}

	if stateJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	return printSnapshot(cmd.OutOrStdout(), s)
}

func printSnapshot(out io.Writer, s *procon.Snapshot) error {
	fmt.Fprintf(out, "Version: %s  Time: %s  CPU time: %ds\n", s.Version(), s.Time(), s.CPUTime())
	fmt.Fprintf(out, "Reset: %s  NTP: %s\n\n", s.ResetRootCauseString(), s.NTPFaultStateString())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tCATEGORY\tNAME\tVALUE")
	for _, m := range s.Measurements() {
		if m.Category == procon.CategoryTime || m.IsRelay() {
			continue
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", m.Column, m.Category, m.Name, m.DisplayValue)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(out)
	return printRelays(out, s)
}

func printRelays(out io.Writer, s *procon.Snapshot) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RELAY\tNAME\tSTATE\tDOSAGE")
	for _, r := range s.RelayViews() {
		dosage := ""
		if r.DosageRelay {
			dosage = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, r.Name, r.State, dosage)
	}
	return w.Flush()
}
