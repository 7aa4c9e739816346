package cli

import (
	"errors"

	"github.com/spf13/cobra"
)

var (
	simulateDeltaPct float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Simulate a reserve change and trigger the alert pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateDeltaPct == 0 {
			return errors.New("--delta-pct must be non-zero")
		}
		return getApp().SimulateAlert(cmd.Context(), simulateDeltaPct)
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateDeltaPct, "delta-pct", 0, "Percent change to simulate, e.g. 12.5 or -8")
}
