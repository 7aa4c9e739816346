package cli

import (
	"github.com/spf13/cobra"
)

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List configured pools",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListPools()
	},
}
