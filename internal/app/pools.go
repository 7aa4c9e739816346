package app

import (
	"fmt"
	"os"
	"text/tabwriter"
)

// ListPools prints the configured pools and their monitoring state.
func (a *App) ListPools() error {
	if len(a.Config.Pools) == 0 {
		fmt.Fprintln(os.Stdout, "no pools configured")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Name\tAddress\tType\tTarget\tEnabled")

	for _, pool := range a.Config.Pools {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%t\n",
			pool.Name,
			pool.Address,
			pool.Type,
			pool.TargetToken,
			pool.Enabled,
		)
	}

	return writer.Flush()
}
