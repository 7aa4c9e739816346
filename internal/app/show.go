package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// Show prints recent snapshots.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("history.dsn not configured; cannot show snapshots")
	}
	if closeStore != nil {
		defer closeStore()
	}

	snapshots, err := store.ListRecentSnapshots(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Fprintln(os.Stdout, "no snapshots found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPool\tPair\tToken0\tToken1\tTVL (USD)")

	for _, snapshot := range snapshots {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s/%s\t%s\t%s\t%s\n",
			snapshot.SampledAt.UTC().Format(time.RFC3339),
			snapshot.PoolName,
			snapshot.Token0.Symbol,
			snapshot.Token1.Symbol,
			formatDecimal(snapshot.Token0.Amount, 2),
			formatDecimal(snapshot.Token1.Amount, 2),
			formatDecimal(snapshot.TVLUSD, 2),
		)
	}

	writer.Flush()
	return nil
}
