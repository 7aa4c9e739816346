package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"lp-pool-watcher/internal/model"
)

// Export renders one pool's snapshot history as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Pool == "" {
		return errors.New("--pool is required")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("history.dsn not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	poolAddress, err := a.resolvePoolAddress(opts.Pool)
	if err != nil {
		return err
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Monitoring.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	snapshots, err := store.ListSnapshotsBetween(ctx, poolAddress, from, to)
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		a.Logger.Info().Str("pool", poolAddress).Msg("no snapshots found for export window")
		return nil
	}

	downsampled := downsampleSnapshots(snapshots, opts.MaxPoints)
	a.Logger.Info().Int("total", len(snapshots)).Int("exported", len(downsampled)).Msg("exporting snapshots")

	if opts.CSVPath != "" {
		if err := writeSnapshotsCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotsPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

// resolvePoolAddress accepts either a configured pool name or a raw
// address.
func (a *App) resolvePoolAddress(ref string) (string, error) {
	for _, pool := range a.Config.Pools {
		if strings.EqualFold(pool.Name, ref) || strings.EqualFold(pool.Address, ref) {
			return pool.Address, nil
		}
	}
	if strings.HasPrefix(ref, "0x") {
		return ref, nil
	}
	return "", fmt.Errorf("unknown pool %q", ref)
}

func downsampleSnapshots(snapshots []model.PoolSnapshot, max int) []model.PoolSnapshot {
	if max <= 0 || len(snapshots) <= max {
		return snapshots
	}

	result := make([]model.PoolSnapshot, 0, max)
	step := float64(len(snapshots)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(snapshots) {
			idx = len(snapshots) - 1
		}
		result = append(result, snapshots[idx])
	}
	return result
}

func writeSnapshotsCSV(path string, snapshots []model.PoolSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"sampled_at", "pool", "token0_symbol", "token0_amount", "token0_price_usd", "token1_symbol", "token1_amount", "token1_price_usd", "tvl_usd"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, snapshot := range snapshots {
		record := []string{
			snapshot.SampledAt.Format(time.RFC3339),
			snapshot.PoolAddress,
			snapshot.Token0.Symbol,
			snapshot.Token0.Amount.String(),
			snapshot.Token0.PriceUSD.String(),
			snapshot.Token1.Symbol,
			snapshot.Token1.Amount.String(),
			snapshot.Token1.PriceUSD.String(),
			snapshot.TVLUSD.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSnapshotsPNG(path string, snapshots []model.PoolSnapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(snapshots))
	tvl := make([]float64, len(snapshots))
	target := make([]float64, len(snapshots))

	for i, snapshot := range snapshots {
		x[i] = snapshot.SampledAt
		tvl[i] = snapshot.TVLUSD.InexactFloat64()
		target[i] = snapshot.TargetPosition().Amount.InexactFloat64()
	}

	usdFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "TVL (USD)",
			ValueFormatter: usdFormatter,
		},
		YAxisSecondary: chart.YAxis{
			Name:           "Target token amount",
			ValueFormatter: usdFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "TVL",
				XValues: x,
				YValues: tvl,
			},
			chart.TimeSeries{
				Name:    "Target amount",
				XValues: x,
				YValues: target,
				YAxis:   chart.YAxisSecondary,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
