package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"vo-performance-bot/internal/performance"
)

// Export renders stored series as a spreadsheet-style CSV and/or a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	horizon := performance.Horizon(opts.Horizon)
	if horizon == "" {
		horizon = performance.Horizon24h
	}
	if !horizon.Valid() {
		return fmt.Errorf("unknown horizon %q (want 24h or 30d)", opts.Horizon)
	}
	opts.MaxDates = a.Config.ResolveMaxDates(opts.MaxDates)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var snap performance.Snapshot
	if len(opts.IDs) > 0 {
		snap, err = store.ByIDs(ctx, opts.IDs)
	} else {
		snap, err = store.All(ctx)
	}
	if err != nil {
		return err
	}
	if len(snap) == 0 {
		a.Logger.Info().Msg("no operators found for export")
		return nil
	}

	dates := exportDates(snap, horizon, opts.MaxDates)
	a.Logger.Info().Int("operators", len(snap)).Int("dates", len(dates)).Str("horizon", string(horizon)).Msg("exporting series")

	if opts.CSVPath != "" {
		if err := writeFile(opts.CSVPath, func(w io.Writer) error {
			return writeSeriesCSV(w, snap, horizon, dates)
		}); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeFile(opts.PNGPath, func(w io.Writer) error {
			return writeSeriesPNG(w, snap, horizon, dates)
		}); err != nil {
			return err
		}
	}
	return nil
}

// exportDates returns the union of dates for horizon, newest first, capped at max.
func exportDates(snap performance.Snapshot, horizon performance.Horizon, max int) []string {
	seen := make(map[string]struct{})
	for _, rec := range snap {
		for date := range rec.Series(horizon) {
			seen[date] = struct{}{}
		}
	}
	dates := make([]string, 0, len(seen))
	for date := range seen {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if max > 0 && len(dates) > max {
		dates = dates[:max]
	}
	return dates
}

func boolFlag(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

func writeSeriesCSV(w io.Writer, snap performance.Snapshot, horizon performance.Horizon, dates []string) error {
	writer := csv.NewWriter(w)

	header := append([]string{"OperatorID", "Name", "isVO", "isPrivate", "ValidatorCount", "Address"}, dates...)
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, id := range snap.SortedIDs() {
		rec := snap[id]
		row := []string{
			strconv.FormatInt(rec.ID, 10),
			rec.Name,
			boolFlag(rec.Verified),
			boolFlag(rec.Private),
			strconv.Itoa(rec.ValidatorCount),
			rec.Address,
		}
		series := rec.Series(horizon)
		for _, date := range dates {
			row = append(row, performance.FormatValue(series[date]))
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSeriesPNG(w io.Writer, snap performance.Snapshot, horizon performance.Horizon, dates []string) error {
	// Oldest first on the x axis.
	ordered := make([]string, len(dates))
	for i, d := range dates {
		ordered[len(dates)-1-i] = d
	}

	var series []chart.Series
	for _, id := range snap.SortedIDs() {
		rec := snap[id]
		points := rec.Series(horizon)
		var xs []time.Time
		var ys []float64
		for _, date := range ordered {
			v, ok := points[date]
			if !ok || !v.Valid {
				continue
			}
			ts, err := time.Parse(performance.DateLayout, date)
			if err != nil {
				continue
			}
			xs = append(xs, ts)
			ys = append(ys, v.Decimal.InexactFloat64()*100)
		}
		if len(xs) < 2 {
			continue
		}
		series = append(series, chart.TimeSeries{
			Name:    fmt.Sprintf("%d %s", rec.ID, rec.Name),
			XValues: xs,
			YValues: ys,
		})
	}
	if len(series) == 0 {
		return errors.New("not enough points to chart; need at least two dated values per operator")
	}

	percentFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f%%")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           fmt.Sprintf("Performance %s (%%)", horizon),
			ValueFormatter: percentFormatter,
		},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

func writeFile(path string, render func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
