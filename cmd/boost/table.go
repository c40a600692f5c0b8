package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/born-ml/boost/internal/memory"
	"github.com/born-ml/boost/internal/trainer"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

func newTable(w io.Writer) *tablewriter.Table {
	return tablewriter.NewTable(w, tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
		Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.Off}},
	})))
}

func printTrace(w io.Writer, trace []trainer.Round) error {
	table := newTable(w)
	table.Header([]string{"ROUND", "METRIC", "SCORE", "TIME"})
	for _, r := range trace {
		if err := table.Append([]string{
			strconv.Itoa(r.Index),
			r.Metric,
			strconv.FormatFloat(r.Score, 'g', 6, 64),
			r.Duration.Round(time.Microsecond).String(),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func printAllocStats(w io.Writer, res *trainer.Result) error {
	table := newTable(w)
	table.Header([]string{"SPACE", "HITS", "MISSES", "EVICTIONS", "LIVE", "CACHED", "TRANSFERRED"})
	rows := []struct {
		name  string
		stats memory.Stats
		moved uint64
	}{
		{"host", res.HostStats, res.Transfers.DeviceToHost},
		{"device", res.DeviceStats, res.Transfers.HostToDevice},
	}
	for _, r := range rows {
		if err := table.Append([]string{
			r.name,
			strconv.FormatUint(r.stats.Hits, 10),
			strconv.FormatUint(r.stats.Misses, 10),
			strconv.FormatUint(r.stats.Evictions, 10),
			fmt.Sprintf("%d (%s)", r.stats.LiveBlocks, humanSize(r.stats.LiveBytes)),
			fmt.Sprintf("%d (%s)", r.stats.CachedBlocks, humanSize(r.stats.CachedBytes)),
			humanSize(int64(r.moved)), //nolint:gosec // G115: transfer totals fit in int64
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func humanSize(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
