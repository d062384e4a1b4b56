package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/quest-radar/internal/config"
	"github.com/david/quest-radar/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer pool.Close()

	runs, err := db.NewStore(pool).ListRuns(ctx, 10)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Run", "Sources", "Raw", "Skipped", "Unique", "Kept", "Avg ROI", "Max ROI", "Duration", "Started At"})

	for _, r := range runs {
		duration := r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		t.AppendRow(table.Row{
			r.ID.String()[:8],
			strings.Join(r.Sources, ","),
			r.TotalRaw,
			r.Skipped,
			r.AfterDeduplication,
			r.AfterROIFilter,
			r.AvgROI,
			r.MaxROI,
			duration,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	t.Render()
}
