package main

import (
	"context"
	"fmt"
	"os"

	"github.com/david/quest-radar/internal/config"
	"github.com/david/quest-radar/internal/db"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	counts, err := db.NewStore(pool).TierCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	var total, withSummary, runs, orphaned int
	err = pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE summary <> ''),
			(SELECT count(*) FROM processing_runs),
			count(*) FILTER (WHERE last_run_id IS NULL)
		FROM opportunities
	`).Scan(&total, &withSummary, &runs, &orphaned)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Processing runs: %d\n", runs)
	fmt.Printf("Opportunities: %d\n", total)
	fmt.Printf("  high:   %d\n", counts["high"])
	fmt.Printf("  medium: %d\n", counts["medium"])
	fmt.Printf("  low:    %d\n", counts["low"])
	fmt.Printf("With summary: %d\n", withSummary)
	fmt.Printf("Without a run: %d\n", orphaned)
}
