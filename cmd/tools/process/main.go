// process runs the opportunity pipeline over collector output files.
//
// Usage:
//
//	process [flags] <file.json|-> [more files...]
//	process --source Zealy zealy.json --source Galxe galxe.json --min-roi 1.5 --persist
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/david/quest-radar/internal/config"
	"github.com/david/quest-radar/internal/db"
	"github.com/david/quest-radar/internal/export"
	"github.com/david/quest-radar/internal/ingest"
	"github.com/david/quest-radar/internal/logger"
)

type processFlags struct {
	configPath string
	sources    []string
	minROI     float64
	outDir     string
	noFile     bool
	persist    bool
	top        int
}

func newProcessCmd() *cobra.Command {
	var flags processFlags
	cmd := &cobra.Command{
		Use:   "process <file>...",
		Short: "Score, deduplicate and tier collector output",
		Long: "Reads raw opportunity batches (a JSON array, or an object with an\n" +
			"\"opportunities\" list), runs them through one pipeline pass and writes\n" +
			"processed_opportunities_<unix>.json. Use - to read a batch from stdin.",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(cmd, args, flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.configPath, "config", "c", "", "YAML config file laid over the built-in defaults")
	f.StringArrayVarP(&flags.sources, "source", "s", nil, "Source label for the file at the same position (repeatable)")
	f.Float64Var(&flags.minROI, "min-roi", ingest.DefaultMinROI, "Minimum ROI in USD per minute (overrides config)")
	f.StringVarP(&flags.outDir, "out", "o", "", "Output directory (overrides config)")
	f.BoolVar(&flags.noFile, "no-file", false, "Do not write the output file")
	f.BoolVar(&flags.persist, "persist", false, "Store the run and its opportunities in Postgres")
	f.IntVar(&flags.top, "top", -1, "Rows in the top table; 0 prints all (default from config)")
	return cmd
}

func runProcess(cmd *cobra.Command, paths []string, flags processFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("min-roi") {
		cfg.Pipeline.MinROI = flags.minROI
	}
	if flags.outDir != "" {
		cfg.Output.Dir = flags.outDir
	}
	if flags.top >= 0 {
		cfg.Output.TopN = flags.top
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	registry, err := ingest.LoadRegistry(cfg.SourcesFile)
	if err != nil {
		return err
	}
	pipeline := ingest.NewPipeline(cfg.PipelineOptions(registry, log))

	batches, err := loadBatches(cmd, paths, flags.sources)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	started := time.Now()
	bundle, err := pipeline.ProcessSources(ctx, batches, cfg.Pipeline.MinROI)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var outputFile string
	if !flags.noFile {
		outputFile, err = export.WriteBundleFile(cfg.Output.Dir, bundle, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %d opportunities to %s\n", len(bundle.ProcessedOpportunities), outputFile)
	}

	export.RenderStats(out, bundle)
	export.RenderTop(out, bundle, pipeline.Tiers(), cfg.Output.TopN)

	if flags.persist {
		run, err := persist(ctx, cfg, log, bundle, pipeline.Tiers(), db.RunInput{
			StartedAt:  started,
			Sources:    batchSources(batches),
			OutputFile: outputFile,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Saved run %s\n", run)
	}
	return nil
}

// loadBatches reads each path (or stdin for "-") and applies the label at
// the same position in labels, when one is given.
func loadBatches(cmd *cobra.Command, paths, labels []string) ([]ingest.SourceBatch, error) {
	if len(labels) > len(paths) {
		return nil, fmt.Errorf("%d --source labels for %d files", len(labels), len(paths))
	}

	batches := make([]ingest.SourceBatch, 0, len(paths))
	for i, path := range paths {
		var (
			batch ingest.SourceBatch
			err   error
		)
		if path == "-" {
			batch, err = ingest.DecodeBatch(cmd.InOrStdin())
		} else {
			batch, err = ingest.LoadBatchFile(path)
		}
		if err != nil {
			return nil, err
		}
		if i < len(labels) && labels[i] != "" {
			batch.Source = labels[i]
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

func batchSources(batches []ingest.SourceBatch) []string {
	var out []string
	seen := map[string]bool{}
	for _, b := range batches {
		if b.Source != "" && !seen[b.Source] {
			seen[b.Source] = true
			out = append(out, b.Source)
		}
	}
	return out
}

func persist(ctx context.Context, cfg *config.Config, log logger.Logger, b ingest.Bundle, tiers ingest.Tiers, in db.RunInput) (string, error) {
	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return "", err
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, log); err != nil {
		return "", fmt.Errorf("migrate: %w", err)
	}
	run, err := db.NewStore(pool).SaveRun(ctx, b, tiers, in)
	if err != nil {
		return "", err
	}
	return run.ID.String(), nil
}

func main() {
	if err := newProcessCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
