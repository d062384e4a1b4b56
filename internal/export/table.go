package export

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/david/quest-radar/internal/ingest"
)

const titleWidth = 48

// RenderTop prints the n best opportunities above the threshold, highest ROI
// first. n <= 0 prints all of them.
func RenderTop(w io.Writer, b ingest.Bundle, tiers ingest.Tiers, n int) {
	opps := b.ProcessedOpportunities
	if n > 0 && len(opps) > n {
		opps = opps[:n]
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Title", "Source", "Reward", "Minutes", "ROI ($/min)", "Tier"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Title", WidthMax: titleWidth},
		{Name: "ROI ($/min)", Align: text.AlignRight},
	})

	for i, o := range opps {
		t.AppendRow(table.Row{
			i + 1,
			ingest.TruncateText(o.Title, titleWidth),
			o.Source,
			fmt.Sprintf("%g %s", o.RewardAmountExtracted, o.CurrencyDetected),
			o.TimeEstimated,
			fmt.Sprintf("%.2f", o.ROI),
			tiers.Classify(o.ROI),
		})
	}
	if len(opps) == 0 {
		t.AppendRow(table.Row{"-", fmt.Sprintf("nothing at or above %.2f $/min", b.MinROI), "", "", "", "", ""})
	}
	t.Render()
}

// RenderStats prints the run counters and tier sizes.
func RenderStats(w io.Writer, b ingest.Bundle) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Raw records", b.Stats.TotalRaw},
		{"Skipped", b.Stats.Skipped},
		{"After deduplication", b.Stats.AfterDeduplication},
		{"After ROI filter", b.Stats.AfterROIFilter},
		{"Avg ROI ($/min)", b.Stats.AvgROI},
		{"Max ROI ($/min)", b.Stats.MaxROI},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"High tier", len(b.Categories.High)},
		{"Medium tier", len(b.Categories.Medium)},
		{"Low tier", len(b.Categories.Low)},
	})
	t.Render()
}
