package ingest

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/david/quest-radar/internal/logger"
)

const (
	// DefaultMinROI is the notification threshold in USD per minute.
	DefaultMinROI = 2.0
	// DefaultTimeEstMin is used when neither the record nor its source gives
	// an effort estimate.
	DefaultTimeEstMin = 5.0
	// DefaultStatsPrecision is the number of decimals kept on avg/max ROI.
	DefaultStatsPrecision = 2
)

// Options configures a Pipeline. Zero values fall back to the defaults.
type Options struct {
	Rates             RateTable
	UnknownRate       *float64
	ROIPrecision      *int
	StatsPrecision    *int
	Tiers             *Tiers
	FingerprintFields []string
	DefaultReward     *RewardDefault
	DefaultTimeEstMin float64
	Sources           *Registry
	Logger            logger.Logger
}

// Pipeline runs extraction, ROI scoring, deduplication, filtering and
// categorization over a batch. It keeps no state between calls and only
// reads its configuration, so one Pipeline may serve concurrent callers.
type Pipeline struct {
	calc           *Calculator
	fingerprinter  Fingerprinter
	tiers          Tiers
	defaultReward  RewardDefault
	defaultTime    float64
	statsPrecision int
	sources        *Registry
	log            logger.Logger
}

// NewPipeline builds a pipeline from opts.
func NewPipeline(opts Options) *Pipeline {
	unknownRate := DefaultUnknownRate
	if opts.UnknownRate != nil {
		unknownRate = *opts.UnknownRate
	}
	roiPrecision := DefaultROIPrecision
	if opts.ROIPrecision != nil {
		roiPrecision = *opts.ROIPrecision
	}
	statsPrecision := DefaultStatsPrecision
	if opts.StatsPrecision != nil {
		statsPrecision = *opts.StatsPrecision
	}
	tiers := DefaultTiers()
	if opts.Tiers != nil {
		tiers = *opts.Tiers
	}
	reward := RewardDefault{Amount: 10, Currency: "USD"}
	if opts.DefaultReward != nil {
		reward = *opts.DefaultReward
		if reward.Currency == "" {
			reward.Currency = "USD"
		}
	}
	defaultTime := opts.DefaultTimeEstMin
	if defaultTime <= 0 {
		defaultTime = DefaultTimeEstMin
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	return &Pipeline{
		calc:           NewCalculator(opts.Rates, unknownRate, roiPrecision),
		fingerprinter:  NewFingerprinter(opts.FingerprintFields...),
		tiers:          tiers,
		defaultReward:  reward,
		defaultTime:    defaultTime,
		statsPrecision: statsPrecision,
		sources:        opts.Sources,
		log:            log,
	}
}

// Tiers returns the tier thresholds in use.
func (p *Pipeline) Tiers() Tiers {
	return p.tiers
}

// Annotate normalizes every record and attaches extracted reward, currency,
// time estimate and ROI. Unusable records are logged, counted and dropped.
func (p *Pipeline) Annotate(raws []RawOpportunity, sourceHint string) ([]Opportunity, Diagnostics) {
	var diag Diagnostics
	out := make([]Opportunity, 0, len(raws))

	for i, raw := range raws {
		opp, err := FromRaw(raw, sourceHint)
		if err != nil {
			diag.Skipped++
			p.log.Warn("Skipping unusable record",
				logger.Int("index", i),
				logger.String("source", sourceHint),
				logger.Error(err),
			)
			continue
		}

		ext := ExtractReward(opp.Reward, p.defaultReward)
		if ext.Defaulted {
			diag.RewardDefaulted++
		}
		if ext.Unparsed {
			diag.RewardUnparsed++
		}

		minutes, ok := readTimeEstimate(raw)
		if !ok {
			minutes = p.sources.DefaultTimeEstimate(opp.Source, p.defaultTime)
			diag.TimeDefaulted++
		}
		if ClampMinutes(minutes) != minutes {
			diag.TimeClamped++
		}

		opp.RewardAmountExtracted = ext.Amount
		opp.CurrencyDetected = ext.Currency
		opp.TimeEstimated = minutes
		opp.ROI = p.calc.ROI(ext.Amount, ext.Currency, minutes)
		if opp.ROI < 0 {
			diag.NegativeROI++
			p.log.Warn("Negative ROI",
				logger.String("title", opp.Title),
				logger.Float64("amount", ext.Amount),
			)
		}

		out = append(out, opp)
	}

	return out, diag
}

// Process runs the full pipeline over one batch. Records without a source
// label keep an empty source.
func (p *Pipeline) Process(raws []RawOpportunity, minROI float64) (Bundle, error) {
	if err := validateMinROI(minROI); err != nil {
		return Bundle{}, err
	}

	p.log.Info("Processing started", logger.Int("total_raw", len(raws)))
	annotated, diag := p.Annotate(raws, "")
	return p.finish(annotated, len(raws), diag, minROI), nil
}

// ProcessSources annotates each collector's batch concurrently, then merges
// them in batch order and runs one deduplication pass over the whole set so
// duplicates across sources are caught.
func (p *Pipeline) ProcessSources(ctx context.Context, batches []SourceBatch, minROI float64) (Bundle, error) {
	if err := validateMinROI(minROI); err != nil {
		return Bundle{}, err
	}

	annotated := make([][]Opportunity, len(batches))
	diags := make([]Diagnostics, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			annotated[i], diags[i] = p.Annotate(batch.Records, batch.Source)
			p.log.Debug("Source annotated",
				logger.String("source", batch.Source),
				logger.Int("records", len(batch.Records)),
				logger.Int("kept", len(annotated[i])),
			)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Bundle{}, fmt.Errorf("annotate sources: %w", err)
	}

	var (
		merged   []Opportunity
		diag     Diagnostics
		totalRaw int
	)
	for i, batch := range batches {
		totalRaw += len(batch.Records)
		merged = append(merged, annotated[i]...)
		diag.Add(diags[i])
	}

	p.log.Info("Processing started",
		logger.Int("sources", len(batches)),
		logger.Int("total_raw", totalRaw),
	)
	return p.finish(merged, totalRaw, diag, minROI), nil
}

func (p *Pipeline) finish(annotated []Opportunity, totalRaw int, diag Diagnostics, minROI float64) Bundle {
	unique := p.fingerprinter.Deduplicate(annotated)
	p.log.Info("Deduplication",
		logger.Int("before", len(annotated)),
		logger.Int("after", len(unique)),
	)

	filtered, roiStats := FilterByROI(unique, minROI)
	p.log.Info("ROI filter",
		logger.Float64("min_roi", minROI),
		logger.Int("before", len(unique)),
		logger.Int("after", len(filtered)),
		logger.Float64("roi_min", roiStats.Min),
		logger.Float64("roi_max", roiStats.Max),
		logger.Float64("roi_avg", roiStats.Avg),
	)

	// Categorization sees every unique opportunity, not only those above
	// the threshold.
	categories := p.tiers.Categorize(unique)
	p.log.Info("ROI categories",
		logger.Int("high", len(categories.High)),
		logger.Int("medium", len(categories.Medium)),
		logger.Int("low", len(categories.Low)),
	)

	return Bundle{
		ProcessedOpportunities: filtered,
		Categories:             categories,
		Stats: Stats{
			TotalRaw:           totalRaw,
			Skipped:            diag.Skipped,
			AfterDeduplication: len(unique),
			AfterROIFilter:     len(filtered),
			AvgROI:             Round(roiStats.Avg, p.statsPrecision),
			MaxROI:             Round(roiStats.Max, p.statsPrecision),
		},
		ROIStats:    roiStats,
		Diagnostics: diag,
		MinROI:      minROI,
	}
}

func validateMinROI(minROI float64) error {
	if math.IsNaN(minROI) || math.IsInf(minROI, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidMinROI, minROI)
	}
	return nil
}
