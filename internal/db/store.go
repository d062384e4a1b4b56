package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/microcosm-cc/bluemonday"

	"github.com/david/quest-radar/internal/ingest"
	"github.com/david/quest-radar/internal/models"
)

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("processing run not found")

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type Store struct {
	pool      *pgxpool.Pool
	sanitizer *bluemonday.Policy
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, sanitizer: bluemonday.UGCPolicy()}
}

// RunInput carries what a run knows beyond its bundle.
type RunInput struct {
	StartedAt  time.Time
	Sources    []string
	OutputFile string
}

type ListParams struct {
	Tier   string
	MinROI *float64
	Source string
	Limit  int
	Offset int
}

type ListResult struct {
	Opportunities []models.Opportunity `json:"opportunities"`
	Total         int                  `json:"total"`
	Limit         int                  `json:"limit"`
	Offset        int                  `json:"offset"`
}

const upsertOpportunitySQL = `
	INSERT INTO opportunities (
		id, hash, title, url, description, summary, source,
		reward_amount, currency, time_estimated, roi, tier, raw,
		first_seen_at, last_seen_at, last_run_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14, $15)
	ON CONFLICT (hash) DO UPDATE SET
		title = EXCLUDED.title,
		url = EXCLUDED.url,
		description = EXCLUDED.description,
		summary = EXCLUDED.summary,
		source = EXCLUDED.source,
		reward_amount = EXCLUDED.reward_amount,
		currency = EXCLUDED.currency,
		time_estimated = EXCLUDED.time_estimated,
		roi = EXCLUDED.roi,
		tier = EXCLUDED.tier,
		raw = EXCLUDED.raw,
		last_seen_at = EXCLUDED.last_seen_at,
		last_run_id = EXCLUDED.last_run_id
`

// SaveRun records the run and upserts every unique opportunity of b by hash,
// in one transaction. first_seen_at is kept on conflict.
func (s *Store) SaveRun(ctx context.Context, b ingest.Bundle, tiers ingest.Tiers, in RunInput) (*models.ProcessingRun, error) {
	run := newRun(b, in, time.Now().UTC())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO processing_runs (
			id, started_at, completed_at, min_roi, sources, total_raw, skipped,
			after_deduplication, after_roi_filter, avg_roi, max_roi, diagnostics, output_file
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13, ''))
	`, run.ID, run.StartedAt, run.CompletedAt, run.MinROI, run.Sources, run.TotalRaw, run.Skipped,
		run.AfterDeduplication, run.AfterROIFilter, run.AvgROI, run.MaxROI, run.Diagnostics, run.OutputFile)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}

	batch := &pgx.Batch{}
	for _, o := range b.Unique() {
		o = stripOpportunityNUL(o)
		raw, err := json.Marshal(o)
		if err != nil {
			return nil, fmt.Errorf("encode opportunity %s: %w", o.Hash, err)
		}
		batch.Queue(upsertOpportunitySQL,
			uuid.New(), o.Hash, o.Title, o.URL, s.sanitizer.Sanitize(o.Description), o.Summary, o.Source,
			o.RewardAmountExtracted, o.CurrencyDetected, o.TimeEstimated, o.ROI, string(tiers.Classify(o.ROI)), string(raw),
			run.CompletedAt, run.ID,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return nil, fmt.Errorf("upsert opportunities: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit run: %w", err)
	}
	return &run, nil
}

func newRun(b ingest.Bundle, in RunInput, now time.Time) models.ProcessingRun {
	started := in.StartedAt
	if started.IsZero() {
		started = now
	}
	sources := make([]string, 0, len(in.Sources))
	for _, src := range in.Sources {
		sources = append(sources, stripNUL(src))
	}
	d := b.Diagnostics
	return models.ProcessingRun{
		ID:                 uuid.New(),
		StartedAt:          started.UTC(),
		CompletedAt:        now,
		MinROI:             b.MinROI,
		Sources:            sources,
		TotalRaw:           b.Stats.TotalRaw,
		Skipped:            b.Stats.Skipped,
		AfterDeduplication: b.Stats.AfterDeduplication,
		AfterROIFilter:     b.Stats.AfterROIFilter,
		AvgROI:             b.Stats.AvgROI,
		MaxROI:             b.Stats.MaxROI,
		Diagnostics: map[string]int{
			"skipped":          d.Skipped,
			"reward_defaulted": d.RewardDefaulted,
			"reward_unparsed":  d.RewardUnparsed,
			"time_defaulted":   d.TimeDefaulted,
			"time_clamped":     d.TimeClamped,
			"negative_roi":     d.NegativeROI,
		},
		OutputFile: in.OutputFile,
	}
}

// Postgres rejects NUL in text and jsonb values.
func stripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

func stripNULValue(v any) any {
	switch t := v.(type) {
	case string:
		return stripNUL(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[stripNUL(k)] = stripNULValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = stripNULValue(val)
		}
		return out
	}
	return v
}

func stripOpportunityNUL(o ingest.Opportunity) ingest.Opportunity {
	o.Title = stripNUL(o.Title)
	o.URL = stripNUL(o.URL)
	o.Description = stripNUL(o.Description)
	o.Summary = stripNUL(o.Summary)
	o.Source = stripNUL(o.Source)
	o.CurrencyDetected = stripNUL(o.CurrencyDetected)
	if o.Fields != nil {
		o.Fields = stripNULValue(map[string]any(o.Fields)).(map[string]any)
	}
	return o
}

const opportunityCols = `id, hash, title, url, description, summary, source,
	reward_amount, currency, time_estimated, roi, tier, raw,
	first_seen_at, last_seen_at, last_run_id`

func scanOpportunity(scan func(dest ...any) error) (models.Opportunity, error) {
	var o models.Opportunity
	var raw []byte
	err := scan(
		&o.ID, &o.Hash, &o.Title, &o.URL, &o.Description, &o.Summary, &o.Source,
		&o.RewardAmount, &o.Currency, &o.TimeEstimated, &o.ROI, &o.Tier, &raw,
		&o.FirstSeenAt, &o.LastSeenAt, &o.LastRunID,
	)
	if err != nil {
		return o, err
	}
	if len(raw) > 0 {
		o.Raw = json.RawMessage(raw)
	}
	return o, nil
}

// normalizeListParams clamps paging to sane bounds.
func normalizeListParams(p ListParams) ListParams {
	if p.Limit <= 0 {
		p.Limit = defaultListLimit
	}
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// buildListWhere turns the filters into a WHERE clause and its arguments.
func buildListWhere(p ListParams) (string, []any) {
	where := "WHERE 1=1"
	var args []any
	argIdx := 1

	if p.Tier != "" {
		where += fmt.Sprintf(" AND tier = $%d", argIdx)
		args = append(args, p.Tier)
		argIdx++
	}
	if p.MinROI != nil {
		where += fmt.Sprintf(" AND roi >= $%d", argIdx)
		args = append(args, *p.MinROI)
		argIdx++
	}
	if p.Source != "" {
		where += fmt.Sprintf(" AND lower(source) = lower($%d)", argIdx)
		args = append(args, p.Source)
	}

	return where, args
}

// ListOpportunities pages through stored opportunities, best ROI first.
func (s *Store) ListOpportunities(ctx context.Context, params ListParams) (*ListResult, error) {
	params = normalizeListParams(params)
	where, args := buildListWhere(params)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM opportunities "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count failed: %w", err)
	}

	n := len(args)
	selectSQL := fmt.Sprintf("SELECT %s FROM opportunities %s ORDER BY roi DESC, last_seen_at DESC LIMIT $%d OFFSET $%d",
		opportunityCols, where, n+1, n+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.pool.Query(ctx, selectSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	opps := []models.Opportunity{}
	for rows.Next() {
		o, err := scanOpportunity(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}

	return &ListResult{
		Opportunities: opps,
		Total:         total,
		Limit:         params.Limit,
		Offset:        params.Offset,
	}, nil
}

const runCols = `id, started_at, completed_at, min_roi, sources, total_raw, skipped,
	after_deduplication, after_roi_filter, avg_roi, max_roi, diagnostics, COALESCE(output_file, '')`

func scanRun(scan func(dest ...any) error) (models.ProcessingRun, error) {
	var r models.ProcessingRun
	err := scan(
		&r.ID, &r.StartedAt, &r.CompletedAt, &r.MinROI, &r.Sources, &r.TotalRaw, &r.Skipped,
		&r.AfterDeduplication, &r.AfterROIFilter, &r.AvgROI, &r.MaxROI, &r.Diagnostics, &r.OutputFile,
	)
	return r, err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.ProcessingRun, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, "SELECT "+runCols+" FROM processing_runs ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []models.ProcessingRun{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return runs, nil
}

// GetRun loads one run, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (*models.ProcessingRun, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+runCols+" FROM processing_runs WHERE id = $1", id)
	r, err := scanRun(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &r, nil
}

// TierCounts returns how many stored opportunities sit in each tier.
func (s *Store) TierCounts(ctx context.Context) (map[string]int, error) {
	counts := map[string]int{
		string(ingest.TierHigh):   0,
		string(ingest.TierMedium): 0,
		string(ingest.TierLow):    0,
	}
	rows, err := s.pool.Query(ctx, "SELECT tier, COUNT(*) FROM opportunities GROUP BY tier")
	if err != nil {
		return nil, fmt.Errorf("count tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tier string
		var count int
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, fmt.Errorf("scan tier count: %w", err)
		}
		counts[tier] = count
	}
	return counts, rows.Err()
}
