package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Opportunity is a deduplicated opportunity as stored. Rows are keyed by
// Hash and never deleted; every run that sees one again bumps LastSeenAt.
type Opportunity struct {
	ID            uuid.UUID       `json:"id"`
	Hash          string          `json:"hash"`
	Title         string          `json:"title"`
	URL           string          `json:"url"`
	Description   string          `json:"description"` // sanitized HTML
	Summary       string          `json:"summary"`
	Source        string          `json:"source"`
	RewardAmount  float64         `json:"reward_amount_extracted"`
	Currency      string          `json:"currency_detected"`
	TimeEstimated float64         `json:"time_estimated"`
	ROI           float64         `json:"roi"`
	Tier          string          `json:"tier"`
	Raw           json.RawMessage `json:"raw,omitempty"`
	FirstSeenAt   time.Time       `json:"first_seen_at"`
	LastSeenAt    time.Time       `json:"last_seen_at"`
	LastRunID     *uuid.UUID      `json:"last_run_id"`
}

// ProcessingRun records one pipeline invocation.
type ProcessingRun struct {
	ID                 uuid.UUID      `json:"id"`
	StartedAt          time.Time      `json:"started_at"`
	CompletedAt        time.Time      `json:"completed_at"`
	MinROI             float64        `json:"min_roi"`
	Sources            []string       `json:"sources"`
	TotalRaw           int            `json:"total_raw"`
	Skipped            int            `json:"skipped"`
	AfterDeduplication int            `json:"after_deduplication"`
	AfterROIFilter     int            `json:"after_roi_filter"`
	AvgROI             float64        `json:"avg_roi"`
	MaxROI             float64        `json:"max_roi"`
	Diagnostics        map[string]int `json:"diagnostics"`
	OutputFile         string         `json:"output_file,omitempty"`
}
