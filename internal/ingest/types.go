package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	// ErrInvalidRecord marks a raw record with neither a title nor a url.
	ErrInvalidRecord = errors.New("record has no title or url")
	// ErrInvalidMinROI is returned when the ROI threshold is NaN or infinite.
	ErrInvalidMinROI = errors.New("min_roi must be a finite number")
)

// RawOpportunity is one record as handed over by a source collector (API
// client, RSS reader, page scraper). Keys are the collector's JSON field
// names; keys the pipeline does not know are carried through to the output.
type RawOpportunity map[string]any

// RewardKind tags the shape a reward field arrived in.
type RewardKind int

const (
	RewardAbsent RewardKind = iota
	RewardString
	RewardNumber
	RewardObject
	RewardList
)

func (k RewardKind) String() string {
	switch k {
	case RewardString:
		return "string"
	case RewardNumber:
		return "number"
	case RewardObject:
		return "object"
	case RewardList:
		return "list"
	default:
		return "absent"
	}
}

// RewardRaw is the classified reward field. Exactly one payload field is
// meaningful, selected by Kind.
type RewardRaw struct {
	Kind   RewardKind
	Text   string
	Number float64
	Object map[string]any
	List   []any
}

// Opportunity is a raw record after normalization and annotation.
type Opportunity struct {
	ID          string
	Title       string
	Description string
	Source      string
	URL         string
	Reward      RewardRaw

	// TimeEstimated is the effort estimate in minutes as supplied, or the
	// source default when absent. Clamping to 1 happens only inside the ROI
	// computation.
	TimeEstimated float64

	Summary               string
	RewardAmountExtracted float64
	CurrencyDetected      string
	ROI                   float64
	Hash                  string

	// Fields is the original record, used to pass unknown keys through and
	// as the source of the fingerprint's identity fields.
	Fields RawOpportunity
}

// MarshalJSON emits the original record with the computed fields laid over it.
// Identity fields of the record are passed through untouched; HTML characters
// are left unescaped.
func (o Opportunity) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(o.Fields)+8)
	for k, v := range o.Fields {
		out[k] = v
	}
	if o.Fields == nil {
		out["title"] = o.Title
		out["url"] = o.URL
		out["description"] = o.Description
	}
	if o.Source != "" {
		out["source"] = o.Source
	}
	if o.Summary != "" {
		out["summary"] = o.Summary
	}
	out["reward_amount_extracted"] = o.RewardAmountExtracted
	out["currency_detected"] = o.CurrencyDetected
	out["time_estimated"] = o.TimeEstimated
	out["roi"] = o.ROI
	if o.Hash != "" {
		out["hash"] = o.Hash
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// UnmarshalJSON reads an opportunity written by MarshalJSON, keeping the
// computed fields instead of recomputing them.
func (o *Opportunity) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw RawOpportunity
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	opp, err := FromRaw(raw, "")
	if err != nil {
		return err
	}
	if s := stringValue(raw["summary"]); s != "" {
		opp.Summary = s
	}
	opp.RewardAmountExtracted, _ = toFloat(raw["reward_amount_extracted"])
	opp.CurrencyDetected = stringValue(raw["currency_detected"])
	opp.TimeEstimated, _ = toFloat(raw["time_estimated"])
	opp.ROI, _ = toFloat(raw["roi"])
	opp.Hash = stringValue(raw["hash"])

	*o = opp
	return nil
}

// Categories partitions a set of opportunities into ROI tiers.
type Categories struct {
	High   []Opportunity `json:"high"`
	Medium []Opportunity `json:"medium"`
	Low    []Opportunity `json:"low"`
}

// Len is the number of opportunities across all tiers.
func (c Categories) Len() int {
	return len(c.High) + len(c.Medium) + len(c.Low)
}

// Stats summarizes one pipeline run.
type Stats struct {
	TotalRaw           int     `json:"total_raw"`
	Skipped            int     `json:"skipped"`
	AfterDeduplication int     `json:"after_deduplication"`
	AfterROIFilter     int     `json:"after_roi_filter"`
	AvgROI             float64 `json:"avg_roi"`
	MaxROI             float64 `json:"max_roi"`
}

// Diagnostics counts how often input had to be defaulted or corrected.
type Diagnostics struct {
	Skipped         int `json:"skipped"`
	RewardDefaulted int `json:"reward_defaulted"`
	RewardUnparsed  int `json:"reward_unparsed"`
	TimeDefaulted   int `json:"time_defaulted"`
	TimeClamped     int `json:"time_clamped"`
	NegativeROI     int `json:"negative_roi"`
}

// Add accumulates other into d.
func (d *Diagnostics) Add(other Diagnostics) {
	d.Skipped += other.Skipped
	d.RewardDefaulted += other.RewardDefaulted
	d.RewardUnparsed += other.RewardUnparsed
	d.TimeDefaulted += other.TimeDefaulted
	d.TimeClamped += other.TimeClamped
	d.NegativeROI += other.NegativeROI
}

// Bundle is the output of one pipeline run.
type Bundle struct {
	ProcessedOpportunities []Opportunity `json:"processed_opportunities"`
	Categories             Categories    `json:"categories"`
	Stats                  Stats         `json:"stats"`
	ROIStats               ROIStats      `json:"roi_stats"`
	Diagnostics            Diagnostics   `json:"diagnostics"`
	MinROI                 float64       `json:"min_roi"`
}

// Unique returns every deduplicated opportunity, tier by tier.
func (b Bundle) Unique() []Opportunity {
	out := make([]Opportunity, 0, b.Categories.Len())
	out = append(out, b.Categories.High...)
	out = append(out, b.Categories.Medium...)
	return append(out, b.Categories.Low...)
}

// SourceBatch is the output of a single collector.
type SourceBatch struct {
	Source  string           `json:"source"`
	Records []RawOpportunity `json:"opportunities"`
}
