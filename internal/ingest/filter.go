package ingest

import (
	"math"
	"sort"
)

// ROIStats summarizes the ROI values of a filtered set.
type ROIStats struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// FilterByROI keeps opportunities with ROI >= minROI, sorted by ROI
// descending. Ties keep their input order.
func FilterByROI(opps []Opportunity, minROI float64) ([]Opportunity, ROIStats) {
	kept := make([]Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.ROI >= minROI {
			kept = append(kept, o)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].ROI > kept[j].ROI
	})
	return kept, roiStats(kept)
}

func roiStats(opps []Opportunity) ROIStats {
	if len(opps) == 0 {
		return ROIStats{}
	}
	st := ROIStats{Count: len(opps), Min: opps[0].ROI, Max: opps[0].ROI}
	var sum float64
	for _, o := range opps {
		sum += o.ROI
		if o.ROI < st.Min {
			st.Min = o.ROI
		}
		if o.ROI > st.Max {
			st.Max = o.ROI
		}
	}
	st.Avg = sum / float64(len(opps))
	if math.IsInf(sum, 0) || math.IsNaN(sum) {
		// Huge values overflow the sum; fall back to a running mean.
		st.Avg = 0
		for i, o := range opps {
			n := float64(i + 1)
			st.Avg = st.Avg - st.Avg/n + o.ROI/n
		}
	}
	return st
}

// Tier is one of the ROI buckets used for prioritized display.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Tiers holds the lower bounds (inclusive) of the high and medium buckets.
type Tiers struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
}

// DefaultTiers is high >= 5.0, medium >= 2.0, low below.
func DefaultTiers() Tiers {
	return Tiers{High: 5.0, Medium: 2.0}
}

// Classify returns the tier of roi.
func (t Tiers) Classify(roi float64) Tier {
	switch {
	case roi >= t.High:
		return TierHigh
	case roi >= t.Medium:
		return TierMedium
	default:
		return TierLow
	}
}

// Categorize partitions opps into disjoint tiers, keeping input order
// within each tier.
func (t Tiers) Categorize(opps []Opportunity) Categories {
	c := Categories{
		High:   []Opportunity{},
		Medium: []Opportunity{},
		Low:    []Opportunity{},
	}
	for _, o := range opps {
		switch t.Classify(o.ROI) {
		case TierHigh:
			c.High = append(c.High, o)
		case TierMedium:
			c.Medium = append(c.Medium, o)
		default:
			c.Low = append(c.Low, o)
		}
	}
	return c
}

// CategorizeByROI applies DefaultTiers.
func CategorizeByROI(opps []Opportunity) Categories {
	return DefaultTiers().Categorize(opps)
}
