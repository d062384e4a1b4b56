package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func oppsWithROI(rois ...float64) []Opportunity {
	out := make([]Opportunity, len(rois))
	for i, r := range rois {
		out[i] = Opportunity{Title: string(rune('a' + i)), ROI: r}
	}
	return out
}

func TestFilterByROI_ThresholdAndOrder(t *testing.T) {
	in := oppsWithROI(1.0, 7.5, 2.0, 3.0, 0.1)

	out, st := FilterByROI(in, 2.0)
	require.Len(t, out, 3)
	assert.Equal(t, []float64{7.5, 3.0, 2.0}, []float64{out[0].ROI, out[1].ROI, out[2].ROI})
	assert.Equal(t, ROIStats{Count: 3, Min: 2.0, Max: 7.5, Avg: 12.5 / 3}, st)
}

func TestFilterByROI_TiesKeepInputOrder(t *testing.T) {
	in := []Opportunity{
		{Title: "first", ROI: 4},
		{Title: "top", ROI: 6},
		{Title: "second", ROI: 4},
		{Title: "third", ROI: 4},
	}
	out, _ := FilterByROI(in, 0)
	titles := []string{out[0].Title, out[1].Title, out[2].Title, out[3].Title}
	assert.Equal(t, []string{"top", "first", "second", "third"}, titles)
}

func TestFilterByROI_Monotonic(t *testing.T) {
	in := oppsWithROI(0, 0.5, 1, 2, 2, 3.5, 5, 8)
	prev := len(in) + 1
	for _, threshold := range []float64{-1, 0, 0.5, 1, 2, 3, 5, 9} {
		out, _ := FilterByROI(in, threshold)
		assert.LessOrEqual(t, len(out), prev, "min_roi=%v", threshold)
		for i := 1; i < len(out); i++ {
			assert.GreaterOrEqual(t, out[i-1].ROI, out[i].ROI)
		}
		for _, o := range out {
			assert.GreaterOrEqual(t, o.ROI, threshold)
		}
		prev = len(out)
	}
}

func TestFilterByROI_EmptyResult(t *testing.T) {
	out, st := FilterByROI(oppsWithROI(0.1), 2.0)
	assert.NotNil(t, out)
	assert.Empty(t, out)
	assert.Equal(t, ROIStats{}, st)
}

func TestCategorizeByROI_Boundaries(t *testing.T) {
	in := oppsWithROI(5.0, 2.0, 1.999, 4.9999, 10, 0, -1)
	c := CategorizeByROI(in)

	assert.Equal(t, []float64{5.0, 10}, rois(c.High))
	assert.Equal(t, []float64{2.0, 4.9999}, rois(c.Medium))
	assert.Equal(t, []float64{1.999, 0, -1}, rois(c.Low))
	assert.Equal(t, len(in), c.Len(), "every opportunity lands in exactly one tier")
}

func TestTiers_Custom(t *testing.T) {
	tiers := Tiers{High: 1, Medium: 0.5}
	assert.Equal(t, TierHigh, tiers.Classify(1))
	assert.Equal(t, TierMedium, tiers.Classify(0.5))
	assert.Equal(t, TierLow, tiers.Classify(0.49))
}

func TestCategorize_EmptyTiersAreNonNil(t *testing.T) {
	c := CategorizeByROI(nil)
	assert.NotNil(t, c.High)
	assert.NotNil(t, c.Medium)
	assert.NotNil(t, c.Low)
}

func rois(opps []Opportunity) []float64 {
	out := make([]float64, len(opps))
	for i, o := range opps {
		out[i] = o.ROI
	}
	return out
}
