package ingest

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// summaryMaxLen bounds the plain-text summary shown by chat and sheet sinks.
const summaryMaxLen = 280

// TruncateText cuts a string to max length, appending ellipsis if truncated.
func TruncateText(text string, maxLen int) string {
	if len(text) <= maxLen {
		return text
	}
	// Cutting may split a multi-byte rune; drop the partial bytes.
	if maxLen > 3 {
		return strings.ToValidUTF8(text[:maxLen-3], "") + "..."
	}
	return strings.ToValidUTF8(text[:maxLen], "")
}

// HTMLToText converts HTML to plain text, collapsing whitespace.
func HTMLToText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return cleanText(html)
	}
	return cleanText(doc.Text())
}

// FromRaw converts a collector record into an Opportunity. sourceHint labels
// records that do not name their own source. Identity fields (title, url,
// description) are copied verbatim so fingerprints stay stable.
func FromRaw(raw RawOpportunity, sourceHint string) (Opportunity, error) {
	if raw == nil {
		return Opportunity{}, ErrInvalidRecord
	}

	title := stringValue(raw["title"])
	if strings.TrimSpace(title) == "" {
		title = stringValue(raw["name"])
	}
	url := stringValue(raw["url"])
	if strings.TrimSpace(title) == "" && strings.TrimSpace(url) == "" {
		return Opportunity{}, fmt.Errorf("%w (id=%q)", ErrInvalidRecord, stringValue(raw["id"]))
	}

	opp := Opportunity{
		ID:          stringValue(raw["id"]),
		Title:       title,
		Description: stringValue(raw["description"]),
		Source:      cleanText(stringValue(raw["source"])),
		URL:         url,
		Reward:      ClassifyReward(raw),
		Fields:      raw,
	}
	if opp.Source == "" {
		opp.Source = sourceHint
	}
	if opp.Description != "" {
		opp.Summary = TruncateText(HTMLToText(opp.Description), summaryMaxLen)
	}

	return opp, nil
}

// readTimeEstimate returns the effort estimate from time_est_min, falling
// back to estimated_time. ok is false when neither holds a number.
func readTimeEstimate(raw RawOpportunity) (float64, bool) {
	for _, key := range []string{"time_est_min", "estimated_time"} {
		v, present := raw[key]
		if !present || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}
