package ingest

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultFingerprintFields is the identity triple. Order and the "|"
// separator are part of the persisted hash format.
func DefaultFingerprintFields() []string {
	return []string{"title", "url", "description"}
}

// Fingerprinter derives the identity hash of an opportunity from a fixed
// list of fields.
type Fingerprinter struct {
	fields []string
}

// NewFingerprinter uses fields in order; no fields means the default triple.
func NewFingerprinter(fields ...string) Fingerprinter {
	if len(fields) == 0 {
		fields = DefaultFingerprintFields()
	}
	own := make([]string, len(fields))
	copy(own, fields)
	return Fingerprinter{fields: own}
}

// HashOpportunity is the md5 hex digest of "title|url|description".
func HashOpportunity(title, url, description string) string {
	return digest(title + "|" + url + "|" + description)
}

// Fingerprint hashes the configured fields of o.
func (f Fingerprinter) Fingerprint(o Opportunity) string {
	parts := make([]string, len(f.fields))
	for i, name := range f.fields {
		parts[i] = o.field(name)
	}
	return digest(strings.Join(parts, "|"))
}

// Deduplicate keeps the first occurrence of every fingerprint, in input
// order, with Hash set. The input slice is not modified.
func (f Fingerprinter) Deduplicate(opps []Opportunity) []Opportunity {
	seen := make(map[string]struct{}, len(opps))
	unique := make([]Opportunity, 0, len(opps))
	for _, o := range opps {
		h := f.Fingerprint(o)
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		o.Hash = h
		unique = append(unique, o)
	}
	return unique
}

// Deduplicate applies the default fingerprint.
func Deduplicate(opps []Opportunity) []Opportunity {
	return NewFingerprinter().Deduplicate(opps)
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// field reads a fingerprint field. Identity fields come from the raw record
// when there is one, so display fallbacks (name for title) never change the
// hash.
func (o Opportunity) field(name string) string {
	if o.Fields != nil {
		switch name {
		case "title", "url", "description", "id":
			return stringValue(o.Fields[name])
		}
	}
	switch name {
	case "title":
		return o.Title
	case "url":
		return o.URL
	case "description":
		return o.Description
	case "source":
		return o.Source
	case "id":
		return o.ID
	}
	return stringValue(o.Fields[name])
}

// stringValue renders a record value the way collectors stringify it when
// building hashes: integers as written, floats in shortest repr with a
// trailing ".0" when integral, booleans as True/False.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "True"
		}
		return "False"
	case float64:
		return formatFloat(t)
	case float32:
		return formatFloat(float64(t))
	case json.Number:
		if !strings.ContainsAny(t.String(), ".eE") {
			return t.String()
		}
		if f, err := t.Float64(); err == nil {
			return formatFloat(f)
		}
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
