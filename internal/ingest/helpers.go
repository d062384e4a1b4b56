package ingest

import (
	"strings"
)

// normalizeSpace collapses multiple spaces into one and trims the string.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// cleanText normalizes whitespace (alias for normalizeSpace)
func cleanText(s string) string {
	return normalizeSpace(s)
}

// sourceKey folds a source label for case-insensitive lookups.
func sourceKey(s string) string {
	return strings.ToLower(normalizeSpace(s))
}
