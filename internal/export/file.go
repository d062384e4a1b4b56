// Package export writes pipeline bundles for downstream consumers: the
// timestamped JSON file read by the notifiers and dashboard, and terminal
// tables for operators.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/david/quest-radar/internal/ingest"
)

// PipelineVersion tags every output file so consumers can tell layouts apart.
const PipelineVersion = "quest-radar/1"

// File is the persisted layout of one run.
type File struct {
	Timestamp              int64                `json:"timestamp"`
	Datetime               string               `json:"datetime"`
	PipelineVersion        string               `json:"pipeline_version"`
	MinROI                 float64              `json:"min_roi"`
	ProcessingStats        ingest.Stats         `json:"processing_stats"`
	Diagnostics            ingest.Diagnostics   `json:"diagnostics"`
	Categories             ingest.Categories    `json:"categories"`
	ProcessedOpportunities []ingest.Opportunity `json:"processed_opportunities"`
}

// NewFile stamps b with now.
func NewFile(b ingest.Bundle, now time.Time) File {
	return File{
		Timestamp:              now.Unix(),
		Datetime:               now.Format(time.RFC3339),
		PipelineVersion:        PipelineVersion,
		MinROI:                 b.MinROI,
		ProcessingStats:        b.Stats,
		Diagnostics:            b.Diagnostics,
		Categories:             b.Categories,
		ProcessedOpportunities: b.ProcessedOpportunities,
	}
}

// FileName is the conventional name for a run written at now.
func FileName(now time.Time) string {
	return fmt.Sprintf("processed_opportunities_%d.json", now.Unix())
}

// WriteBundleFile writes b under dir and returns the file path. dir is
// created if missing. The file is written to a temp name first and renamed
// so readers polling dir never see a partial file.
func WriteBundleFile(dir string, b ingest.Bundle, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	path := filepath.Join(dir, FileName(now))
	tmp, err := os.CreateTemp(dir, ".processed-*.json")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(NewFile(b, now)); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encode bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("rename output file: %w", err)
	}
	return path, nil
}

// ReadBundleFile loads a file written by WriteBundleFile.
func ReadBundleFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return f, nil
}
