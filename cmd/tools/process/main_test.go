package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/quest-radar/internal/export"
	"github.com/david/quest-radar/internal/ingest"
)

func setup(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{"ENV_FILE", "MIN_ROI", "OUTPUT_DIR", "SOURCES_FILE"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestProcessCommand_Files(t *testing.T) {
	dir := setup(t)
	zealy := filepath.Join(dir, "zealy.json")
	galxe := filepath.Join(dir, "galxe.json")
	require.NoError(t, os.WriteFile(zealy, []byte(`[
		{"title": "Shared", "url": "s", "reward": "100 USD", "time_est_min": 10},
		{"title": "Sprint", "url": "z", "reward": "2000 XP"}
	]`), 0o644))
	require.NoError(t, os.WriteFile(galxe, []byte(`{"opportunities": [
		{"title": "Shared", "url": "s", "reward": "1 GAL", "time_est_min": 10},
		{"title": "Campaign", "url": "g", "reward": "40 GAL", "time_est_min": 5}
	]}`), 0o644))
	outDir := filepath.Join(dir, "out")

	var out bytes.Buffer
	cmd := newProcessCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--out", outDir, "--source", "Zealy", zealy, "--source", "Galxe", galxe, "--min-roi", "0", "--top", "2"})
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "Wrote 3 opportunities")
	assert.Contains(t, out.String(), "Shared")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	f, err := export.ReadBundleFile(filepath.Join(outDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, 4, f.ProcessingStats.TotalRaw)
	assert.Equal(t, 3, f.ProcessingStats.AfterDeduplication)
	assert.Equal(t, 0.0, f.MinROI)

	bySource := map[string]string{}
	for _, o := range f.ProcessedOpportunities {
		bySource[o.Title] = o.Source
	}
	assert.Equal(t, "Zealy", bySource["Shared"])
	assert.Equal(t, "Galxe", bySource["Campaign"])
	assert.Equal(t, "Zealy", bySource["Sprint"])
}

func TestProcessCommand_Stdin(t *testing.T) {
	setup(t)

	var out bytes.Buffer
	cmd := newProcessCmd()
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(`[{"title": "Piped", "url": "p", "reward": "100 USD", "time_est_min": 10}]`))
	cmd.SetArgs([]string{"--no-file", "-"})
	require.NoError(t, cmd.Execute())

	assert.NotContains(t, out.String(), "Wrote")
	assert.Contains(t, out.String(), "Piped")
}

func TestProcessCommand_Errors(t *testing.T) {
	dir := setup(t)

	cmd := newProcessCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{filepath.Join(dir, "missing.json")})
	assert.ErrorIs(t, cmd.Execute(), os.ErrNotExist)

	cmd = newProcessCmd()
	cmd.SetArgs([]string{})
	assert.Error(t, cmd.Execute(), "at least one file is required")
}

func TestLoadBatches_TooManyLabels(t *testing.T) {
	_, err := loadBatches(newProcessCmd(), []string{"a.json"}, []string{"A", "B"})
	assert.ErrorContains(t, err, "2 --source labels for 1 files")
}

func TestBatchSources(t *testing.T) {
	got := batchSources([]ingest.SourceBatch{{Source: "Zealy"}, {}, {Source: "Galxe"}, {Source: "Zealy"}})
	assert.Equal(t, []string{"Zealy", "Galxe"}, got)
	assert.Empty(t, batchSources(nil))
}
