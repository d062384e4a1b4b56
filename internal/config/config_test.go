package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/david/quest-radar/internal/ingest"
)

// isolate runs the test from an empty directory so stray .env files in the
// repo do not leak in, and clears the variables Load reads.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{"ENV_FILE", "DATABASE_URL", "PORT", "LOG_LEVEL", "OUTPUT_DIR", "MIN_ROI", "JWT_SECRET", "ADMIN_SECRET_HASH", "SOURCES_FILE"} {
		t.Setenv(key, "")
	}
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, defaultDatabaseURL, cfg.Database.URL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 2.0, cfg.Pipeline.MinROI)
	assert.Equal(t, ingest.Tiers{High: 5, Medium: 2}, cfg.Pipeline.Tiers)
	assert.Equal(t, 0.5, cfg.Pipeline.Rates["GAL"])
	assert.Equal(t, ingest.RewardDefault{Amount: 10, Currency: "USD"}, cfg.Pipeline.DefaultReward)
	assert.Equal(t, []string{"title", "url", "description"}, cfg.Pipeline.FingerprintFields)
	assert.Equal(t, 4, cfg.Pipeline.ROIPrecision)
}

func TestLoad_FileOverlaysDefaults(t *testing.T) {
	dir := isolate(t)
	t.Setenv("QR_TEST_ETH_RATE", "2500")
	path := writeFile(t, dir, "config.yaml", `
pipeline:
  min_roi: 0.5
  tiers:
    high: 10
    medium: 3
  rates:
    ETH: ${QR_TEST_ETH_RATE}
output:
  top_n: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Pipeline.MinROI)
	assert.Equal(t, ingest.Tiers{High: 10, Medium: 3}, cfg.Pipeline.Tiers)
	assert.Equal(t, 2500.0, cfg.Pipeline.Rates["ETH"])
	assert.Equal(t, 0.01, cfg.Pipeline.Rates["XP"], "default rates are kept")
	assert.Equal(t, 3, cfg.Output.TopN)
	assert.Equal(t, "data", cfg.Output.Dir)
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("PORT", "9090")
	t.Setenv("MIN_ROI", "1.25")
	t.Setenv("DATABASE_URL", "postgres://example/db")
	t.Setenv("OUTPUT_DIR", "/tmp/out")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 1.25, cfg.Pipeline.MinROI)
	assert.Equal(t, "postgres://example/db", cfg.Database.URL)
	assert.Equal(t, "/tmp/out", cfg.Output.Dir)
}

func TestLoad_BadMinROI(t *testing.T) {
	isolate(t)
	t.Setenv("MIN_ROI", "lots")

	_, err := Load("")
	assert.ErrorContains(t, err, "MIN_ROI")
}

func TestLoad_DotEnv(t *testing.T) {
	dir := isolate(t)
	t.Cleanup(func() { os.Unsetenv("QR_TEST_OUTPUT") })
	writeFile(t, dir, ".env", "QR_TEST_OUTPUT=from-dotenv\n")
	path := writeFile(t, dir, "config.yaml", "output:\n  dir: ${QR_TEST_OUTPUT}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Output.Dir)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"inverted tiers", "pipeline:\n  tiers:\n    high: 1\n    medium: 2\n"},
		{"negative rate", "pipeline:\n  rates:\n    XP: -1\n"},
		{"no fingerprint fields", "pipeline:\n  fingerprint_fields: []\n"},
		{"zero default time", "pipeline:\n  default_time_est_min: 0\n"},
		{"non numeric port", "server:\n  port: http\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := isolate(t)
			_, err := Load(writeFile(t, dir, "config.yaml", tt.body))
			assert.ErrorContains(t, err, "invalid config")
		})
	}
}

func TestPipelineOptions(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Pipeline.Tiers = ingest.Tiers{High: 8, Medium: 4}

	p := ingest.NewPipeline(cfg.PipelineOptions(nil, nil))
	assert.Equal(t, ingest.Tiers{High: 8, Medium: 4}, p.Tiers())

	b, err := p.Process([]ingest.RawOpportunity{{"title": "a", "url": "u", "reward": "100 GAL", "time_est_min": 10}}, cfg.Pipeline.MinROI)
	require.NoError(t, err)
	assert.Equal(t, 5.0, b.ProcessedOpportunities[0].ROI)
}
