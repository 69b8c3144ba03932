package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv(envMap(nil))

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "free", cfg.DefaultTier)
	assert.Equal(t, 400, cfg.ThumbnailSize)
	assert.Equal(t, 300, cfg.RenderDPI)
	assert.Equal(t, "preflight", cfg.QueueName)
	assert.Equal(t, 4, cfg.Concurrency)
	assert.Equal(t, "gs", cfg.ConvertTools().Ghostscript)
	assert.Equal(t, "identify", cfg.MetadataTools().Identify)
	assert.NotEmpty(t, cfg.WorkDir)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{
		"PREFLIGHT_HTTP_ADDR":      ":9090",
		"PREFLIGHT_DEFAULT_TIER":   "pro",
		"PREFLIGHT_RENDER_DPI":     "150",
		"PREFLIGHT_GS_BIN":         "/opt/gs/bin/gs",
		"DBOS_CONCURRENCY":         "8",
		"DBOS_SYSTEM_DATABASE_URL": "postgres://localhost/preflight",
	}))

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "pro", cfg.DefaultTier)
	assert.Equal(t, 150, cfg.RenderDPI)
	assert.Equal(t, "/opt/gs/bin/gs", cfg.ConvertTools().Ghostscript)

	d := cfg.DBOS("preflight-worker")
	assert.Equal(t, 8, d.Concurrency)
	assert.Equal(t, "preflight-worker", d.AppName)
	assert.Equal(t, "postgres://localhost/preflight", d.DatabaseURL)
}

func TestFromEnv_InvalidNumberFallsBack(t *testing.T) {
	cfg := FromEnv(envMap(map[string]string{"PREFLIGHT_THUMBNAIL_SIZE": "big"}))
	assert.Equal(t, 400, cfg.ThumbnailSize)
}
