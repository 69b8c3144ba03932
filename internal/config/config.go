// Package config reads service settings from .env and the environment.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/print-preflight/internal/convert"
	"github.com/tendant/print-preflight/internal/dbosruntime"
	"github.com/tendant/print-preflight/internal/engine"
	"github.com/tendant/print-preflight/internal/metadata"
	"github.com/tendant/print-preflight/internal/policy"
	"github.com/tendant/print-preflight/internal/thumbnail"
	"github.com/tendant/print-preflight/internal/toolexec"
)

// Config holds everything the binaries need
type Config struct {
	HTTPAddr      string
	WorkDir       string
	DefaultTier   string
	ThumbnailSize int
	RenderDPI     int

	IdentifyBin string
	PDFInfoBin  string
	GSBin       string
	PDFToPPMBin string
	ConvertBin  string

	// StorageDir backs the embedded simple-content service
	StorageDir string
	// ContentAPIURL switches to the simple-content HTTP API when set
	ContentAPIURL string

	DatabaseURL        string
	QueueName          string
	Concurrency        int
	ApplicationVersion string

	ShutdownTimeout time.Duration
}

// Load reads .env (if present) and then the environment
func Load() Config {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function
func FromEnv(getenv func(string) string) Config {
	cfg := Config{
		HTTPAddr:           getenv("PREFLIGHT_HTTP_ADDR"),
		WorkDir:            getenv("PREFLIGHT_WORK_DIR"),
		DefaultTier:        getenv("PREFLIGHT_DEFAULT_TIER"),
		ThumbnailSize:      atoi(getenv, "PREFLIGHT_THUMBNAIL_SIZE"),
		RenderDPI:          atoi(getenv, "PREFLIGHT_RENDER_DPI"),
		IdentifyBin:        getenv("PREFLIGHT_IDENTIFY_BIN"),
		PDFInfoBin:         getenv("PREFLIGHT_PDFINFO_BIN"),
		GSBin:              getenv("PREFLIGHT_GS_BIN"),
		PDFToPPMBin:        getenv("PREFLIGHT_PDFTOPPM_BIN"),
		ConvertBin:         getenv("PREFLIGHT_CONVERT_BIN"),
		StorageDir:         getenv("STORAGE_DIR"),
		ContentAPIURL:      getenv("CONTENT_API_URL"),
		DatabaseURL:        getenv("DBOS_SYSTEM_DATABASE_URL"),
		QueueName:          getenv("DBOS_QUEUE_NAME"),
		Concurrency:        atoi(getenv, "DBOS_CONCURRENCY"),
		ApplicationVersion: getenv("DBOS_APPLICATION_VERSION"),
	}
	cfg.WithDefaults()
	return cfg
}

// WithDefaults fills in default values for optional fields
func (c *Config) WithDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.WorkDir == "" {
		c.WorkDir = filepath.Join(os.TempDir(), "preflight")
	}
	if c.DefaultTier == "" {
		c.DefaultTier = policy.TierFree
	}
	if c.ThumbnailSize <= 0 {
		c.ThumbnailSize = thumbnail.DefaultMaxDimension
	}
	if c.RenderDPI <= 0 {
		c.RenderDPI = 300
	}
	if c.IdentifyBin == "" {
		c.IdentifyBin = "identify"
	}
	if c.PDFInfoBin == "" {
		c.PDFInfoBin = "pdfinfo"
	}
	if c.GSBin == "" {
		c.GSBin = "gs"
	}
	if c.PDFToPPMBin == "" {
		c.PDFToPPMBin = "pdftoppm"
	}
	if c.ConvertBin == "" {
		c.ConvertBin = "convert"
	}
	if c.StorageDir == "" {
		c.StorageDir = "./dev-data"
	}
	if c.QueueName == "" {
		c.QueueName = "preflight"
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// MetadataTools returns the inspection binaries
func (c Config) MetadataTools() metadata.Tools {
	return metadata.Tools{Identify: c.IdentifyBin, PDFInfo: c.PDFInfoBin}
}

// ConvertTools returns the conversion binaries
func (c Config) ConvertTools() convert.Tools {
	return convert.Tools{Ghostscript: c.GSBin, PDFToPPM: c.PDFToPPMBin, Convert: c.ConvertBin}
}

// DBOS returns the runtime settings for appName
func (c Config) DBOS(appName string) dbosruntime.Config {
	return dbosruntime.Config{
		DatabaseURL:        c.DatabaseURL,
		AppName:            appName,
		QueueName:          c.QueueName,
		Concurrency:        c.Concurrency,
		ApplicationVersion: c.ApplicationVersion,
	}
}

// Engine wires the preflight engine to the configured tools. rec and obs
// may be nil.
func (c Config) Engine(runner toolexec.Runner, rec engine.Recorder, obs convert.Observer) *engine.Engine {
	if runner == nil {
		runner = toolexec.NewExecRunner()
	}
	return engine.New(
		metadata.NewExtractor(runner, c.MetadataTools(), metadata.DefaultTimeout),
		convert.NewOrchestrator(runner, c.ConvertTools(), obs),
		thumbnail.NewGenerator(),
		engine.Options{
			WorkDir:       filepath.Join(c.WorkDir, "runs"),
			RenderDPI:     c.RenderDPI,
			ThumbnailSize: c.ThumbnailSize,
			Recorder:      rec,
		},
	)
}

// Resolver returns a resolver over the built-in tiers
func (c Config) Resolver() *policy.Resolver {
	return policy.NewResolver(policy.DefaultTable())
}

func atoi(getenv func(string) string, key string) int {
	v := getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Ignoring invalid %s=%q: %v", key, v, err)
		return 0
	}
	return n
}
