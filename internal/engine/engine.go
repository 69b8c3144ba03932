// Package engine runs one preflight pass over a local file: sniff, render
// when needed, inspect, check and optionally thumbnail.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/print-preflight/internal/checks"
	"github.com/tendant/print-preflight/internal/convert"
	"github.com/tendant/print-preflight/internal/metadata"
	"github.com/tendant/print-preflight/internal/policy"
	"github.com/tendant/print-preflight/internal/sniff"
	"github.com/tendant/print-preflight/internal/thumbnail"
	"github.com/tendant/print-preflight/pkg/preflight"
)

const (
	convertedName = "converted.png"
	thumbnailName = "thumbnail.jpg"
)

// Recorder receives every produced result
type Recorder interface {
	ObserveResult(result preflight.Result, took time.Duration)
}

// Options configures an Engine
type Options struct {
	// WorkDir is the parent of the per-run directories
	WorkDir       string
	RenderDPI     int
	ThumbnailSize int
	Aliases       policy.AliasGroups
	Recorder      Recorder
}

// Engine is safe for concurrent use; every run gets its own directory
type Engine struct {
	extractor *metadata.Extractor
	converter *convert.Orchestrator
	thumbs    *thumbnail.Generator
	opts      Options
}

// New creates an engine
func New(extractor *metadata.Extractor, converter *convert.Orchestrator, thumbs *thumbnail.Generator, opts Options) *Engine {
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "preflight")
	}
	if opts.RenderDPI <= 0 {
		opts.RenderDPI = 300
	}
	if opts.ThumbnailSize <= 0 {
		opts.ThumbnailSize = thumbnail.DefaultMaxDimension
	}
	if opts.Aliases == nil {
		opts.Aliases = policy.DefaultAliasGroups()
	}
	return &Engine{extractor: extractor, converter: converter, thumbs: thumbs, opts: opts}
}

// Request is one file to check
type Request struct {
	// RunID is used for logging; generated when empty
	RunID        string
	Path         string
	DeclaredMIME string
	Size         int64
	Policy       policy.Config
	Thumbnail    bool
}

// Outcome carries the result plus what the run learned along the way. The
// files named in Result live under WorkDir until Cleanup is called.
type Outcome struct {
	RunID       string
	WorkDir     string
	Format      string
	Strategy    string
	Metadata    *metadata.ImageMetadata
	PDF         *metadata.PDFInfo
	Placeholder bool
	Result      preflight.Result
}

// Cleanup removes the run directory and every artifact in it
func (o *Outcome) Cleanup() error {
	if o == nil || o.WorkDir == "" {
		return nil
	}
	return os.RemoveAll(o.WorkDir)
}

// Run checks req.Path against req.Policy.
//
// The returned error is non-nil in three cases. A conversion that exhausted
// every strategy returns a nil Outcome and an error matching
// convert.ErrConversionFailed. A cancelled ctx returns a nil Outcome and the
// context error. A thumbnail that could not be written even as a placeholder
// returns the complete Outcome together with an error matching
// thumbnail.ErrThumbnailFailed.
func (e *Engine) Run(ctx context.Context, req Request) (*Outcome, error) {
	start := time.Now()
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}

	if err := os.MkdirAll(e.opts.WorkDir, 0755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	dir, err := os.MkdirTemp(e.opts.WorkDir, req.RunID+"-")
	if err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	out := &Outcome{RunID: req.RunID, WorkDir: dir}
	err = e.run(ctx, req, out)
	if err != nil && !errors.Is(err, thumbnail.ErrThumbnailFailed) {
		out.Cleanup()
		return nil, err
	}

	log.Printf("[%s] Preflight finished: overall=%s checks=%d took=%s",
		req.RunID, out.Result.Overall, len(out.Result.Checks), time.Since(start).Round(time.Millisecond))
	if e.opts.Recorder != nil {
		e.opts.Recorder.ObserveResult(out.Result, time.Since(start))
	}
	return out, err
}

func (e *Engine) run(ctx context.Context, req Request, out *Outcome) error {
	p := req.Policy
	results := []preflight.CheckResult{checks.Size(req.Size, p)}

	out.Format = sniff.Detect(req.Path)
	format := checks.Format(out.Format, req.DeclaredMIME, p, e.opts.Aliases)
	results = append(results, format)
	log.Printf("[%s] Detected %s (declared %q) for tier %s", req.RunID, out.Format, req.DeclaredMIME, p.Tier)

	if format.Status == preflight.StatusError {
		out.Result = checks.Result(results)
		return nil
	}

	if out.Format == sniff.PDF {
		info, err := e.extractor.ExtractPDF(ctx, req.Path)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[%s] pdfinfo failed, assuming one page: %v", req.RunID, err)
		}
		out.PDF = &info
	}

	raster, rasterFormat := req.Path, out.Format
	if convert.NeedsConversion(out.Format) {
		target := filepath.Join(out.WorkDir, convertedName)
		strategy, err := e.converter.Convert(ctx, convert.Request{
			RunID:  req.RunID,
			Format: out.Format,
			Source: req.Path,
			Target: target,
			DPI:    e.opts.RenderDPI,
		})
		if err != nil {
			return err
		}
		raster, rasterFormat = target, sniff.PNG
		out.Strategy = strategy
	}

	var meta metadata.ImageMetadata
	var err error
	if rasterFormat == sniff.SVG {
		meta, err = metadata.InspectSVG(req.Path, e.opts.RenderDPI)
	} else {
		meta, err = e.extractor.ExtractImage(ctx, raster, rasterFormat)
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[%s] Image analysis failed: %v", req.RunID, err)
		results = append(results, checks.AnalysisFailed(err))
	} else {
		out.Metadata = &meta
		results = append(results, checks.Evaluate(checks.Input{Metadata: meta, PDF: out.PDF}, p)...)
	}

	out.Result = checks.Result(results)
	if raster != req.Path {
		out.Result.ConvertedPath = raster
	}

	if !req.Thumbnail {
		return nil
	}
	target := filepath.Join(out.WorkDir, thumbnailName)
	placeholder, err := e.thumbs.Generate(ctx, thumbnail.Request{
		RunID:        req.RunID,
		Source:       raster,
		Target:       target,
		MaxDimension: e.opts.ThumbnailSize,
		Label:        thumbnail.LabelFor(req.Path),
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	out.Placeholder = placeholder
	out.Result.ThumbnailPath = target
	return nil
}
