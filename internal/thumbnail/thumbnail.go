package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/tendant/print-preflight/internal/attempt"
	"github.com/tendant/print-preflight/internal/rasterlimit"
)

// ErrThumbnailFailed is returned only when both the real thumbnail and the
// placeholder could not be written
var ErrThumbnailFailed = errors.New("thumbnail generation failed")

const (
	// MinOutputBytes is the size a downscaled thumbnail must exceed
	MinOutputBytes = 100

	DefaultMaxDimension = 400
	jpegQuality         = 80
)

var background = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Request describes one thumbnail
type Request struct {
	RunID        string
	Source       string
	Target       string
	MaxDimension int
	// Label is printed on the placeholder; defaults to the source extension
	Label string
}

// Generator produces preview images
type Generator struct{}

// NewGenerator creates a thumbnail generator
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate writes a thumbnail bounded by MaxDimension on both axes. When the
// source cannot be thumbnailed it writes a placeholder tile instead and
// reports placeholder=true.
func (g *Generator) Generate(ctx context.Context, req Request) (placeholder bool, err error) {
	if req.MaxDimension <= 0 {
		req.MaxDimension = DefaultMaxDimension
	}
	if req.Label == "" {
		req.Label = LabelFor(req.Source)
	}

	chain := attempt.Chain{
		Attempts: []attempt.Attempt{
			{
				Name:   "downscale",
				Invoke: func(ctx context.Context) error { return downscale(ctx, req) },
				Verify: attempt.MinSize(req.Target, MinOutputBytes),
			},
			{
				Name:   "placeholder",
				Invoke: func(ctx context.Context) error { return writePlaceholder(req) },
				Verify: attempt.MinSize(req.Target, 0),
			},
		},
		Observe: func(a attempt.Attempt, err error) {
			if err != nil {
				log.Printf("[%s] Thumbnail %s failed: %v", req.RunID, a.Name, err)
			}
		},
	}

	name, err := chain.Run(ctx)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrThumbnailFailed, err)
	}
	return name == "placeholder", nil
}

func downscale(ctx context.Context, req Request) error {
	img, err := rasterlimit.Open(req.Source, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	thumb := imaging.Fit(img, req.MaxDimension, req.MaxDimension, imaging.Lanczos)
	return save(thumb, req.Target)
}

// save encodes by target extension, flattening onto white for JPEG
func save(img image.Image, target string) error {
	format, err := imaging.FormatFromFilename(target)
	if err != nil {
		format = imaging.JPEG
	}
	if format == imaging.JPEG {
		b := img.Bounds()
		img = imaging.Overlay(imaging.New(b.Dx(), b.Dy(), background), img, image.Pt(0, 0), 1.0)
	}

	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if err := imaging.Encode(f, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		f.Close()
		return fmt.Errorf("encode: %w", err)
	}
	return f.Close()
}

// LabelFor derives the placeholder label from a file name
func LabelFor(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "FILE"
	}
	return strings.ToUpper(ext)
}
