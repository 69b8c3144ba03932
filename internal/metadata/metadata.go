// Package metadata inspects files with external tools and normalizes their
// output into ImageMetadata and PDFInfo.
package metadata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tendant/print-preflight/internal/sniff"
	"github.com/tendant/print-preflight/internal/toolexec"
)

var (
	// ErrAnalysisFailed is returned when image inspection fails, times out or
	// produces output that cannot be parsed
	ErrAnalysisFailed = errors.New("image analysis failed")

	// ErrPDFInfo is returned alongside the default PDFInfo when pdfinfo fails
	ErrPDFInfo = errors.New("pdf inspection failed")

	// ErrNoCoder is returned for formats identify is never allowed to read
	ErrNoCoder = errors.New("no inspection coder for format")
)

const (
	// DefaultDPI is assumed when the tool reports no usable resolution
	DefaultDPI = 72

	// EstimateDPI scales PDF points to an estimated pixel size for display.
	// It is not the DPI the page is rendered at.
	EstimateDPI = 300

	pointsPerInch = 72

	DefaultTimeout = 30 * time.Second
)

// identifyFormat asks for fields separated by '|', one line per frame
const identifyFormat = "%w|%h|%x|%y|%U|%[colorspace]|%[channels]|%m\n"

// ImageMetadata is the normalized description of a raster
type ImageMetadata struct {
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	DPI          int    `json:"dpi"`
	Colorspace   string `json:"colorspace"`
	HasAlpha     bool   `json:"has_alpha"`
	PageCount    int    `json:"page_count"`
	SourceFormat string `json:"source_format"`
}

// PDFInfo is what pdfinfo tells us about a document. EstimatedWidth and
// EstimatedHeight are pixels at EstimateDPI, derived from the first page size.
type PDFInfo struct {
	PageCount       int     `json:"page_count"`
	WidthPoints     float64 `json:"width_points"`
	HeightPoints    float64 `json:"height_points"`
	EstimatedWidth  int     `json:"estimated_width"`
	EstimatedHeight int     `json:"estimated_height"`
}

// DefaultPDFInfo is returned when the document cannot be inspected
func DefaultPDFInfo() PDFInfo {
	return PDFInfo{PageCount: 1}
}

// Tools names the inspection binaries
type Tools struct {
	Identify string
	PDFInfo  string
}

// DefaultTools uses the binaries found on PATH
func DefaultTools() Tools {
	return Tools{Identify: "identify", PDFInfo: "pdfinfo"}
}

// Extractor runs the inspection tools
type Extractor struct {
	runner  toolexec.Runner
	tools   Tools
	timeout time.Duration
}

// NewExtractor creates an extractor. A zero timeout means DefaultTimeout.
func NewExtractor(runner toolexec.Runner, tools Tools, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Extractor{runner: runner, tools: tools, timeout: timeout}
}

// coders pins identify to the sniffed raster format. Vector and page
// formats are absent: they are rendered or inspected some other way first.
var coders = map[string]string{
	sniff.PNG:  "png",
	sniff.JPEG: "jpeg",
	sniff.WebP: "webp",
	sniff.TIFF: "tiff",
	sniff.PSD:  "psd",
}

// ExtractImage inspects the first frame of a raster in the sniffed format.
// Any tool or parse failure is reported as ErrAnalysisFailed, never as
// zeroed metadata.
func (e *Extractor) ExtractImage(ctx context.Context, path, format string) (ImageMetadata, error) {
	coder, ok := coders[format]
	if !ok {
		return ImageMetadata{}, fmt.Errorf("%w: %w: %s", ErrAnalysisFailed, ErrNoCoder, format)
	}

	args := append([]string{}, toolexec.MagickLimits...)
	args = append(args, "-format", identifyFormat, coder+":"+toolexec.PathArg(path)+"[0]")
	out, err := e.runner.Run(ctx, toolexec.Command{
		Name:    e.tools.Identify,
		Args:    args,
		Timeout: e.timeout,
	})
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	meta, err := ParseIdentify(string(out))
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	return meta, nil
}

// ExtractPDF inspects a PDF. On failure it returns DefaultPDFInfo together
// with an error wrapping ErrPDFInfo, so callers can log and carry on.
func (e *Extractor) ExtractPDF(ctx context.Context, path string) (PDFInfo, error) {
	out, err := e.runner.Run(ctx, toolexec.Command{
		Name:    e.tools.PDFInfo,
		Args:    []string{toolexec.PathArg(path)},
		Timeout: e.timeout,
	})
	if err != nil {
		return DefaultPDFInfo(), fmt.Errorf("%w: %w", ErrPDFInfo, err)
	}

	info, err := ParsePDFInfo(string(out))
	if err != nil {
		return DefaultPDFInfo(), fmt.Errorf("%w: %w", ErrPDFInfo, err)
	}
	return info, nil
}

// ParseIdentify parses the first line produced by identifyFormat
func ParseIdentify(out string) (ImageMetadata, error) {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	fields := strings.Split(line, "|")
	if len(fields) != 8 {
		return ImageMetadata{}, fmt.Errorf("unexpected identify output %q", line)
	}

	width, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || width <= 0 {
		return ImageMetadata{}, fmt.Errorf("invalid width %q", fields[0])
	}
	height, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil || height <= 0 {
		return ImageMetadata{}, fmt.Errorf("invalid height %q", fields[1])
	}

	unitScale := 1.0
	if strings.Contains(strings.ToLower(fields[4]), "centimeter") {
		unitScale = 2.54
	}
	xres := parseResolution(fields[2]) * unitScale
	yres := parseResolution(fields[3]) * unitScale

	return ImageMetadata{
		Width:        width,
		Height:       height,
		DPI:          meanDPI(xres, yres),
		Colorspace:   strings.TrimSpace(fields[5]),
		HasAlpha:     hasAlpha(fields[6]),
		PageCount:    1,
		SourceFormat: strings.ToUpper(strings.TrimSpace(fields[7])),
	}, nil
}

// parseResolution reads the leading number of values such as "300" or "72 PixelsPerInch"
func parseResolution(s string) float64 {
	f := strings.Fields(s)
	if len(f) == 0 {
		return 0
	}
	v, err := strconv.ParseFloat(f[0], 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0
	}
	return v
}

func meanDPI(x, y float64) int {
	if x <= 0 || y <= 0 {
		return DefaultDPI
	}
	return int(math.Round((x + y) / 2))
}

// hasAlpha reads a channel list such as "srgba", "cmyk" or "srgba 4.0"
func hasAlpha(channels string) bool {
	f := strings.Fields(strings.ToLower(channels))
	if len(f) == 0 {
		return false
	}
	return strings.HasSuffix(f[0], "a") || strings.Contains(f[0], "alpha")
}

// ParsePDFInfo reads the Pages and Page size lines of pdfinfo output
func ParsePDFInfo(out string) (PDFInfo, error) {
	info := PDFInfo{}
	for _, line := range strings.Split(out, "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)

		switch strings.TrimSpace(key) {
		case "Pages":
			n, err := strconv.Atoi(value)
			if err != nil {
				return PDFInfo{}, fmt.Errorf("invalid page count %q", value)
			}
			info.PageCount = n
		case "Page size":
			w, h, ok := parsePageSize(value)
			if ok {
				info.WidthPoints = w
				info.HeightPoints = h
			}
		}
	}

	if info.PageCount <= 0 {
		return PDFInfo{}, errors.New("no page count in pdfinfo output")
	}
	info.EstimatedWidth = pointsToPixels(info.WidthPoints)
	info.EstimatedHeight = pointsToPixels(info.HeightPoints)
	return info, nil
}

// parsePageSize reads "612 x 792 pts (letter)"
func parsePageSize(s string) (float64, float64, bool) {
	f := strings.Fields(s)
	if len(f) < 3 || f[1] != "x" {
		return 0, 0, false
	}
	w, err1 := strconv.ParseFloat(f[0], 64)
	h, err2 := strconv.ParseFloat(f[2], 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return w, h, true
}

func pointsToPixels(pt float64) int {
	return int(math.Round(pt * EstimateDPI / pointsPerInch))
}
