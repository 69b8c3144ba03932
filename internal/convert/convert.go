// Package convert renders non-raster and layered uploads into a PNG surrogate
// by trying an ordered list of conversion strategies.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/tendant/print-preflight/internal/attempt"
	"github.com/tendant/print-preflight/internal/rasterlimit"
	"github.com/tendant/print-preflight/internal/sniff"
	"github.com/tendant/print-preflight/internal/toolexec"
)

var (
	// ErrConversionFailed matches any ConversionError via errors.Is
	ErrConversionFailed = errors.New("conversion failed")

	// ErrNotConvertible is returned for formats that have no strategy list
	ErrNotConvertible = errors.New("format has no conversion strategies")
)

// MinOutputBytes is the size an output must exceed to count as plausible
const MinOutputBytes = 100

// DraftDPI is used by the reduced-resolution fallbacks
const DraftDPI = 150

// SafetyFlags are passed to every Ghostscript invocation. They stop the
// document from touching the filesystem, platform fonts or pausing for input.
var SafetyFlags = []string{"-dSAFER", "-dBATCH", "-dNOPAUSE", "-dQUIET", "-dNOPLATFONTS"}

// ConversionError reports an exhausted strategy list
type ConversionError struct {
	Format   string
	Attempts []string
	Last     error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("%s: %s after %s: %v", ErrConversionFailed, e.Format, strings.Join(e.Attempts, ", "), e.Last)
}

func (e *ConversionError) Unwrap() error { return e.Last }

func (e *ConversionError) Is(target error) bool { return target == ErrConversionFailed }

// Tools names the conversion binaries
type Tools struct {
	Ghostscript string
	PDFToPPM    string
	Convert     string
}

// DefaultTools uses the binaries found on PATH
func DefaultTools() Tools {
	return Tools{Ghostscript: "gs", PDFToPPM: "pdftoppm", Convert: "convert"}
}

// Observer is told about every attempt, err is nil on success
type Observer interface {
	ConversionAttempt(format, strategy string, err error)
}

// Request describes one conversion
type Request struct {
	RunID  string
	Format string
	Source string
	Target string
	DPI    int
}

// Strategy is one way of producing Target from Source
type Strategy struct {
	Name    string
	Timeout time.Duration
	Command *toolexec.Command
	// Output is where Command writes, when the tool cannot be told Target exactly
	Output string
	// Func runs in-process instead of Command
	Func func(ctx context.Context) error
}

// Orchestrator drives the strategy lists
type Orchestrator struct {
	runner   toolexec.Runner
	tools    Tools
	observer Observer
}

// NewOrchestrator creates an orchestrator. observer may be nil.
func NewOrchestrator(runner toolexec.Runner, tools Tools, observer Observer) *Orchestrator {
	return &Orchestrator{runner: runner, tools: tools, observer: observer}
}

// NeedsConversion reports whether format must be rendered before inspection
func NeedsConversion(format string) bool {
	switch format {
	case sniff.PDF, sniff.PostScript, sniff.TIFF, sniff.PSD:
		return true
	}
	return false
}

// Convert writes req.Target and returns the name of the strategy that
// produced it. When every strategy fails it returns a *ConversionError and
// Target does not exist.
func (o *Orchestrator) Convert(ctx context.Context, req Request) (string, error) {
	strategies := o.Strategies(req)
	if len(strategies) == 0 {
		return "", fmt.Errorf("%s: %w", req.Format, ErrNotConvertible)
	}

	attempts := make([]attempt.Attempt, 0, len(strategies))
	for _, s := range strategies {
		attempts = append(attempts, attempt.Attempt{
			Name:    s.Name,
			Timeout: s.Timeout,
			Invoke:  o.invoke(s, req.Target),
			Verify:  attempt.MinSize(req.Target, MinOutputBytes),
		})
	}

	chain := attempt.Chain{
		Attempts: attempts,
		Prepare: func(a attempt.Attempt) {
			log.Printf("[%s] Conversion attempt %s for %s", req.RunID, a.Name, req.Format)
			removeQuietly(req.Target)
		},
		Observe: func(a attempt.Attempt, err error) {
			if o.observer != nil {
				o.observer.ConversionAttempt(req.Format, a.Name, err)
			}
			if err != nil {
				log.Printf("[%s] Conversion attempt %s failed: %v", req.RunID, a.Name, err)
				removeQuietly(req.Target)
			}
		},
	}

	name, err := chain.Run(ctx)
	if err != nil {
		removeQuietly(req.Target)
		var exhausted *attempt.ExhaustedError
		if errors.As(err, &exhausted) {
			return "", &ConversionError{Format: req.Format, Attempts: exhausted.Attempts, Last: exhausted.Last}
		}
		return "", err
	}

	log.Printf("[%s] Converted %s using %s", req.RunID, req.Format, name)
	return name, nil
}

func (o *Orchestrator) invoke(s Strategy, target string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if s.Func != nil {
			return s.Func(ctx)
		}
		if _, err := o.runner.Run(ctx, *s.Command); err != nil {
			return err
		}
		if s.Output != "" && s.Output != target {
			defer removeQuietly(s.Output)
			if err := os.Rename(s.Output, target); err != nil {
				return fmt.Errorf("move output: %w", err)
			}
		}
		return nil
	}
}

// Strategies returns the ordered strategy list for req.Format, most faithful first
func (o *Orchestrator) Strategies(req Request) []Strategy {
	dpi := req.DPI
	if dpi <= 0 {
		dpi = 300
	}
	draft := min(dpi, DraftDPI)
	src := toolexec.PathArg(req.Source)

	switch req.Format {
	case sniff.PDF:
		prefix := strings.TrimSuffix(req.Target, ".png")
		return []Strategy{
			o.ghostscript("gs-render", 60*time.Second, req, dpi,
				"-dFirstPage=1", "-dLastPage=1", "-dTextAlphaBits=4", "-dGraphicsAlphaBits=4"),
			o.ghostscript("gs-draft", 45*time.Second, req, draft, "-dFirstPage=1", "-dLastPage=1"),
			{
				Name:    "pdftoppm",
				Timeout: 60 * time.Second,
				Command: &toolexec.Command{
					Name: o.tools.PDFToPPM,
					Args: []string{"-png", "-r", strconv.Itoa(dpi), "-f", "1", "-l", "1", "-singlefile", src, toolexec.PathArg(prefix)},
				},
				Output: prefix + ".png",
			},
		}

	case sniff.PostScript:
		return []Strategy{
			o.ghostscript("gs-eps-crop", 60*time.Second, req, dpi,
				"-dFirstPage=1", "-dLastPage=1", "-dEPSCrop", "-dTextAlphaBits=4", "-dGraphicsAlphaBits=4"),
			o.ghostscript("gs-draft", 45*time.Second, req, draft, "-dFirstPage=1", "-dLastPage=1"),
			o.ghostscript("gs-minimal", 30*time.Second, req, 72, "-dFirstPage=1", "-dLastPage=1"),
		}

	case sniff.TIFF:
		return []Strategy{
			o.magick("magick-srgb", 30*time.Second, "tiff:"+src+"[0]", req.Target, "-colorspace", "sRGB"),
			o.magick("magick-flatten", 30*time.Second, "tiff:"+src+"[0]", req.Target, "-flatten"),
			{
				Name:    "imaging-decode",
				Timeout: 30 * time.Second,
				Func:    decodeWithImaging(req.Source, req.Target),
			},
		}

	case sniff.PSD:
		return []Strategy{
			o.magick("magick-composite", 120*time.Second, "psd:"+src+"[0]", req.Target, "-flatten"),
			o.magick("magick-merge-layers", 120*time.Second, "psd:"+src, req.Target, "-flatten"),
			o.magick("magick-first-layer", 60*time.Second, "psd:"+src+"[1]", req.Target),
		}
	}
	return nil
}

// ghostscript builds a png16m render; SafetyFlags always lead the argument list
func (o *Orchestrator) ghostscript(name string, timeout time.Duration, req Request, dpi int, extra ...string) Strategy {
	args := append([]string{}, SafetyFlags...)
	args = append(args, "-sDEVICE=png16m", "-r"+strconv.Itoa(dpi))
	args = append(args, extra...)
	args = append(args, "-sOutputFile="+toolexec.PathArg(req.Target), toolexec.PathArg(req.Source))
	return Strategy{
		Name:    name,
		Timeout: timeout,
		Command: &toolexec.Command{Name: o.tools.Ghostscript, Args: args},
	}
}

// magick builds an ImageMagick conversion under MagickLimits. The input
// carries an explicit coder prefix so the tool cannot re-sniff it as a
// scriptable format.
func (o *Orchestrator) magick(name string, timeout time.Duration, input, target string, ops ...string) Strategy {
	args := append([]string{}, toolexec.MagickLimits...)
	args = append(args, input)
	args = append(args, ops...)
	args = append(args, "png:"+toolexec.PathArg(target))
	return Strategy{
		Name:    name,
		Timeout: timeout,
		Command: &toolexec.Command{Name: o.tools.Convert, Args: args},
	}
}

func decodeWithImaging(src, target string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		img, err := rasterlimit.Open(src)
		if err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		f, err := os.Create(target)
		if err != nil {
			return err
		}
		if err := imaging.Encode(f, img, imaging.PNG); err != nil {
			f.Close()
			return fmt.Errorf("encode: %w", err)
		}
		return f.Close()
	}
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove %s: %v", path, err)
	}
}
