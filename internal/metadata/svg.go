package metadata

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// svgHeadLimit bounds how much of the document is read to find the root element
const svgHeadLimit = 1 << 20

// cssPixelsPerInch is the SVG user unit density
const cssPixelsPerInch = 96.0

var errSVGSize = errors.New("svg has no usable size")

// unitPixels converts absolute SVG length units to CSS pixels
var unitPixels = map[string]float64{
	"":   1,
	"px": 1,
	"pt": cssPixelsPerInch / 72,
	"pc": cssPixelsPerInch / 6,
	"in": cssPixelsPerInch,
	"cm": cssPixelsPerInch / 2.54,
	"mm": cssPixelsPerInch / 25.4,
}

// InspectSVG reads the root <svg> element in-process and reports the size
// the document would have when rendered at dpi. No external tool is run
// and no referenced resource is resolved.
func InspectSVG(path string, dpi int) (ImageMetadata, error) {
	if dpi <= 0 {
		dpi = EstimateDPI
	}
	f, err := os.Open(path)
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}
	defer f.Close()

	w, h, err := svgSize(io.LimitReader(f, svgHeadLimit))
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	}

	scale := float64(dpi) / cssPixelsPerInch
	return ImageMetadata{
		Width:        int(math.Round(w * scale)),
		Height:       int(math.Round(h * scale)),
		DPI:          dpi,
		Colorspace:   "sRGB",
		HasAlpha:     true,
		PageCount:    1,
		SourceFormat: "SVG",
	}, nil
}

func svgSize(r io.Reader) (float64, float64, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0, fmt.Errorf("read svg root: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "svg" {
			return 0, 0, fmt.Errorf("root element is <%s>", start.Name.Local)
		}
		return rootSize(start.Attr)
	}
}

func rootSize(attrs []xml.Attr) (float64, float64, error) {
	var width, height, viewBox string
	for _, a := range attrs {
		if a.Name.Space != "" {
			continue
		}
		switch a.Name.Local {
		case "width":
			width = a.Value
		case "height":
			height = a.Value
		case "viewBox":
			viewBox = a.Value
		}
	}

	w, wok := svgLength(width)
	h, hok := svgLength(height)
	if wok && hok {
		return w, h, nil
	}

	fields := strings.FieldsFunc(viewBox, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	if len(fields) != 4 {
		return 0, 0, errSVGSize
	}
	vw, err1 := strconv.ParseFloat(fields[2], 64)
	vh, err2 := strconv.ParseFloat(fields[3], 64)
	if err1 != nil || err2 != nil || vw <= 0 || vh <= 0 {
		return 0, 0, errSVGSize
	}
	switch {
	case wok:
		return w, w * vh / vw, nil
	case hok:
		return h * vw / vh, h, nil
	}
	return vw, vh, nil
}

// svgLength parses an absolute length. Percentages and font-relative units
// have no intrinsic size and are rejected.
func svgLength(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	i := len(v)
	for i > 0 && (v[i-1] < '0' || v[i-1] > '9') && v[i-1] != '.' {
		i--
	}
	per, ok := unitPixels[strings.ToLower(v[i:])]
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(v[:i], 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n * per, true
}
