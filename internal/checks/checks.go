// Package checks evaluates individual print-readiness checks and folds their
// statuses into one verdict.
package checks

import (
	"fmt"
	"math"
	"strings"

	"github.com/tendant/print-preflight/internal/policy"
	"github.com/tendant/print-preflight/internal/sniff"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// MinDPI is scaled by softFloorNum/softFloorDen (0.7) to find the point
// below which a file is unusable. Integer math keeps the boundary exact.
const (
	softFloorNum = 7
	softFloorDen = 10
)

// CheckInternal names the synthetic check recorded when evaluation panics
const CheckInternal = "preflight_internal"

var colorProfiles = []string{"srgb", "rgb", "cmyk"}

const bytesPerMB = 1024 * 1024

// Size compares the upload size with the tier limit; equal is allowed
func Size(fileSize int64, p policy.Config) preflight.CheckResult {
	sizeMB := math.Round(float64(fileSize)/bytesPerMB*100) / 100
	limitMB := math.Round(float64(p.MaxFileSizeBytes)/bytesPerMB*100) / 100

	c := preflight.CheckResult{
		Name:   preflight.CheckSize,
		Status: preflight.StatusOK,
		Value:  sizeMB,
		Details: map[string]interface{}{
			"bytes":     fileSize,
			"max_bytes": p.MaxFileSizeBytes,
		},
	}
	if fileSize > p.MaxFileSizeBytes {
		c.Status = preflight.StatusError
		c.Message = fmt.Sprintf("file is %.2f MB, limit is %.2f MB", sizeMB, limitMB)
	}
	return c
}

// Format checks the sniffed type against the tier allow-list. The declared
// type never changes the status; a mismatch is only noted.
func Format(detected, declared string, p policy.Config, groups policy.AliasGroups) preflight.CheckResult {
	c := preflight.CheckResult{
		Name:    preflight.CheckFormat,
		Status:  preflight.StatusOK,
		Value:   detected,
		Details: map[string]interface{}{},
	}
	if declared != "" {
		c.Details["declared"] = declared
	}

	switch {
	case detected == sniff.Unknown:
		c.Status = preflight.StatusError
		c.Message = "file format could not be recognized"
	case !p.Allows(detected, groups):
		c.Status = preflight.StatusError
		c.Message = fmt.Sprintf("format %s is not allowed on the %s plan", detected, p.Tier)
	case declared != "" && !groups.Equivalent(detected, declared):
		c.Message = fmt.Sprintf("declared as %s but content is %s", declared, detected)
	}
	return c
}

// PageCount applies the page limit; multi-page documents within the limit
// warn when only the first page is used downstream
func PageCount(pages int, p policy.Config) preflight.CheckResult {
	c := preflight.CheckResult{
		Name:    preflight.CheckPageCount,
		Status:  preflight.StatusOK,
		Value:   pages,
		Details: map[string]interface{}{"max_pages": p.MaxPages},
	}
	switch {
	case pages > p.MaxPages:
		c.Status = preflight.StatusError
		c.Message = fmt.Sprintf("document has %d pages, limit is %d", pages, p.MaxPages)
	case pages >= 2 && p.SinglePage:
		c.Status = preflight.StatusWarning
		c.Message = fmt.Sprintf("document has %d pages, only the first page will be used", pages)
	}
	return c
}

// DPI grades resolution: below 0.7*MinDPI is an error, below RequiredDPI
// a warning
func DPI(dpi int, p policy.Config) preflight.CheckResult {
	c := preflight.CheckResult{
		Name:   preflight.CheckDPI,
		Status: preflight.StatusOK,
		Value:  dpi,
		Details: map[string]interface{}{
			"min_dpi":      p.MinDPI,
			"required_dpi": p.RequiredDPI,
		},
	}
	switch {
	case dpi*softFloorDen < p.MinDPI*softFloorNum:
		c.Status = preflight.StatusError
		c.Message = fmt.Sprintf("%d DPI is too low to print, at least %d DPI is needed", dpi, p.MinDPI)
	case dpi < p.RequiredDPI:
		c.Status = preflight.StatusWarning
		c.Message = fmt.Sprintf("%d DPI is usable but below the recommended %d DPI", dpi, p.RequiredDPI)
	}
	return c
}

// Dimensions is informational only
func Dimensions(width, height int, extra map[string]interface{}) preflight.CheckResult {
	details := map[string]interface{}{"width": width, "height": height}
	for k, v := range extra {
		details[k] = v
	}
	return preflight.CheckResult{
		Name:    preflight.CheckDimensions,
		Status:  preflight.StatusOK,
		Value:   fmt.Sprintf("%dx%d", width, height),
		Details: details,
	}
}

// Transparency warns when there is no alpha channel. A tier that requires
// transparency is enforced by Overall, not by this check's status.
func Transparency(hasAlpha bool, p policy.Config) preflight.CheckResult {
	c := preflight.CheckResult{
		Name:   preflight.CheckTransparency,
		Status: preflight.StatusOK,
		Value:  hasAlpha,
		Details: map[string]interface{}{
			"has_alpha": hasAlpha,
			"required":  p.RequireTransparency,
		},
	}
	if !hasAlpha {
		c.Status = preflight.StatusWarning
		c.Message = "image has no transparency"
		if p.RequireTransparency {
			c.Message = "image has no transparency, which this plan requires"
		}
	}
	return c
}

// ColorProfile accepts RGB and CMYK color spaces
func ColorProfile(colorspace string) preflight.CheckResult {
	c := preflight.CheckResult{
		Name:   preflight.CheckColorProfile,
		Status: preflight.StatusWarning,
		Value:  colorspace,
	}
	lower := strings.ToLower(colorspace)
	for _, cp := range colorProfiles {
		if strings.Contains(lower, cp) {
			c.Status = preflight.StatusOK
			return c
		}
	}
	if colorspace == "" {
		c.Message = "color space could not be determined"
	} else {
		c.Message = fmt.Sprintf("color space %s may not print as expected", colorspace)
	}
	return c
}

// AnalysisFailed stands in for every metadata-based check
func AnalysisFailed(err error) preflight.CheckResult {
	c := preflight.CheckResult{
		Name:    preflight.CheckAnalysis,
		Status:  preflight.StatusError,
		Message: "file could not be analyzed",
	}
	if err != nil {
		c.Details = map[string]interface{}{"cause": err.Error()}
	}
	return c
}
