package checks

import (
	"fmt"

	"github.com/tendant/print-preflight/internal/metadata"
	"github.com/tendant/print-preflight/internal/policy"
	"github.com/tendant/print-preflight/pkg/preflight"
)

// Input is everything the metadata-based checks look at
type Input struct {
	Metadata metadata.ImageMetadata
	// PDF is set for PDF sources
	PDF *metadata.PDFInfo
}

// Evaluate runs the page-count (PDF only), DPI, dimensions, transparency and
// color profile checks in that order. A panic in any of them is reported as
// a single error check instead of escaping.
func Evaluate(in Input, p policy.Config) (results []preflight.CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			results = []preflight.CheckResult{{
				Name:    CheckInternal,
				Status:  preflight.StatusError,
				Message: "checks could not be evaluated",
				Details: map[string]interface{}{"cause": fmt.Sprint(r)},
			}}
		}
	}()

	meta := in.Metadata
	var extra map[string]interface{}

	if in.PDF != nil {
		results = append(results, PageCount(in.PDF.PageCount, p))
		extra = map[string]interface{}{
			"page_width_points":  in.PDF.WidthPoints,
			"page_height_points": in.PDF.HeightPoints,
			"estimated_width":    in.PDF.EstimatedWidth,
			"estimated_height":   in.PDF.EstimatedHeight,
			"estimate_dpi":       metadata.EstimateDPI,
		}
	}

	results = append(results,
		DPI(meta.DPI, p),
		Dimensions(meta.Width, meta.Height, extra),
		Transparency(meta.HasAlpha, p),
		ColorProfile(meta.Colorspace),
	)
	return results
}

// Overall folds check statuses with error > warning > ok. It only ever
// escalates. A transparency check recorded under a plan that requires
// transparency lifts the result to at least warning when alpha is missing.
func Overall(results []preflight.CheckResult) preflight.Status {
	overall := preflight.StatusOK
	for _, c := range results {
		if c.Status.Severity() > overall.Severity() {
			overall = c.Status
		}
		if c.Name == preflight.CheckTransparency && requiredButMissing(c) &&
			overall.Severity() < preflight.StatusWarning.Severity() {
			overall = preflight.StatusWarning
		}
	}
	return overall
}

func requiredButMissing(c preflight.CheckResult) bool {
	required, _ := c.Details["required"].(bool)
	hasAlpha, _ := c.Details["has_alpha"].(bool)
	return required && !hasAlpha
}

// Result builds the final report from the recorded checks
func Result(results []preflight.CheckResult) preflight.Result {
	return preflight.Result{
		Overall: Overall(results),
		Checks:  results,
	}
}
