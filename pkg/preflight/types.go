package preflight

// Status is the verdict of a single check or of a whole preflight run
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Severity orders statuses: error > warning > ok
func (s Status) Severity() int {
	switch s {
	case StatusError:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}

// Check names, in the order the aggregator runs them
const (
	CheckSize         = "file_size"
	CheckFormat       = "format"
	CheckPageCount    = "page_count"
	CheckDPI          = "dpi"
	CheckDimensions   = "dimensions"
	CheckTransparency = "transparency"
	CheckColorProfile = "color_profile"
	CheckAnalysis     = "image_analysis"
)

// CheckResult is the outcome of one check. Value and Details are optional.
type CheckResult struct {
	Name    string                 `json:"name"`
	Status  Status                 `json:"status"`
	Value   interface{}            `json:"value,omitempty"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Result is the full preflight report for one file
type Result struct {
	Overall       Status        `json:"overall"`
	Checks        []CheckResult `json:"checks"`
	ThumbnailPath string        `json:"thumbnail_path,omitempty"`
	ConvertedPath string        `json:"converted_path,omitempty"`
}

// Check returns the named check, if it was recorded
func (r *Result) Check(name string) (CheckResult, bool) {
	for _, c := range r.Checks {
		if c.Name == name {
			return c, true
		}
	}
	return CheckResult{}, false
}

// Failed returns the checks with error status
func (r *Result) Failed() []CheckResult {
	return r.withStatus(StatusError)
}

// Warnings returns the checks with warning status
func (r *Result) Warnings() []CheckResult {
	return r.withStatus(StatusWarning)
}

func (r *Result) withStatus(s Status) []CheckResult {
	var out []CheckResult
	for _, c := range r.Checks {
		if c.Status == s {
			out = append(out, c)
		}
	}
	return out
}

// ProcessRequest represents a request to preflight stored content
type ProcessRequest struct {
	ContentID    string            `json:"content_id"`
	ObjectKey    string            `json:"object_key,omitempty"`
	Job          string            `json:"job"`
	Tier         string            `json:"tier,omitempty"`
	DeclaredMIME string            `json:"declared_mime,omitempty"`
	Versions     map[string]int    `json:"versions"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// ProcessResponse represents the response from triggering processing
type ProcessResponse struct {
	RunID           string  `json:"run_id"`
	DedupeSeenCount int     `json:"dedupe_seen_count"`
	Result          *Result `json:"result,omitempty"`
}

// JobType constants
const (
	JobPreflight = "preflight"
)

// DerivedType constants (match simple-content conventions)
const (
	DerivedTypeThumbnail = "preflight_thumbnail"
	DerivedTypeRaster    = "preflight_raster"
)
