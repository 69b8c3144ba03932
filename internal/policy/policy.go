// Package policy maps subscription tiers to the limits a preflight run enforces.
package policy

import (
	"slices"
	"strings"
)

// Config holds the limits for one tier. Treat it as read-only once resolved.
type Config struct {
	Tier                string   `json:"tier"`
	MaxFileSizeBytes    int64    `json:"max_file_size_bytes"`
	MinDPI              int      `json:"min_dpi"`
	RequiredDPI         int      `json:"required_dpi"`
	MaxPages            int      `json:"max_pages"`
	AllowedFormats      []string `json:"allowed_formats"`
	RequireTransparency bool     `json:"require_transparency"`

	// SinglePage means downstream production only uses the first page
	SinglePage bool `json:"single_page"`
}

// Table is a static set of tiers. Fallback names the most restrictive tier,
// used for any tier the table does not know.
type Table struct {
	Tiers    map[string]Config
	Fallback string
}

const (
	TierFree     = "free"
	TierPro      = "pro"
	TierBusiness = "business"
)

const mb = 1024 * 1024

// DefaultTable returns the built-in tiers
func DefaultTable() Table {
	return Table{
		Fallback: TierFree,
		Tiers: map[string]Config{
			TierFree: {
				Tier:             TierFree,
				MaxFileSizeBytes: 10 * mb,
				MinDPI:           150,
				RequiredDPI:      300,
				MaxPages:         1,
				AllowedFormats:   []string{"image/png", "image/jpeg"},
				SinglePage:       true,
			},
			TierPro: {
				Tier:             TierPro,
				MaxFileSizeBytes: 50 * mb,
				MinDPI:           150,
				RequiredDPI:      300,
				MaxPages:         5,
				AllowedFormats: []string{
					"image/png", "image/jpeg", "image/webp", "image/tiff",
					"application/pdf", "image/svg+xml",
				},
				SinglePage: true,
			},
			TierBusiness: {
				Tier:             TierBusiness,
				MaxFileSizeBytes: 200 * mb,
				MinDPI:           150,
				RequiredDPI:      300,
				MaxPages:         20,
				AllowedFormats: []string{
					"image/png", "image/jpeg", "image/webp", "image/tiff",
					"application/pdf", "image/svg+xml", "application/postscript",
					"image/vnd.adobe.photoshop",
				},
				SinglePage: true,
			},
		},
	}
}

// Resolver looks tiers up in a Table
type Resolver struct {
	table Table
}

// NewResolver creates a resolver over the given table
func NewResolver(table Table) *Resolver {
	return &Resolver{table: table}
}

// Resolve returns the limits for tier. Unknown tiers get the fallback tier.
func (r *Resolver) Resolve(tier string) Config {
	cfg, ok := r.table.Tiers[strings.ToLower(strings.TrimSpace(tier))]
	if !ok {
		cfg = r.table.Tiers[r.table.Fallback]
	}
	cfg.AllowedFormats = slices.Clone(cfg.AllowedFormats)
	return cfg
}

// AliasGroups lists families of MIME spellings that name the same format.
// The first entry of each group is the canonical type the sniffer reports.
type AliasGroups [][]string

// DefaultAliasGroups returns the built-in alias families
func DefaultAliasGroups() AliasGroups {
	return AliasGroups{
		{"image/jpeg", "image/jpg", "image/pjpeg"},
		{"image/png", "image/x-png"},
		{"image/tiff", "image/tif", "image/x-tiff"},
		{"image/svg+xml", "image/svg"},
		{"application/postscript", "application/eps", "application/x-eps", "image/eps", "image/x-eps", "application/illustrator"},
		{
			"image/vnd.adobe.photoshop", "image/x-photoshop", "image/photoshop", "image/psd",
			"application/photoshop", "application/psd", "application/x-photoshop",
		},
	}
}

// Aliases returns every spelling equivalent to mime, including mime itself
func (g AliasGroups) Aliases(mime string) []string {
	mime = strings.ToLower(strings.TrimSpace(mime))
	for _, group := range g {
		if slices.Contains(group, mime) {
			return group
		}
	}
	return []string{mime}
}

// Equivalent reports whether a and b name the same format
func (g AliasGroups) Equivalent(a, b string) bool {
	return slices.Contains(g.Aliases(a), strings.ToLower(strings.TrimSpace(b)))
}

// Allows reports whether mime, or any alias of it, is in the allow-list
func (c Config) Allows(mime string, groups AliasGroups) bool {
	for _, alias := range groups.Aliases(mime) {
		for _, allowed := range c.AllowedFormats {
			if strings.EqualFold(alias, allowed) {
				return true
			}
		}
	}
	return false
}
