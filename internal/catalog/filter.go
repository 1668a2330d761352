package catalog

import (
	"slices"
	"strings"

	"github.com/eduardocaminha/reporter-sub000/internal/exam"
)

// Filter returns the subset of c relevant to the exam context. The result is
// never left without masks when c has any, and filtering a filtered catalog
// again with the same context returns the same set.
func (c *Catalog) Filter(ec exam.Context) *Catalog {
	return &Catalog{
		Masks:    FilterMasks(c.Masks, ec),
		Findings: FilterFindings(c.Findings, ec),
	}
}

// FilterMasks narrows masks by exam type, then by subtype, or by contrast when
// no subtype was classified. When no mask has the classified type the generic
// musculoskeletal mask stands in. An empty result falls back to all masks.
func FilterMasks(masks []Mask, ec exam.Context) []Mask {
	if ec.Type == "" {
		return masks
	}

	var typed []Mask
	for _, m := range masks {
		if m.Type == ec.Type {
			typed = append(typed, m)
		}
	}

	var out []Mask
	switch {
	case len(typed) == 0:
		for _, m := range masks {
			if m.Type == GenericMSKType {
				out = append(out, m)
			}
		}
	case ec.Subtype != "":
		out = keepMasks(typed, func(m Mask) bool { return m.Subtype == ec.Subtype })
	case ec.Contrast != "":
		out = keepMasks(typed, func(m Mask) bool { return m.Contrast == ec.Contrast })
	default:
		out = typed
	}

	if len(out) == 0 {
		return masks
	}
	return out
}

func keepMasks(masks []Mask, keep func(Mask) bool) []Mask {
	var out []Mask
	for _, m := range masks {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

// FilterFindings keeps findings whose region and a relevant region of the
// context contain one another, plus every finding of a common region. A
// context without relevant regions keeps all findings.
func FilterFindings(findings []Finding, ec exam.Context) []Finding {
	if len(ec.RelevantRegions) == 0 {
		return findings
	}

	seen := make(map[string]struct{}, len(findings))
	var out []Finding
	for _, f := range findings {
		if _, dup := seen[f.File]; dup {
			continue
		}
		if regionMatches(f.Region, ec.RelevantRegions) || regionMatches(f.Region, CommonRegions) {
			seen[f.File] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}

func regionMatches(region string, candidates []string) bool {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		return false
	}
	return slices.ContainsFunc(candidates, func(c string) bool {
		c = strings.ToLower(c)
		return strings.Contains(region, c) || strings.Contains(c, region)
	})
}
