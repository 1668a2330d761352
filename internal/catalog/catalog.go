// Package catalog loads, indexes and filters the report templates: masks
// (report skeletons, one per exam protocol) and findings (reusable clauses
// grouped by anatomical region).
//
// Templates are Markdown documents with a YAML front matter header:
//
//	---
//	tipo: tc-abdome
//	contraste: com
//	palavras_chave: [abdome, contraste]
//	---
//	TOMOGRAFIA COMPUTADORIZADA DO ABDOME ...
//
// Masks live flat under mascaras/, findings are nested by region under
// achados/.
package catalog

import "errors"

// Directory names inside the template root.
const (
	MasksDir    = "mascaras"
	FindingsDir = "achados"
)

// GenericMSKType is the exam type of the generic musculoskeletal mask kept as
// a last resort when no mask matches the classified exam type.
const GenericMSKType = "rm-musculoesqueletico"

// CommonRegions are finding regions offered regardless of the exam context.
var CommonRegions = []string{"rins", "ureteres"}

// ErrNoMasks is returned when a template tree contains no mask.
var ErrNoMasks = errors.New("catalog: no masks found")

// Mask is a report skeleton for one exam protocol.
type Mask struct {
	File          string   `yaml:"-"`
	Type          string   `yaml:"tipo"`
	Subtype       string   `yaml:"subtipo"`
	Contrast      string   `yaml:"contraste"`
	DefaultUrgent bool     `yaml:"urgencia_padrao"`
	Keywords      []string `yaml:"palavras_chave"`
	Body          string   `yaml:"-"`
}

// Finding is a clause template for one clinical finding.
type Finding struct {
	File           string   `yaml:"-"`
	Region         string   `yaml:"regiao"`
	Keywords       []string `yaml:"palavras_chave"`
	Required       []string `yaml:"campos_obrigatorios"`
	Optional       []string `yaml:"campos_opcionais"`
	DefaultMeasure string   `yaml:"medida_padrao"`
	Body           string   `yaml:"-"`
}

// Catalog is an immutable set of masks and findings. Callers must not modify
// the slices of a Catalog they did not build.
type Catalog struct {
	Masks    []Mask
	Findings []Finding
}

// Mask returns the mask with the given file name.
func (c *Catalog) Mask(file string) (Mask, bool) {
	for _, m := range c.Masks {
		if m.File == file {
			return m, true
		}
	}
	return Mask{}, false
}

// Finding returns the finding with the given file name.
func (c *Catalog) Finding(file string) (Finding, bool) {
	for _, f := range c.Findings {
		if f.File == file {
			return f, true
		}
	}
	return Finding{}, false
}

// MaskFiles lists mask file names in catalog order.
func (c *Catalog) MaskFiles() []string {
	out := make([]string, len(c.Masks))
	for i, m := range c.Masks {
		out[i] = m.File
	}
	return out
}

// FindingFiles lists finding file names in catalog order.
func (c *Catalog) FindingFiles() []string {
	out := make([]string, len(c.Findings))
	for i, f := range c.Findings {
		out[i] = f.File
	}
	return out
}

// Pick returns a catalog holding only the named mask and findings, in the
// order given. Unknown names are skipped.
func (c *Catalog) Pick(mask string, findings []string) *Catalog {
	out := &Catalog{}
	if m, ok := c.Mask(mask); ok {
		out.Masks = []Mask{m}
	}
	for _, name := range findings {
		if f, ok := c.Finding(name); ok {
			out.Findings = append(out.Findings, f)
		}
	}
	return out
}
