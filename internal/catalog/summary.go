package catalog

import "github.com/eduardocaminha/reporter-sub000/internal/exam"

// MaskSummary is the metadata of a mask without its body.
type MaskSummary struct {
	File     string   `json:"arquivo"`
	Type     string   `json:"tipo"`
	Subtype  string   `json:"subtipo,omitempty"`
	Contrast string   `json:"contraste,omitempty"`
	Keywords []string `json:"palavras_chave,omitempty"`
}

// FindingSummary is the metadata of a finding without its body.
type FindingSummary struct {
	File     string   `json:"arquivo"`
	Region   string   `json:"regiao"`
	Keywords []string `json:"palavras_chave,omitempty"`
	Required []string `json:"campos_obrigatorios,omitempty"`
}

// Summary is a body-free view of a catalog, cheap enough to hand to the
// selector model.
type Summary struct {
	Masks    []MaskSummary    `json:"mascaras"`
	Findings []FindingSummary `json:"achados"`
}

// Summary returns the metadata of every template in c.
func (c *Catalog) Summary() Summary {
	s := Summary{
		Masks:    make([]MaskSummary, 0, len(c.Masks)),
		Findings: make([]FindingSummary, 0, len(c.Findings)),
	}
	for _, m := range c.Masks {
		s.Masks = append(s.Masks, MaskSummary{
			File:     m.File,
			Type:     m.Type,
			Subtype:  m.Subtype,
			Contrast: m.Contrast,
			Keywords: m.Keywords,
		})
	}
	for _, f := range c.Findings {
		s.Findings = append(s.Findings, FindingSummary{
			File:     f.File,
			Region:   f.Region,
			Keywords: f.Keywords,
			Required: f.Required,
		})
	}
	return s
}

// Summarize filters c by the exam context and summarizes the result.
func (c *Catalog) Summarize(ec exam.Context) Summary {
	return c.Filter(ec).Summary()
}
