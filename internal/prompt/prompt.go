// Package prompt composes the system prompt of the report generation call
// from request flags, the selected templates and static domain rules.
package prompt

import (
	"fmt"
	"strings"

	"github.com/eduardocaminha/reporter-sub000/internal/catalog"
)

// MetadataDelimiter separates the report prose from the trailing JSON block
// of suggestions and soft error in the model output.
const MetadataDelimiter = "---METADATA---"

// Options selects the sections of the system prompt.
type Options struct {
	// PSMode requests an emergency-department report.
	PSMode bool

	// Comparative requests comparison with a prior exam.
	Comparative bool

	// Search adds the research-notes instructions and Research content.
	Search bool

	// Templates is the catalog section: the selected templates, or the whole
	// catalog when template optimization is off.
	Templates *catalog.Catalog

	// Research is the text gathered by the tool-resolution phase.
	Research string
}

// Assemble builds the system prompt. It performs no I/O and returns the same
// text for the same options.
func Assemble(opts Options) string {
	var b strings.Builder
	section := func(s string) {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(s)
	}

	section(introRules)
	section(formattingRules)
	section(placeholderRules)
	section(validationRules)
	section(spineRules)
	section(optionalBlockRules)
	if opts.Comparative {
		section(comparativeRules)
	}
	section(catalogSection(opts.Templates))
	if opts.Search {
		section(searchRules)
		research := strings.TrimSpace(opts.Research)
		if research == "" {
			research = "Nenhuma nota de pesquisa disponível."
		}
		section("### Notas de pesquisa\n" + research)
	}
	section(outputContract())
	if opts.PSMode {
		section(psAddendum)
	}
	return b.String()
}

func catalogSection(c *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("## Catálogo de templates")
	if c == nil || (len(c.Masks) == 0 && len(c.Findings) == 0) {
		b.WriteString("\nNenhum template disponível; redija o laudo seguindo apenas as regras acima.")
		return b.String()
	}

	for _, m := range c.Masks {
		fmt.Fprintf(&b, "\n\n### Máscara: %s\n", m.File)
		fmt.Fprintf(&b, "tipo: %s", m.Type)
		if m.Subtype != "" {
			fmt.Fprintf(&b, " | subtipo: %s", m.Subtype)
		}
		if m.Contrast != "" {
			fmt.Fprintf(&b, " | contraste: %s", m.Contrast)
		}
		if m.DefaultUrgent {
			b.WriteString(" | urgência")
		}
		fmt.Fprintf(&b, "\n<<<\n%s\n>>>", m.Body)
	}
	for _, f := range c.Findings {
		fmt.Fprintf(&b, "\n\n### Achado: %s\n", f.File)
		fmt.Fprintf(&b, "região: %s", f.Region)
		if len(f.Required) > 0 {
			fmt.Fprintf(&b, " | obrigatórios: %s", strings.Join(f.Required, ", "))
		}
		if len(f.Optional) > 0 {
			fmt.Fprintf(&b, " | opcionais: %s", strings.Join(f.Optional, ", "))
		}
		if f.DefaultMeasure != "" {
			fmt.Fprintf(&b, " | medida padrão: %s", f.DefaultMeasure)
		}
		fmt.Fprintf(&b, "\n<<<\n%s\n>>>", f.Body)
	}
	return b.String()
}

func outputContract() string {
	return `## Formato da resposta
Escreva primeiro o laudo em texto puro. Em seguida, em uma linha própria, escreva exatamente
` + MetadataDelimiter + `
e, depois dela, somente um objeto JSON:
{"sugestoes": ["<sugestão>", ...], "erro": null}
Quando faltar informação essencial, não escreva o laudo: escreva apenas a linha ` + MetadataDelimiter + ` seguida de
{"sugestoes": [], "erro": "<o que falta>"}`
}
