package prompt

import (
	"strings"
	"testing"

	"github.com/eduardocaminha/reporter-sub000/internal/catalog"
)

var selected = &catalog.Catalog{
	Masks: []catalog.Mask{{File: "tc-abdome-com-contraste.md", Type: "tc-abdome", Contrast: "com", Body: "TOMOGRAFIA DO ABDOME {{achados}}"}},
	Findings: []catalog.Finding{{
		File: "rins/cisto-bosniak.md", Region: "rins",
		Required: []string{"lado", "medida"}, Body: "Cisto cortical no rim {{lado}}.",
	}},
}

func TestAssemble_Deterministic(t *testing.T) {
	t.Parallel()

	opts := Options{PSMode: true, Comparative: true, Search: true, Templates: selected, Research: "PMID 1"}
	if Assemble(opts) != Assemble(opts) {
		t.Fatal("Assemble is not deterministic")
	}
}

func TestAssemble_Sections(t *testing.T) {
	t.Parallel()

	base := Assemble(Options{Templates: selected})
	for _, want := range []string{
		"## Formatação",
		"## Validação",
		"## Coluna",
		"### Máscara: tc-abdome-com-contraste.md",
		"TOMOGRAFIA DO ABDOME {{achados}}",
		"obrigatórios: lado, medida",
		MetadataDelimiter,
	} {
		if !strings.Contains(base, want) {
			t.Errorf("base prompt missing %q", want)
		}
	}
	for _, absent := range []string{"## Pronto-socorro", "## Modo comparativo", "## Pesquisa"} {
		if strings.Contains(base, absent) {
			t.Errorf("base prompt should not contain %q", absent)
		}
	}

	full := Assemble(Options{PSMode: true, Comparative: true, Search: true, Templates: selected, Research: "Bosniak 2019: PMID 31361226"})
	for _, want := range []string{"## Modo comparativo", "## Pesquisa", "PMID 31361226"} {
		if !strings.Contains(full, want) {
			t.Errorf("full prompt missing %q", want)
		}
	}
	if !strings.HasSuffix(full, psAddendum) {
		t.Error("PS addendum must close the prompt")
	}
}

func TestAssemble_EmptyResearchAndCatalog(t *testing.T) {
	t.Parallel()

	got := Assemble(Options{Search: true})
	if !strings.Contains(got, "Nenhuma nota de pesquisa disponível.") {
		t.Error("missing empty research placeholder")
	}
	if !strings.Contains(got, "Nenhum template disponível") {
		t.Error("missing empty catalog notice")
	}
}
