package report

import (
	"strings"
	"testing"
)

// feedAll runs fragments through a fresh Splitter and returns the emitted
// text together with the splitter.
func feedAll(fragments ...string) (string, *Splitter) {
	s := NewSplitter()
	var b strings.Builder
	for _, f := range fragments {
		b.WriteString(s.Feed(f))
	}
	b.WriteString(s.Flush())
	return b.String(), s
}

func TestSplitter_DelimiterAcrossFragments(t *testing.T) {
	t.Parallel()

	got, s := feedAll("TOMOGRAFIA", " DE ABDOME\n---MET", "ADATA---\n{\"sugestoes\":[],\"erro\":null}")
	if got != "TOMOGRAFIA DE ABDOME" {
		t.Errorf("emitted = %q", got)
	}
	if !s.InMetadata() {
		t.Error("InMetadata = false after delimiter")
	}
	if !strings.HasSuffix(s.Raw(), `{"sugestoes":[],"erro":null}`) {
		t.Errorf("Raw = %q", s.Raw())
	}
}

func TestSplitter_NothingAfterDelimiter(t *testing.T) {
	t.Parallel()

	s := NewSplitter()
	s.Feed("LAUDO\n---METADATA---\n")
	for _, f := range []string{`{"sugestoes":`, `["a"]`, `}`, " texto solto"} {
		if out := s.Feed(f); out != "" {
			t.Errorf("Feed(%q) after delimiter = %q", f, out)
		}
	}
	if out := s.Flush(); out != "" {
		t.Errorf("Flush after delimiter = %q", out)
	}
}

func TestSplitter_NoDelimiterFlushesTail(t *testing.T) {
	t.Parallel()

	got, s := feedAll("Fígado ", "de dimensões normais.\n", "Sem alterações.")
	if got != "Fígado de dimensões normais.\nSem alterações." {
		t.Errorf("emitted = %q", got)
	}
	if s.InMetadata() {
		t.Error("InMetadata = true without delimiter")
	}
}

func TestSplitter_HoldsBackPossibleDelimiter(t *testing.T) {
	t.Parallel()

	s := NewSplitter()
	if out := s.Feed("---META"); out != "" {
		t.Errorf("partial delimiter leaked: %q", out)
	}
	if out := s.Feed("DATA---"); out != "" {
		t.Errorf("delimiter leaked: %q", out)
	}
	if !s.InMetadata() {
		t.Error("delimiter not recognised")
	}
}

// Every way of cutting the input into two or three pieces must emit the same
// text as feeding it whole.
func TestSplitter_ChunkingInvariance(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"TOMOGRAFIA DE ABDOME\n\nFígado com esteatose.   \n\n---METADATA---\n{\"sugestoes\":[\"x\"],\"erro\":null}",
		"Rins tópicos, sem cálculos; ureteres não dilatados.",
		"Texto com espaços finais   \n\t",
		"---METADATA---\n{}",
		"ÂÉÎÕÜ çãõ ---METADATA",
	}

	for _, in := range inputs {
		want, _ := feedAll(in)
		for i := 0; i <= len(in); i++ {
			if got, _ := feedAll(in[:i], in[i:]); got != want {
				t.Fatalf("split at %d of %q: got %q, want %q", i, in, got, want)
			}
			for j := i; j <= len(in); j++ {
				if got, _ := feedAll(in[:i], in[i:j], in[j:]); got != want {
					t.Fatalf("split at %d,%d of %q: got %q, want %q", i, j, in, got, want)
				}
			}
		}
	}
}

func TestSplitter_ByteAtATime(t *testing.T) {
	t.Parallel()

	in := "ACHADOS: Nódulo hepático.\n---METADATA---\n{\"erro\":null}"
	s := NewSplitter()
	var b strings.Builder
	for i := range len(in) {
		out := s.Feed(in[i : i+1])
		if !isValidUTF8(out) {
			t.Fatalf("Feed emitted a partial rune at byte %d: %q", i, out)
		}
		b.WriteString(out)
	}
	b.WriteString(s.Flush())
	if b.String() != "ACHADOS: Nódulo hepático." {
		t.Errorf("emitted = %q", b.String())
	}
}

func isValidUTF8(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}
