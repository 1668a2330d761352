// Package exam derives the exam context (type, subtype, contrast phase and
// anatomical regions) from free-text radiology dictation. The context only
// narrows the template catalog; it is never persisted.
package exam

import (
	"regexp"
	"strings"
)

// Contrast phases.
const (
	ContrastWith    = "com"
	ContrastWithout = "sem"
)

// SubtypePE marks a pulmonary embolism protocol.
const SubtypePE = "tep"

// Context is the heuristically classified exam context. All fields are
// optional.
type Context struct {
	Type            string
	Subtype         string
	Contrast        string
	RelevantRegions []string
}

// IsZero reports whether nothing was recognised.
func (c Context) IsZero() bool {
	return c.Type == "" && c.Subtype == "" && c.Contrast == ""
}

type typeRule struct {
	examType string
	pattern  *regexp.Regexp
}

// typeRules is evaluated in order and the first match wins. Specific
// protocols precede the generic ones they would otherwise be swallowed by.
var typeRules = []typeRule{
	{"tc-mastoide", regexp.MustCompile(`mast[oó]ide|ouvidos?|ossos? temporais?`)},
	{"tc-seios-face", regexp.MustCompile(`seios? (da )?face|seios paranasais|sinusite`)},
	{"angio-tc-cranio", regexp.MustCompile(`angio[- ]?(tc|tomografia)\s*(de |do )?(cr[aâ]nio|encef)`)},
	{"rm-cranio", regexp.MustCompile(`\b(rm|resson[aâ]ncia)\b.*\b(cr[aâ]nio|enc[eé]falo)`)},
	{"tc-cranio", regexp.MustCompile(`cr[aâ]nio|enc[eé]falo`)},
	{"angio-tc-torax", regexp.MustCompile(`angio[- ]?(tc|tomografia)\s*(de |do )?t[oó]rax`)},
	{"tc-torax", regexp.MustCompile(`t[oó]rax|pulm[aã]o|pulmonar`)},
	{"rm-coluna", regexp.MustCompile(`\b(rm|resson[aâ]ncia)\b.*\bcoluna`)},
	{"tc-coluna", regexp.MustCompile(`coluna|cervical|lombar|lombossacra|dorsal`)},
	{"us-abdome", regexp.MustCompile(`\b(us|usg|ultrassom|ultrassonografia)\b.*abd[oô]me`)},
	{"tc-abdome", regexp.MustCompile(`abd[oô]me|abdominal|pelve|p[eé]lvic`)},
	{"rm-musculoesqueletico", regexp.MustCompile(`joelho|ombro|quadril|tornozelo|punho|cotovelo|\bm[aã]os?\b|\bp[eé]s?[\s,.]`)},
}

var (
	peRule = regexp.MustCompile(`\btep\b|embolia pulmonar|tromboembolismo`)

	contrastWithRule    = regexp.MustCompile(`com (uso de |meio de )?contraste|contrastad[oa]|p[oó]s[- ]contraste|fase (arterial|portal|venosa)`)
	contrastWithoutRule = regexp.MustCompile(`sem (uso de |meio de )?contraste|n[aã]o contrastad[oa]`)
)

// regionsByType lists the anatomical regions whose finding templates are
// relevant for an exam type.
var regionsByType = map[string][]string{
	"tc-mastoide":           {"mastoide", "ouvido"},
	"tc-seios-face":         {"seios-face"},
	"angio-tc-cranio":       {"cranio", "vasos"},
	"tc-cranio":             {"cranio"},
	"rm-cranio":             {"cranio"},
	"angio-tc-torax":        {"torax", "pulmao", "vasos"},
	"tc-torax":              {"torax", "pulmao", "mediastino", "pleura"},
	"tc-coluna":             {"coluna"},
	"rm-coluna":             {"coluna"},
	"tc-abdome":             {"figado", "vesicula", "pancreas", "baco", "rins", "adrenais", "intestino", "peritonio", "vasos", "pelve"},
	"us-abdome":             {"figado", "vesicula", "pancreas", "baco", "rins"},
	"rm-musculoesqueletico": {"musculoesqueletico"},
}

// Classify extracts the exam context from dictated text. It is a pure
// function over the lowercased input.
func Classify(text string) Context {
	lower := strings.ToLower(text)

	var ctx Context
	for _, r := range typeRules {
		if r.pattern.MatchString(lower) {
			ctx.Type = r.examType
			break
		}
	}

	// The PE protocol is always an angiotomography of the chest, whatever the
	// generic rules picked.
	if peRule.MatchString(lower) {
		ctx.Subtype = SubtypePE
		if ctx.Type == "" || ctx.Type == "tc-torax" {
			ctx.Type = "angio-tc-torax"
		}
	}

	ctx.Contrast = detectContrast(lower)

	if regions, ok := regionsByType[ctx.Type]; ok {
		ctx.RelevantRegions = append([]string(nil), regions...)
	}
	return ctx
}

// detectContrast returns the phase named last in the text when both the
// positive and negated forms occur: dictation corrects itself forward.
func detectContrast(lower string) string {
	without := lastMatch(contrastWithoutRule, lower)
	with := lastMatch(contrastWithRule, contrastWithoutRule.ReplaceAllStringFunc(lower, blank))
	switch {
	case with < 0 && without < 0:
		return ""
	case without > with:
		return ContrastWithout
	default:
		return ContrastWith
	}
}

// blank keeps byte offsets stable while hiding a negated span from the
// positive rule.
func blank(s string) string { return strings.Repeat(" ", len(s)) }

func lastMatch(re *regexp.Regexp, s string) int {
	locs := re.FindAllStringIndex(s, -1)
	if len(locs) == 0 {
		return -1
	}
	return locs[len(locs)-1][0]
}
