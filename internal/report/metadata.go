package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/eduardocaminha/reporter-sub000/internal/prompt"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// Format tells which tier of [ParseOutput] recognised the model output.
type Format int

const (
	// FormatDelimited is prose, the delimiter, then a metadata JSON object.
	FormatDelimited Format = iota

	// FormatLegacyJSON is a single {"laudo", "sugestoes", "erro"} object.
	FormatLegacyJSON

	// FormatPlainText is anything else; the whole text is the report.
	FormatPlainText
)

func (f Format) String() string {
	switch f {
	case FormatDelimited:
		return "delimited"
	case FormatLegacyJSON:
		return "legacy_json"
	case FormatPlainText:
		return "plain_text"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// Parsed is the outcome of [ParseOutput].
type Parsed struct {
	Format Format

	// Report is nil when the model produced no report text.
	Report      *string
	Suggestions []string

	// SoftError is the business-rule failure the model reported, if any.
	SoftError *string

	// MetadataValid is false for [FormatDelimited] output whose metadata
	// block could not be decoded.
	MetadataValid bool
}

// ParseOutput interprets the full model output. It tries, in order, the
// delimited form, a legacy JSON object and plain text. It never fails: the
// worst case is the whole text as the report.
func ParseOutput(raw string) Parsed {
	if i := strings.Index(raw, prompt.MetadataDelimiter); i >= 0 {
		p := Parsed{
			Format:      FormatDelimited,
			Report:      nonEmpty(strings.TrimRightFunc(raw[:i], unicode.IsSpace)),
			Suggestions: []string{},
		}
		var meta metadata
		tail := llm.StripCodeFences(raw[i+len(prompt.MetadataDelimiter):])
		if err := json.NewDecoder(strings.NewReader(tail)).Decode(&meta); err == nil {
			p.Suggestions = meta.Sugestoes.values()
			p.SoftError = meta.Erro.value()
			p.MetadataValid = true
		}
		return p
	}

	if p, ok := parseLegacy(raw); ok {
		return p
	}

	p := Parsed{Format: FormatPlainText, Suggestions: []string{}}
	if strings.TrimSpace(raw) != "" {
		p.Report = &raw
	}
	return p
}

type metadata struct {
	Sugestoes stringList   `json:"sugestoes"`
	Erro      optionalText `json:"erro"`
}

func parseLegacy(raw string) (Parsed, bool) {
	body := []byte(llm.StripCodeFences(raw))
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		return Parsed{}, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Parsed{}, false
	}
	laudoRaw, ok := fields["laudo"]
	if !ok {
		return Parsed{}, false
	}

	var laudo optionalText
	if err := json.Unmarshal(laudoRaw, &laudo); err != nil {
		return Parsed{}, false
	}
	p := Parsed{
		Format:        FormatLegacyJSON,
		Report:        laudo.value(),
		Suggestions:   []string{},
		MetadataValid: true,
	}
	if v, ok := fields["sugestoes"]; ok {
		var s stringList
		if err := json.Unmarshal(v, &s); err == nil {
			p.Suggestions = s.values()
		}
	}
	if v, ok := fields["erro"]; ok {
		var e optionalText
		if err := json.Unmarshal(v, &e); err == nil {
			p.SoftError = e.value()
		}
	}
	return p, true
}

// stringList accepts null, a single string or an array of scalars.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		var one string
		if json.Unmarshal(data, &one) != nil {
			return err
		}
		items = []any{one}
	}

	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		switch v := it.(type) {
		case string:
			s = v
		case nil:
			continue
		default:
			s = fmt.Sprint(v)
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	*l = out
	return nil
}

func (l stringList) values() []string {
	if l == nil {
		return []string{}
	}
	return []string(l)
}

// optionalText is a JSON string or null. Blank strings count as null.
type optionalText struct {
	set  bool
	text string
}

func (o *optionalText) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*o = optionalText{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*o = optionalText{set: true, text: s}
	return nil
}

func (o optionalText) value() *string {
	if !o.set || strings.TrimSpace(o.text) == "" {
		return nil
	}
	return &o.text
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
