// Package selector asks a language model to pick the mask and findings that
// fit a dictation out of a summarized template catalog.
//
// Selection never fails a request: malformed output, an unknown mask or a
// model error all degrade to the first mask of the catalog and no findings.
package selector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/eduardocaminha/reporter-sub000/internal/catalog"
	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

const (
	defaultMaxTokens     = 512
	defaultTemperature   = 0.0
	defaultMinSimilarity = 0.9
)

const systemPrompt = `Você é um assistente que seleciona templates de laudos radiológicos.

Tarefa: a partir do texto ditado pelo radiologista e do catálogo abaixo, escolha
exatamente UMA máscara e zero ou mais achados que serão usados para redigir o laudo.

Regras:
- Use SOMENTE nomes de arquivo presentes no catálogo.
- Escolha a máscara pelo tipo de exame, uso de contraste e subtipo descritos no ditado.
- Inclua um achado apenas se ele corresponder a algo efetivamente ditado.
- Responda APENAS com JSON válido, sem texto adicional, no formato:
{"mascara": "<arquivo da máscara>", "achados": ["<arquivo do achado>", ...]}

Catálogo:
`

// Selection is the outcome of template selection. Mask always names a mask of
// the catalog the selection was made from, unless that catalog was empty.
type Selection struct {
	Mask     string   `json:"mascara"`
	Findings []string `json:"achados"`

	// Fallback is true when the model answer was not usable.
	Fallback bool `json:"-"`

	// Usage is the token accounting of the selection call.
	Usage llm.Usage `json:"-"`
}

// Selector picks templates with one non-streaming model call.
type Selector struct {
	provider      llm.Provider
	maxTokens     int
	temperature   float64
	minSimilarity float64
}

// Option configures a Selector.
type Option func(*Selector)

// WithMaxTokens caps the selection reply.
func WithMaxTokens(n int) Option { return func(s *Selector) { s.maxTokens = n } }

// WithMinSimilarity sets the Jaro-Winkler threshold above which a file name
// that is not in the catalog is snapped to its closest catalog entry.
func WithMinSimilarity(v float64) Option { return func(s *Selector) { s.minSimilarity = v } }

// New returns a Selector. The provider is expected to carry the retry policy.
func New(p llm.Provider, opts ...Option) *Selector {
	s := &Selector{
		provider:      p,
		maxTokens:     defaultMaxTokens,
		temperature:   defaultTemperature,
		minSimilarity: defaultMinSimilarity,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Select chooses one mask and any number of findings for text from sum.
func (s *Selector) Select(ctx context.Context, text string, sum catalog.Summary) Selection {
	log := observe.Logger(ctx)
	if len(sum.Masks) == 0 {
		log.Warn("selector: empty catalog summary")
		return Selection{Fallback: true}
	}

	catalogJSON, err := json.Marshal(sum)
	if err != nil {
		log.Warn("selector: encode catalog", "err", err)
		return fallback(sum)
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt + string(catalogJSON),
		Messages:     []llm.Message{{Role: "user", Content: text}},
		Temperature:  new(s.temperature),
		MaxTokens:    s.maxTokens,
	})
	if err != nil {
		log.Warn("selector: model call failed, using fallback", "err", err)
		return fallback(sum)
	}

	sel, err := s.parse(resp.Content, sum)
	if err != nil {
		log.Warn("selector: unusable answer, using fallback", "err", err)
		out := fallback(sum)
		out.Usage = resp.Usage
		return out
	}
	sel.Usage = resp.Usage
	log.Debug("selector: templates chosen", "mask", sel.Mask, "findings", sel.Findings)
	return sel
}

func fallback(sum catalog.Summary) Selection {
	return Selection{Mask: sum.Masks[0].File, Findings: []string{}, Fallback: true}
}

var errNoMask = errors.New("no usable mask in answer")

// parse decodes the model answer and resolves every file name against the
// catalog. Unknown findings are dropped; an unknown mask is an error.
func (s *Selector) parse(content string, sum catalog.Summary) (Selection, error) {
	var raw struct {
		Mask     string   `json:"mascara"`
		Findings []string `json:"achados"`
	}
	if err := json.Unmarshal([]byte(llm.StripCodeFences(content)), &raw); err != nil {
		return Selection{}, fmt.Errorf("decode: %w", err)
	}

	maskFiles := make([]string, len(sum.Masks))
	for i, m := range sum.Masks {
		maskFiles[i] = m.File
	}
	findingFiles := make([]string, len(sum.Findings))
	for i, f := range sum.Findings {
		findingFiles[i] = f.File
	}

	mask, ok := s.resolve(raw.Mask, maskFiles)
	if !ok {
		return Selection{}, fmt.Errorf("%w: %q", errNoMask, raw.Mask)
	}

	sel := Selection{Mask: mask, Findings: []string{}}
	seen := map[string]bool{}
	for _, name := range raw.Findings {
		file, ok := s.resolve(name, findingFiles)
		if !ok || seen[file] {
			continue
		}
		seen[file] = true
		sel.Findings = append(sel.Findings, file)
	}
	return sel, nil
}

// resolve maps name onto a known file: exact match first, then the same name
// without its extension, then the most similar name above the threshold.
func (s *Selector) resolve(name string, known []string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	for _, k := range known {
		if k == name || strings.TrimSuffix(k, ".md") == name {
			return k, true
		}
	}

	best, bestScore := "", 0.0
	for _, k := range known {
		score := matchr.JaroWinkler(strings.ToLower(name), strings.ToLower(k), false)
		if score > bestScore {
			best, bestScore = k, score
		}
	}
	if bestScore >= s.minSimilarity {
		slog.Debug("selector: snapped file name", "from", name, "to", best, "score", bestScore)
		return best, true
	}
	return "", false
}
