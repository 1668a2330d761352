// Package report turns dictated radiology findings into a streamed report.
//
// A [Generator] runs the whole pipeline for one request: it classifies the
// exam, narrows the template catalog, lets the selector pick a mask and
// findings, assembles the system prompt, optionally lets the model consult
// lookup tools, and finally streams the model output. The stream is exposed
// as an [iter.Seq] of [Event] values: text deltas while the report body is
// written, then a generation_meta and a done event, or a single error event.
package report

import (
	"context"
	"errors"
	"iter"
	"strings"
	"sync/atomic"
	"time"

	"github.com/eduardocaminha/reporter-sub000/internal/catalog"
	"github.com/eduardocaminha/reporter-sub000/internal/exam"
	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/internal/prompt"
	"github.com/eduardocaminha/reporter-sub000/internal/selector"
	"github.com/eduardocaminha/reporter-sub000/internal/tooluse"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// Request is one generation request.
type Request struct {
	Text        string `json:"texto"`
	PSMode      bool   `json:"modoPS"`
	Comparative bool   `json:"modoComparativo"`
	Search      bool   `json:"usarPesquisa"`
}

// Selector picks the templates for a dictation.
type Selector interface {
	Select(ctx context.Context, text string, sum catalog.Summary) selector.Selection
}

// Resolver runs the tool-resolution phase.
type Resolver interface {
	Resolve(ctx context.Context, systemPrompt, text string) (tooluse.Result, error)
}

const (
	defaultMaxTokens   = 8192
	defaultTemperature = 0.2
)

// Generator runs the report pipeline. It is safe for concurrent use; every
// call to Generate owns its own state.
type Generator struct {
	provider    llm.Provider
	templates   *catalog.Cache
	selector    Selector
	resolver    Resolver
	optimize    bool
	model       string
	maxTokens   int
	temperature float64
	pricing     Pricing
	metrics     *observe.Metrics
}

// Option configures a [Generator].
type Option func(*Generator)

// WithSelector enables template selection.
func WithSelector(s Selector) Option { return func(g *Generator) { g.selector = s } }

// WithResolver enables the tool-resolution phase for search requests.
func WithResolver(r Resolver) Option { return func(g *Generator) { g.resolver = r } }

// WithOptimize toggles template optimization. When off, the selector is
// skipped and the whole catalog goes into the prompt.
func WithOptimize(on bool) Option { return func(g *Generator) { g.optimize = on } }

// WithModel sets the model name reported when the provider does not send one.
func WithModel(name string) Option { return func(g *Generator) { g.model = name } }

// WithMaxTokens caps the report length.
func WithMaxTokens(n int) Option { return func(g *Generator) { g.maxTokens = n } }

// WithTemperature sets the sampling temperature of the report call.
func WithTemperature(t float64) Option { return func(g *Generator) { g.temperature = t } }

// WithPricing sets the prices used for the cost estimate.
func WithPricing(p Pricing) Option { return func(g *Generator) { g.pricing = p } }

// WithMetrics records pipeline metrics into m.
func WithMetrics(m *observe.Metrics) Option { return func(g *Generator) { g.metrics = m } }

// New returns a Generator that streams reports from p using templates from
// cache. A nil p makes every Generate call fail with [ErrNoCredentials].
func New(p llm.Provider, templates *catalog.Cache, opts ...Option) *Generator {
	g := &Generator{
		provider:    p,
		templates:   templates,
		optimize:    true,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate validates req and returns the event stream for it. Only
// validation failures are returned as errors; everything that goes wrong
// later becomes an error event.
//
// The sequence runs the pipeline when iterated and can be iterated once; a
// second iteration yields nothing. Stopping early or cancelling ctx tears
// down the model stream.
func (g *Generator) Generate(ctx context.Context, req Request) (iter.Seq[Event], error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if g.provider == nil {
		return nil, ErrNoCredentials
	}

	var used atomic.Bool
	return func(yield func(Event) bool) {
		if used.Swap(true) {
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		g.run(ctx, req, yield)
	}, nil
}

// run executes the pipeline, stopping as soon as yield returns false.
func (g *Generator) run(ctx context.Context, req Request, yield func(Event) bool) {
	start := time.Now()
	ctx, span := observe.StartSpan(ctx, "report.generate")
	defer span.End()
	log := observe.Logger(ctx)

	fail := func(stage string, err error) {
		if errors.Is(ctx.Err(), context.Canceled) {
			log.Info("report: generation abandoned", "stage", stage)
			g.metrics.RecordGeneration(ctx, "cancelled")
			return
		}
		log.Error("report: generation failed", "stage", stage, "kind", errorKind(err), "err", err)
		span.RecordError(err)
		g.metrics.RecordGeneration(ctx, "error")
		yield(Failure(UserMessage(err)))
	}

	ec := exam.Classify(req.Text)
	log.Debug("report: exam classified", "type", ec.Type, "subtype", ec.Subtype, "contrast", ec.Contrast)

	cat := &catalog.Catalog{}
	if g.templates != nil {
		var err error
		if cat, err = g.templates.Get(ctx); err != nil {
			fail("templates", err)
			return
		}
	}

	meta := Meta{ExamType: ec.Type, Findings: []string{}}
	var spent llm.Usage

	chosen := cat
	if g.optimize && g.selector != nil {
		selStart := time.Now()
		filtered := cat.Filter(ec)
		sel := g.selector.Select(ctx, req.Text, filtered.Summary())
		if ctx.Err() != nil {
			fail("select", ctx.Err())
			return
		}
		meta.SelectionMs = time.Since(selStart).Milliseconds()
		status := "ok"
		if sel.Fallback {
			status = "fallback"
		}
		g.metrics.RecordLLMCall(ctx, "select", status, time.Since(selStart), sel.Usage.PromptTokens, sel.Usage.CompletionTokens)
		spent = spent.Add(sel.Usage)

		chosen = filtered.Pick(sel.Mask, sel.Findings)
		meta.Mask = sel.Mask
		if sel.Findings != nil {
			meta.Findings = sel.Findings
		}
	}

	opts := prompt.Options{
		PSMode:      req.PSMode,
		Comparative: req.Comparative,
		Search:      req.Search,
		Templates:   chosen,
	}
	if req.Search && g.resolver == nil {
		log.Warn("report: search requested but no lookup tools are configured")
		opts.Search = false
	}
	if opts.Search {
		res, err := g.resolver.Resolve(ctx, prompt.Assemble(opts), req.Text)
		meta.ToolRounds = res.Calls
		spent = spent.Add(res.Usage)
		if err != nil {
			fail("tools", err)
			return
		}
		opts.Research = res.Notes()
	}
	system := prompt.Assemble(opts)

	streamStart := time.Now()
	ch, err := g.provider.StreamCompletion(ctx, llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: "user", Content: req.Text}},
		Temperature:  new(g.temperature),
		MaxTokens:    g.maxTokens,
	})
	if err != nil {
		fail("stream", err)
		return
	}

	split := NewSplitter()
	model := g.model
	var usage *llm.Usage
	firstToken := time.Duration(-1)
	for chunk := range ch {
		if chunk.Err != nil || chunk.FinishReason == llm.StopReasonError {
			err := chunk.Err
			if err == nil {
				err = errors.New("model stream failed")
			}
			g.metrics.RecordLLMCall(ctx, "generate", "error", time.Since(streamStart), 0, 0)
			fail("stream", err)
			return
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		if chunk.Text == "" {
			continue
		}
		if firstToken < 0 {
			firstToken = time.Since(start)
			g.metrics.RecordFirstToken(ctx, firstToken)
		}
		if delta := split.Feed(chunk.Text); delta != "" {
			if !yield(TextDelta(delta)) {
				return
			}
		}
	}
	if err := ctx.Err(); err != nil {
		fail("stream", err)
		return
	}
	if tail := split.Flush(); tail != "" {
		if !yield(TextDelta(tail)) {
			return
		}
	}

	parsed := ParseOutput(split.Raw())
	if parsed.Format == FormatDelimited && !parsed.MetadataValid {
		log.Warn("report: metadata block could not be decoded")
	}

	result := Result{
		Report:      parsed.Report,
		Suggestions: parsed.Suggestions,
		SoftError:   parsed.SoftError,
		Model:       model,
	}
	var in, out int
	if usage != nil {
		in, out = usage.PromptTokens, usage.CompletionTokens
		tu := NewTokenUsage(in, out)
		result.Usage = &tu
		spent = spent.Add(llm.NewUsage(in, out))
	}
	g.metrics.RecordLLMCall(ctx, "generate", "ok", time.Since(streamStart), in, out)

	meta.Model = model
	if firstToken > 0 {
		meta.FirstTokenMs = firstToken.Milliseconds()
	}
	meta.DurationMs = time.Since(start).Milliseconds()
	meta.EstimatedCostUSD = FormatCost(g.pricing.Cost(NewTokenUsage(spent.PromptTokens, spent.CompletionTokens)))

	log.Info("report: generation finished",
		"model", model,
		"format", parsed.Format.String(),
		"mask", meta.Mask,
		"tool_rounds", meta.ToolRounds,
		"duration", time.Since(start),
	)
	if !yield(GenerationMeta(meta)) {
		return
	}
	g.metrics.RecordGeneration(ctx, "done")
	yield(Done(result))
}
