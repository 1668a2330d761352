// Package tooluse runs the tool-resolution phase: a bounded, non-streaming
// exchange in which the model may call lookup tools before the report is
// generated. The model's final prose is discarded; only what the tools
// returned survives, as research notes for the generation prompt.
package tooluse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eduardocaminha/reporter-sub000/internal/observe"
	"github.com/eduardocaminha/reporter-sub000/internal/resilience"
	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

// MaxRounds bounds the number of model calls in one resolution phase.
const MaxRounds = 5

// Executor runs tools on behalf of the model. Execute must not fail; tool
// errors are reported as text.
type Executor interface {
	Definitions() []llm.ToolDefinition
	Execute(ctx context.Context, call llm.ToolCall) string
}

// Exchange is one executed tool call.
type Exchange struct {
	Round     int
	Tool      string
	Arguments string
	Result    string
}

// Result summarizes a resolution phase.
type Result struct {
	// Rounds counts the tool batches that were executed.
	Rounds int

	// Calls counts model calls made.
	Calls int

	Exchanges []Exchange
	Usage     llm.Usage

	// Conversation is the final message state.
	Conversation Conversation
}

// Notes renders the exchanges as the research-notes prompt section. It
// returns "" when no tool was called.
func (r Result) Notes() string {
	if len(r.Exchanges) == 0 {
		return ""
	}
	var b strings.Builder
	for i, ex := range r.Exchanges {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "- %s %s\n%s", ex.Tool, ex.Arguments, strings.TrimSpace(ex.Result))
	}
	return b.String()
}

// Resolver drives the loop. A Resolver is safe for concurrent use.
type Resolver struct {
	provider  llm.Provider
	exec      Executor
	retry     *resilience.Retry
	maxRounds int
	maxTokens int
	metrics   *observe.Metrics
}

// Option configures a [Resolver].
type Option func(*Resolver)

// WithRetry sets the transient-failure policy for model calls.
func WithRetry(r *resilience.Retry) Option {
	return func(res *Resolver) { res.retry = r }
}

// WithMaxRounds overrides [MaxRounds].
func WithMaxRounds(n int) Option {
	return func(res *Resolver) {
		if n > 0 {
			res.maxRounds = n
		}
	}
}

// WithMaxTokens caps each model reply.
func WithMaxTokens(n int) Option {
	return func(res *Resolver) { res.maxTokens = n }
}

// WithMetrics records model calls into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(res *Resolver) { res.metrics = m }
}

// New returns a Resolver that asks p and runs tools through exec.
func New(p llm.Provider, exec Executor, opts ...Option) *Resolver {
	r := &Resolver{
		provider:  p,
		exec:      exec,
		retry:     resilience.DefaultRetry(),
		maxRounds: MaxRounds,
		maxTokens: 4096,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve lets the model call tools until it stops asking or the round
// budget is spent. Transient model failures are retried; any other model
// error ends the phase and is returned together with what was gathered.
func (r *Resolver) Resolve(ctx context.Context, systemPrompt, text string) (Result, error) {
	log := observe.Logger(ctx)
	res := Result{Conversation: Start(text)}
	defs := r.exec.Definitions()
	if len(defs) == 0 {
		return res, nil
	}

	for round := 1; round <= r.maxRounds; round++ {
		req := llm.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     res.Conversation.Messages(),
			Tools:        defs,
			MaxTokens:    r.maxTokens,
		}

		start := time.Now()
		resp, err := resilience.Do(ctx, r.retry, func(ctx context.Context) (*llm.CompletionResponse, error) {
			return r.provider.Complete(ctx, req)
		})
		res.Calls++
		if err != nil {
			r.metrics.RecordLLMCall(ctx, "tools", "error", time.Since(start), 0, 0)
			return res, fmt.Errorf("tooluse: round %d: %w", round, err)
		}
		if resp == nil {
			return res, nil
		}
		r.metrics.RecordLLMCall(ctx, "tools", "ok", time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		res.Usage = res.Usage.Add(resp.Usage)

		if resp.StopReason != llm.StopReasonToolUse || len(resp.ToolCalls) == 0 {
			log.Debug("tooluse: model finished", "round", round, "stop_reason", resp.StopReason)
			return res, nil
		}

		results, err := r.run(ctx, resp.ToolCalls)
		if err != nil {
			return res, err
		}
		res.Conversation = res.Conversation.
			WithToolRequest(resp.Content, resp.ToolCalls).
			WithToolResults(resp.ToolCalls, results)
		for i, call := range resp.ToolCalls {
			res.Exchanges = append(res.Exchanges, Exchange{
				Round:     round,
				Tool:      call.Name,
				Arguments: call.Arguments,
				Result:    results[i],
			})
		}
		res.Rounds++
		log.Info("tooluse: tools executed", "round", round, "calls", len(resp.ToolCalls))
	}

	log.Warn("tooluse: round budget spent", "max_rounds", r.maxRounds)
	return res, nil
}

// run executes calls concurrently and returns results in call order.
func (r *Resolver) run(ctx context.Context, calls []llm.ToolCall) ([]string, error) {
	results := make([]string, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.exec.Execute(gctx, call)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("tooluse: %w", err)
	}
	return results, nil
}
