// Package anthropic provides an LLM provider backed by the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"
)

const (
	providerName     = "anthropic"
	defaultMaxTokens = 8192
)

// Provider implements llm.Provider using the Anthropic Messages API.
type Provider struct {
	client    sdk.Client
	model     string
	maxTokens int
}

type config struct {
	baseURL   string
	timeout   time.Duration
	maxTokens int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithMaxTokens sets the default completion budget used when a request does
// not carry one. The Messages API requires the field.
func WithMaxTokens(n int) Option {
	return func(c *config) { c.maxTokens = n }
}

// New constructs an Anthropic provider. SDK-level retries are disabled so
// that overload handling stays with the caller's retry policy.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: apiKey must not be empty")
	}
	if model == "" {
		return nil, errors.New("anthropic: model must not be empty")
	}

	cfg := &config{maxTokens: defaultMaxTokens}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client:    sdk.NewClient(reqOpts...),
		model:     model,
		maxTokens: cfg.maxTokens,
	}, nil
}

// StreamCompletion implements llm.Provider. Text deltas are forwarded as they
// arrive; the final chunk carries the stop reason, usage and model.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		return nil, wrapErr(err)
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(c llm.Chunk) bool {
			select {
			case ch <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var acc sdk.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				send(llm.Chunk{FinishReason: llm.StopReasonError, Text: err.Error(), Err: wrapErr(err)})
				return
			}
			if ev, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok && ev.Delta.Text != "" {
				if !send(llm.Chunk{Text: ev.Delta.Text}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(llm.Chunk{FinishReason: llm.StopReasonError, Text: err.Error(), Err: wrapErr(err)})
			return
		}

		usage := llm.NewUsage(int(acc.Usage.InputTokens), int(acc.Usage.OutputTokens))
		model := string(acc.Model)
		if model == "" {
			model = p.model
		}
		send(llm.Chunk{
			FinishReason: normalizeStop(string(acc.StopReason)),
			Usage:        &usage,
			Model:        model,
		})
	}()

	return ch, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, wrapErr(err)
	}
	return convertResponse(msg), nil
}

// CountTokens implements llm.Provider.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	return llm.EstimateTokens(messages), nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	caps := llm.ModelCapabilities{
		ContextWindow:       200_000,
		MaxOutputTokens:     64_000,
		SupportsToolCalling: true,
		SupportsStreaming:   true,
	}
	if strings.Contains(strings.ToLower(p.model), "opus") {
		caps.MaxOutputTokens = 32_000
	}
	return caps
}

func convertResponse(msg *sdk.Message) *llm.CompletionResponse {
	resp := &llm.CompletionResponse{
		StopReason: normalizeStop(string(msg.StopReason)),
		Model:      string(msg.Model),
		Usage:      llm.NewUsage(int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)),
	}
	var text strings.Builder
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			resp.ToolCalls = append(resp.ToolCalls, llm.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	resp.Content = text.String()
	return resp
}

func normalizeStop(reason string) string {
	switch sdk.StopReason(reason) {
	case sdk.StopReasonToolUse:
		return llm.StopReasonToolUse
	case sdk.StopReasonMaxTokens:
		return llm.StopReasonLength
	default:
		return llm.StopReasonEnd
	}
}

// wrapErr annotates SDK errors with their HTTP status.
func wrapErr(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &llm.APIError{Provider: providerName, StatusCode: apiErr.StatusCode, Err: err}
	}
	return &llm.APIError{Provider: providerName, StatusCode: llm.StatusCode(err), Err: err}
}

func (p *Provider) buildParams(req llm.CompletionRequest) (sdk.MessageNewParams, error) {
	messages, err := convertMessages(req.Messages)
	if err != nil {
		return sdk.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.maxTokens
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = sdk.Float(*req.Temperature)
	}
	for _, td := range req.Tools {
		params.Tools = append(params.Tools, sdk.ToolUnionParam{OfTool: convertTool(td)})
	}
	return params, nil
}

func convertTool(td llm.ToolDefinition) *sdk.ToolParam {
	schema := sdk.ToolInputSchemaParam{}
	if props, ok := td.Parameters["properties"]; ok {
		schema.Properties = props
	}
	switch req := td.Parameters["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	tp := &sdk.ToolParam{Name: td.Name, InputSchema: schema}
	if td.Description != "" {
		tp.Description = sdk.String(td.Description)
	}
	return tp
}

// convertMessages maps the provider-neutral history onto Anthropic turns.
// Consecutive tool results collapse into a single user turn because the API
// expects every tool_result of one assistant turn in the next user message.
func convertMessages(msgs []llm.Message) ([]sdk.MessageParam, error) {
	var (
		out         []sdk.MessageParam
		toolResults []sdk.ContentBlockParamUnion
	)
	flush := func() {
		if len(toolResults) > 0 {
			out = append(out, sdk.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, m := range msgs {
		switch m.Role {
		case "tool":
			toolResults = append(toolResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, false))
		case "user":
			flush()
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			flush()
			var blocks []sdk.ContentBlockParamUnion
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if len(input) == 0 || !json.Valid(input) {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, sdk.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, sdk.NewAssistantMessage(blocks...))
		default:
			return nil, fmt.Errorf("anthropic: unknown message role %q", m.Role)
		}
	}
	flush()
	return out, nil
}

var _ llm.Provider = (*Provider)(nil)
