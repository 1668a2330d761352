// Package llm defines the Provider interface for Large Language Model backends.
//
// A provider wraps a hosted or local chat-completion API (Anthropic Claude,
// OpenAI, or any backend reachable through any-llm) and exposes a uniform
// surface for the report pipeline: one-shot completions for template selection
// and tool resolution, and token streams for report generation.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Stop reasons normalised across providers.
const (
	StopReasonEnd       = "stop"
	StopReasonLength    = "length"
	StopReasonToolUse   = "tool_use"
	StopReasonError     = "error"
	StopReasonCancelled = "cancelled"
)

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "user", "assistant", or "tool".
	Role string

	// Content is the text content of the message.
	Content string

	// ToolCalls contains any tool invocations requested by the assistant.
	ToolCalls []ToolCall

	// ToolCallID is set when Role is "tool", identifying which tool call this
	// message answers.
	ToolCallID string
}

// ToolCall represents a tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned identifier of the call.
	ID string

	// Name is the tool name.
	Name string

	// Arguments is the JSON-encoded argument object.
	Arguments string
}

// ToolDefinition describes a tool that can be offered to a model.
type ToolDefinition struct {
	Name        string
	Description string

	// Parameters is the JSON Schema of the tool input. Only "object" schemas
	// are supported.
	Parameters map[string]any
}

// Usage holds token accounting information returned by the backend.
type Usage struct {
	// PromptTokens is the number of input tokens, system prompt included.
	PromptTokens int

	// CompletionTokens is the number of generated tokens.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// NewUsage builds a Usage whose total is the sum of its parts.
func NewUsage(prompt, completion int) Usage {
	return Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// CompletionRequest carries everything the model needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history.
	Messages []Message

	// Tools is the set of tool definitions offered to the model. Empty means
	// the request is sent without tool support.
	Tools []ToolDefinition

	// Temperature controls output randomness. Nil uses the provider default;
	// a pointer to zero asks for greedy sampling.
	Temperature *float64

	// MaxTokens caps the number of completion tokens. Zero uses the provider
	// default.
	MaxTokens int

	// SystemPrompt is the system-level instruction for the request. Providers
	// without a dedicated system field prepend it as a system-role message.
	SystemPrompt string
}

// Chunk is a single fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content of this chunk.
	Text string

	// FinishReason is set on the final chunk. See the StopReason constants.
	FinishReason string

	// ToolCalls contains tool invocations carried by this chunk.
	ToolCalls []ToolCall

	// Usage is set on the final chunk when the backend reports it.
	Usage *Usage

	// Model is the model identifier reported by the backend, set on the final
	// chunk when known.
	Model string

	// Err is set when FinishReason is StopReasonError. It keeps the original
	// error chain so that callers can classify it with StatusCode.
	Err error
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	// Content is the full text of the assistant reply.
	Content string

	// ToolCalls lists the tool invocations requested by the model.
	ToolCalls []ToolCall

	// StopReason tells why generation ended. See the StopReason constants.
	StopReason string

	// Model is the model identifier that served the request.
	Model string

	// Usage contains token accounting for this request.
	Usage Usage
}

// ModelCapabilities describes what a model supports.
type ModelCapabilities struct {
	ContextWindow       int
	MaxOutputTokens     int
	SupportsToolCalling bool
	SupportsStreaming   bool
}

// Provider is the abstraction over any LLM backend.
//
// Implementations must be safe for concurrent use from multiple goroutines.
// When ctx is cancelled every method must return, or close its channel, as
// quickly as possible.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel that emits
	// chunks as they arrive. The channel is closed when generation finishes or
	// ctx is cancelled. Failures after the stream opened arrive as a final
	// chunk with FinishReason StopReasonError and Err set; the error return is
	// reserved for failures that prevent the stream from starting.
	//
	// Callers must drain the channel to avoid goroutine leaks.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req to the model and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// CountTokens estimates the number of tokens the messages would consume.
	// The result need not be exact but should not undercount.
	CountTokens(messages []Message) (int, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() ModelCapabilities
}

// EstimateTokens is a rough character-based token estimate (about four
// characters per token) shared by providers without a tokenizer endpoint.
func EstimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content) / 4
		total += 4
		for _, tc := range m.ToolCalls {
			total += (len(tc.Name) + len(tc.Arguments)) / 4
		}
	}
	return total
}
