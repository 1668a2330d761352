package tooluse

import "github.com/eduardocaminha/reporter-sub000/pkg/provider/llm"

// Conversation is an immutable message list. Every append returns a new
// value so earlier rounds are never rewritten.
type Conversation struct {
	messages []llm.Message
}

// Start opens a conversation with the dictated text as the only user turn.
func Start(text string) Conversation {
	return Conversation{messages: []llm.Message{{Role: "user", Content: text}}}
}

// Messages returns a copy of the message list.
func (c Conversation) Messages() []llm.Message {
	out := make([]llm.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len reports the number of messages.
func (c Conversation) Len() int { return len(c.messages) }

func (c Conversation) with(msgs ...llm.Message) Conversation {
	next := make([]llm.Message, 0, len(c.messages)+len(msgs))
	next = append(next, c.messages...)
	next = append(next, msgs...)
	return Conversation{messages: next}
}

// WithToolRequest appends the assistant turn that asked for calls.
func (c Conversation) WithToolRequest(content string, calls []llm.ToolCall) Conversation {
	cp := make([]llm.ToolCall, len(calls))
	copy(cp, calls)
	return c.with(llm.Message{Role: "assistant", Content: content, ToolCalls: cp})
}

// WithToolResults appends one tool message per call, in call order.
func (c Conversation) WithToolResults(calls []llm.ToolCall, results []string) Conversation {
	msgs := make([]llm.Message, len(calls))
	for i, call := range calls {
		msgs[i] = llm.Message{Role: "tool", Content: results[i], ToolCallID: call.ID}
	}
	return c.with(msgs...)
}
