package report

import (
	"encoding/json"
	"fmt"
)

// EventType discriminates [Event] values on the wire.
type EventType string

const (
	EventTextDelta      EventType = "text_delta"
	EventGenerationMeta EventType = "generation_meta"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Terminal reports whether no event may follow one of this type.
func (t EventType) Terminal() bool { return t == EventDone || t == EventError }

// TokenUsage is the token accounting reported with a finished report.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// NewTokenUsage computes the total as input plus output.
func NewTokenUsage(input, output int) TokenUsage {
	return TokenUsage{Input: input, Output: output, Total: input + output}
}

// Result is a finished report.
type Result struct {
	// Report is nil when the model refused to write one, usually alongside
	// a SoftError.
	Report      *string     `json:"laudo"`
	Suggestions []string    `json:"sugestoes"`
	SoftError   *string     `json:"erro"`
	Usage       *TokenUsage `json:"tokenUsage,omitempty"`
	Model       string      `json:"model,omitempty"`
}

// Meta carries selection, timing and cost details of one generation.
type Meta struct {
	Model            string   `json:"model"`
	Mask             string   `json:"mask"`
	Findings         []string `json:"findings"`
	ExamType         string   `json:"examType"`
	ToolRounds       int      `json:"toolRounds"`
	SelectionMs      int64    `json:"selectionMs"`
	FirstTokenMs     int64    `json:"firstTokenMs"`
	DurationMs       int64    `json:"durationMs"`
	EstimatedCostUSD string   `json:"estimatedCostUsd"`
}

// Event is one element of a generation stream: zero or more text deltas,
// optionally a generation_meta, then exactly one done or error.
type Event struct {
	Type EventType

	// Text is set for text_delta.
	Text string

	// Meta is set for generation_meta.
	Meta *Meta

	// Result is set for done.
	Result *Result

	// Message is the user-facing text of an error event.
	Message string
}

// TextDelta builds a text_delta event.
func TextDelta(text string) Event { return Event{Type: EventTextDelta, Text: text} }

// GenerationMeta builds a generation_meta event.
func GenerationMeta(m Meta) Event { return Event{Type: EventGenerationMeta, Meta: &m} }

// Done builds a done event.
func Done(r Result) Event { return Event{Type: EventDone, Result: &r} }

// Failure builds an error event.
func Failure(message string) Event { return Event{Type: EventError, Message: message} }

// MarshalJSON renders the wire form, e.g. {"type":"text_delta","text":"..."}.
func (e Event) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventTextDelta:
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Text string    `json:"text"`
		}{e.Type, e.Text})

	case EventGenerationMeta:
		m := Meta{}
		if e.Meta != nil {
			m = *e.Meta
		}
		if m.Findings == nil {
			m.Findings = []string{}
		}
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Meta
		}{e.Type, m})

	case EventDone:
		r := Result{}
		if e.Result != nil {
			r = *e.Result
		}
		if r.Suggestions == nil {
			r.Suggestions = []string{}
		}
		return json.Marshal(struct {
			Type EventType `json:"type"`
			Result
		}{e.Type, r})

	case EventError:
		return json.Marshal(struct {
			Type    EventType `json:"type"`
			Message string    `json:"message"`
		}{e.Type, e.Message})
	}
	return nil, fmt.Errorf("report: unknown event type %q", e.Type)
}

// UnmarshalJSON parses the wire form produced by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var head struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	out := Event{Type: head.Type}
	switch head.Type {
	case EventTextDelta:
		var v struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		out.Text = v.Text
	case EventGenerationMeta:
		out.Meta = &Meta{}
		if err := json.Unmarshal(data, out.Meta); err != nil {
			return err
		}
	case EventDone:
		out.Result = &Result{}
		if err := json.Unmarshal(data, out.Result); err != nil {
			return err
		}
	case EventError:
		var v struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		out.Message = v.Message
	default:
		return fmt.Errorf("report: unknown event type %q", head.Type)
	}
	*e = out
	return nil
}
