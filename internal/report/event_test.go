package report

import (
	"encoding/json"
	"testing"
)

func TestEvent_MarshalJSON(t *testing.T) {
	t.Parallel()

	usage := NewTokenUsage(1200, 300)
	tests := []struct {
		name  string
		event Event
		want  string
	}{
		{
			name:  "text delta",
			event: TextDelta("TOMOGRAFIA"),
			want:  `{"type":"text_delta","text":"TOMOGRAFIA"}`,
		},
		{
			name:  "done with empty metadata",
			event: Done(Result{Report: strp("LAUDO")}),
			want:  `{"type":"done","laudo":"LAUDO","sugestoes":[],"erro":null}`,
		},
		{
			name: "done with usage and soft error",
			event: Done(Result{
				SoftError:   strp("Informe a medida."),
				Suggestions: []string{"a"},
				Usage:       &usage,
				Model:       "claude-sonnet-4-5",
			}),
			want: `{"type":"done","laudo":null,"sugestoes":["a"],"erro":"Informe a medida.","tokenUsage":{"input":1200,"output":300,"total":1500},"model":"claude-sonnet-4-5"}`,
		},
		{
			name: "generation meta",
			event: GenerationMeta(Meta{
				Model:            "m",
				Mask:             "tc-abdome-com-contraste.md",
				ExamType:         "tc-abdome",
				ToolRounds:       1,
				SelectionMs:      12,
				FirstTokenMs:     340,
				DurationMs:       2100,
				EstimatedCostUSD: "0.008100",
			}),
			want: `{"type":"generation_meta","model":"m","mask":"tc-abdome-com-contraste.md","findings":[],"examType":"tc-abdome","toolRounds":1,"selectionMs":12,"firstTokenMs":340,"durationMs":2100,"estimatedCostUsd":"0.008100"}`,
		},
		{
			name:  "error",
			event: Failure(MessageGeneric),
			want:  `{"type":"error","message":"` + MessageGeneric + `"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := json.Marshal(tt.event)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("got  %s\nwant %s", got, tt.want)
			}

			var back Event
			if err := json.Unmarshal(got, &back); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if back.Type != tt.event.Type {
				t.Errorf("round trip type = %q, want %q", back.Type, tt.event.Type)
			}
		})
	}
}

func TestEvent_UnknownType(t *testing.T) {
	t.Parallel()

	if _, err := json.Marshal(Event{Type: "bogus"}); err == nil {
		t.Error("Marshal of unknown type succeeded")
	}
	var e Event
	if err := json.Unmarshal([]byte(`{"type":"bogus"}`), &e); err == nil {
		t.Error("Unmarshal of unknown type succeeded")
	}
}

func TestEventType_Terminal(t *testing.T) {
	t.Parallel()
	for typ, want := range map[EventType]bool{
		EventTextDelta:      false,
		EventGenerationMeta: false,
		EventDone:           true,
		EventError:          true,
	} {
		if got := typ.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", typ, got, want)
		}
	}
}
