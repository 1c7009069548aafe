package events

import (
	"errors"
	"reflect"
	"testing"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name  string
		frame domain.Frame
		want  domain.Event
	}{
		{
			name:  "session with id",
			frame: domain.Frame{Event: "session", Data: `{"session_id":"abc"}`},
			want:  domain.SessionEvent{SessionID: "abc", HasID: true, Raw: []byte(`{"session_id":"abc"}`)},
		},
		{
			name:  "session without id",
			frame: domain.Frame{Event: "session", Data: `{"user":"u1"}`},
			want:  domain.SessionEvent{Raw: []byte(`{"user":"u1"}`)},
		},
		{
			name:  "session with null id",
			frame: domain.Frame{Event: "session", Data: `{"session_id":null}`},
			want:  domain.SessionEvent{Raw: []byte(`{"session_id":null}`)},
		},
		{
			name:  "session with empty id",
			frame: domain.Frame{Event: "session", Data: `{"session_id":""}`},
			want:  domain.SessionEvent{Raw: []byte(`{"session_id":""}`)},
		},
		{
			name:  "session with numeric id",
			frame: domain.Frame{Event: "session", Data: `{"session_id":42}`},
			want:  domain.SessionEvent{SessionID: "42", HasID: true, Raw: []byte(`{"session_id":42}`)},
		},
		{
			name:  "message delta",
			frame: domain.Frame{Event: "message", Data: `{"text":"Hel"}`},
			want:  domain.DeltaEvent{Text: "Hel"},
		},
		{
			name:  "default event decodes as message",
			frame: domain.Frame{Data: `{"text":"lo"}`},
			want:  domain.DeltaEvent{Text: "lo"},
		},
		{
			name:  "message without text is an empty delta",
			frame: domain.Frame{Event: "message", Data: `{"other":1}`},
			want:  domain.DeltaEvent{},
		},
		{
			name:  "message with non-object payload is an empty delta",
			frame: domain.Frame{Event: "message", Data: `"just a string"`},
			want:  domain.DeltaEvent{},
		},
		{
			name:  "multi-line JSON payload",
			frame: domain.Frame{Event: "message", Data: "{\"text\":\n\"x\\ny\"}"},
			want:  domain.DeltaEvent{Text: "x\ny"},
		},
		{
			name:  "done",
			frame: domain.Frame{Event: "done", Data: `{"reason":"stop"}`},
			want:  domain.DoneEvent{Raw: []byte(`{"reason":"stop"}`)},
		},
		{
			name:  "done with non-JSON payload",
			frame: domain.Frame{Event: "done", Data: `[DONE]`},
			want:  domain.DoneEvent{},
		},
		{
			name:  "error with message",
			frame: domain.Frame{Event: "error", Data: `{"message":"model overloaded","code":503}`},
			want: domain.ErrorEvent{
				Detail:  []byte(`{"message":"model overloaded","code":503}`),
				Message: "model overloaded",
			},
		},
		{
			name:  "error with nested error object",
			frame: domain.Frame{Event: "error", Data: `{"error":{"message":"boom"}}`},
			want: domain.ErrorEvent{
				Detail:  []byte(`{"error":{"message":"boom"}}`),
				Message: "boom",
			},
		},
		{
			name:  "error with plain text payload",
			frame: domain.Frame{Event: "error", Data: `upstream failed`},
			want: domain.ErrorEvent{
				Detail:  []byte(`"upstream failed"`),
				Message: "upstream failed",
			},
		},
		{
			name:  "unknown event is ignored",
			frame: domain.Frame{Event: "heartbeat", Data: `not json`},
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.frame)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		frame domain.Frame
	}{
		{name: "message not json", frame: domain.Frame{Event: "message", Data: "not-json"}},
		{name: "session not json", frame: domain.Frame{Event: "session", Data: "{"}},
		{name: "text is an object", frame: domain.Frame{Event: "message", Data: `{"text":{"a":1}}`}},
		{name: "session id is an array", frame: domain.Frame{Event: "session", Data: `{"session_id":[1]}`}},
		{name: "empty message data", frame: domain.Frame{Event: "message", Data: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.frame)
			if err == nil {
				t.Fatalf("Decode() = %#v, want error", got)
			}
			if !errors.Is(err, domain.ErrMalformedPayload) {
				t.Errorf("Decode() error = %v, want malformed_payload", err)
			}
		})
	}
}

func TestDecode_TerminalEventsIgnorePayloadValidity(t *testing.T) {
	for _, data := range []string{"not-json", "{", ""} {
		done, err := Decode(domain.Frame{Event: "done", Data: data})
		if err != nil {
			t.Fatalf("Decode(done %q) error = %v", data, err)
		}
		if _, ok := done.(domain.DoneEvent); !ok {
			t.Errorf("Decode(done %q) = %#v, want DoneEvent", data, done)
		}

		ev, err := Decode(domain.Frame{Event: "error", Data: data})
		if err != nil {
			t.Fatalf("Decode(error %q) error = %v", data, err)
		}
		if _, ok := ev.(domain.ErrorEvent); !ok {
			t.Errorf("Decode(error %q) = %#v, want ErrorEvent", data, ev)
		}
	}
}
