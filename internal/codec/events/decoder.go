// Package events interprets stream frames as typed chat events.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

// Decode parses the frame's JSON payload according to its event name.
//
// A session or message payload that is not valid JSON yields a malformed_payload
// ChatError; the caller discards that frame and keeps reading. done and error
// are never malformed: they end the exchange whatever their data holds. done
// ignores its payload, and error keeps non-JSON text as a JSON string detail.
// Unknown event names yield (nil, nil).
func Decode(frame domain.Frame) (domain.Event, error) {
	event := frame.Event
	if event == "" {
		event = domain.DefaultEvent
	}

	raw := json.RawMessage(frame.Data)
	valid := json.Valid(raw)

	switch event {
	case domain.EventSession:
		if !valid {
			return nil, notJSON(event, frame.Data)
		}
		id, ok, err := stringField(raw, "session_id")
		if err != nil {
			return nil, domain.ErrMalformed(event, err)
		}
		return domain.SessionEvent{SessionID: id, HasID: ok && id != "", Raw: raw}, nil

	case domain.EventMessage:
		if !valid {
			return nil, notJSON(event, frame.Data)
		}
		text, _, err := stringField(raw, "text")
		if err != nil {
			return nil, domain.ErrMalformed(event, err)
		}
		return domain.DeltaEvent{Text: text}, nil

	case domain.EventDone:
		if !valid {
			raw = nil
		}
		return domain.DoneEvent{Raw: raw}, nil

	case domain.EventError:
		if !valid {
			raw, _ = json.Marshal(frame.Data)
		}
		return domain.ErrorEvent{Detail: raw, Message: errorMessage(raw)}, nil

	default:
		return nil, nil
	}
}

func notJSON(event, data string) error {
	return domain.ErrMalformed(event, fmt.Errorf("data is not JSON: %q", truncate(data, 64)))
}

// object returns the payload's fields, or nil when the payload is not a JSON object.
func object(raw json.RawMessage) map[string]json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil
	}
	return fields
}

// stringField reads a scalar field as text. Strings are unquoted, numbers and
// booleans keep their literal form, and null or a missing field reports ok=false.
// Objects and arrays are rejected.
func stringField(raw json.RawMessage, name string) (string, bool, error) {
	value, ok := object(raw)[name]
	if !ok {
		return "", false, nil
	}
	return scalar(value, name)
}

func scalar(value json.RawMessage, name string) (string, bool, error) {
	value = bytes.TrimSpace(value)
	if len(value) == 0 {
		return "", false, nil
	}
	switch value[0] {
	case 'n':
		return "", false, nil
	case '"':
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return "", false, fmt.Errorf("field %s: %w", name, err)
		}
		return s, true, nil
	case '{', '[':
		return "", false, fmt.Errorf("field %s: expected a scalar, got %s", name, truncate(string(value), 32))
	default:
		return string(value), true, nil
	}
}

// errorMessage extracts a human-readable message from an error payload.
func errorMessage(raw json.RawMessage) string {
	fields := object(raw)
	for _, key := range []string{"message", "detail", "error"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if msg, ok, err := scalar(value, key); err == nil && ok && msg != "" {
			return msg
		}
		if nested, ok, err := stringField(value, "message"); err == nil && ok && nested != "" {
			return nested
		}
	}
	if fields == nil {
		if msg, ok, err := scalar(raw, "payload"); err == nil && ok && msg != "" {
			return msg
		}
	}
	return truncate(strings.TrimSpace(string(raw)), 256)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
