package domain

import (
	"encoding/json"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus describes how an assistant message ended.
type MessageStatus string

const (
	MessageStatusStreaming MessageStatus = "streaming"
	MessageStatusCompleted MessageStatus = "completed"
	MessageStatusFailed    MessageStatus = "failed"
	MessageStatusCancelled MessageStatus = "cancelled"
)

// Message is one entry of the transcript.
// User messages are immutable; assistant messages grow by deltas until Complete.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Text      string        `json:"text"`
	Complete  bool          `json:"complete"`
	Status    MessageStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Frame is one parsed unit of the stream: an event name and its joined data lines.
type Frame struct {
	Event string
	Data  string
}

// DefaultEvent is the event name of a frame that carries no event line.
const DefaultEvent = "message"

// Protocol event names.
const (
	EventSession = "session"
	EventMessage = "message"
	EventDone    = "done"
	EventError   = "error"
)

// Event is a decoded stream event. It is one of SessionEvent, DeltaEvent,
// DoneEvent or ErrorEvent.
type Event interface {
	EventName() string
}

// SessionEvent announces the session identifier issued by the server.
// HasID is false when the payload carried no session_id.
type SessionEvent struct {
	SessionID string
	HasID     bool
	Raw       json.RawMessage
}

func (SessionEvent) EventName() string { return EventSession }

// DeltaEvent carries an incremental text fragment.
type DeltaEvent struct {
	Text string
}

func (DeltaEvent) EventName() string { return EventMessage }

// DoneEvent marks the end of an exchange.
type DoneEvent struct {
	Raw json.RawMessage
}

func (DoneEvent) EventName() string { return EventDone }

// ErrorEvent is an application error reported in-band by the server.
type ErrorEvent struct {
	Detail  json.RawMessage
	Message string
}

func (ErrorEvent) EventName() string { return EventError }

// ClientState is the phase of the streaming client's state machine.
type ClientState string

const (
	StateIdle      ClientState = "idle"
	StateSending   ClientState = "sending"
	StateStreaming ClientState = "streaming"
	StateCompleted ClientState = "completed"
	StateFailed    ClientState = "failed"
)
