// Package domain provides the canonical types shared by the chat streaming client.
package domain

import (
	"encoding/json"
	"fmt"
)

// ErrorType represents the category of a chat error.
type ErrorType string

const (
	// ErrorTypePrecondition indicates the request was rejected before any network activity.
	ErrorTypePrecondition ErrorType = "precondition"

	// ErrorTypeMalformedPayload indicates a frame whose data is not valid JSON.
	ErrorTypeMalformedPayload ErrorType = "malformed_payload"

	// ErrorTypeProtocol indicates an error event reported by the server.
	ErrorTypeProtocol ErrorType = "protocol"

	// ErrorTypeTransport indicates a connection error, non-success status or idle timeout.
	ErrorTypeTransport ErrorType = "transport"

	// ErrorTypeInvariant indicates a broken programming contract.
	ErrorTypeInvariant ErrorType = "invariant_violation"
)

// ErrorCode provides additional specificity beyond the error type.
type ErrorCode string

const (
	ErrorCodeBusy              ErrorCode = "busy"
	ErrorCodeBlankInput        ErrorCode = "blank_input"
	ErrorCodeMissingCredential ErrorCode = "missing_credential"
	ErrorCodeAssistantOpen     ErrorCode = "assistant_open"
	ErrorCodeIdleTimeout       ErrorCode = "idle_timeout"
	ErrorCodeHTTPStatus        ErrorCode = "http_status"
	ErrorCodeContentType       ErrorCode = "content_type"
	ErrorCodeClosed            ErrorCode = "closed"
)

// ChatError is the canonical error returned by every component of the client.
type ChatError struct {
	// Type is the category of error
	Type ErrorType `json:"type"`

	// Code is an optional specific error code
	Code ErrorCode `json:"code,omitempty"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// StatusCode is the HTTP status of a failed transport, if any
	StatusCode int `json:"status_code,omitempty"`

	// Detail carries the raw payload of a server error event
	Detail json.RawMessage `json:"detail,omitempty"`

	// Err is the underlying cause
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Type, msg)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a ChatError of the same type. A target without a
// code matches every code of its type.
func (e *ChatError) Is(target error) bool {
	t, ok := target.(*ChatError)
	if !ok {
		return false
	}
	if t.Type != e.Type {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewChatError creates a new chat error.
func NewChatError(errType ErrorType, message string) *ChatError {
	return &ChatError{
		Type:    errType,
		Message: message,
	}
}

// WithCode adds an error code to the error.
func (e *ChatError) WithCode(code ErrorCode) *ChatError {
	e.Code = code
	return e
}

// WithStatusCode records the HTTP status that caused the error.
func (e *ChatError) WithStatusCode(code int) *ChatError {
	e.StatusCode = code
	return e
}

// WithDetail attaches a raw server payload.
func (e *ChatError) WithDetail(detail json.RawMessage) *ChatError {
	e.Detail = detail
	return e
}

// WithCause sets the underlying cause.
func (e *ChatError) WithCause(err error) *ChatError {
	e.Err = err
	return e
}

// Sentinels for errors.Is comparisons. Matching is by type and code, so wrapped
// copies with different messages still compare equal.
var (
	ErrPrecondition     = &ChatError{Type: ErrorTypePrecondition}
	ErrMalformedPayload = &ChatError{Type: ErrorTypeMalformedPayload}
	ErrProtocol         = &ChatError{Type: ErrorTypeProtocol}
	ErrTransport        = &ChatError{Type: ErrorTypeTransport}
	ErrInvariant        = &ChatError{Type: ErrorTypeInvariant}

	ErrBusy              = &ChatError{Type: ErrorTypePrecondition, Code: ErrorCodeBusy, Message: "an exchange is already in progress"}
	ErrBlankInput        = &ChatError{Type: ErrorTypePrecondition, Code: ErrorCodeBlankInput, Message: "message text is blank"}
	ErrMissingCredential = &ChatError{Type: ErrorTypePrecondition, Code: ErrorCodeMissingCredential, Message: "bearer token missing"}
	ErrAssistantOpen     = &ChatError{Type: ErrorTypeInvariant, Code: ErrorCodeAssistantOpen, Message: "an assistant message is already open"}
	ErrIdleTimeout       = &ChatError{Type: ErrorTypeTransport, Code: ErrorCodeIdleTimeout, Message: "stream idle timeout"}
	ErrClientClosed      = &ChatError{Type: ErrorTypePrecondition, Code: ErrorCodeClosed, Message: "client is closed"}
)

// Convenience constructors for common errors

// ErrMalformed creates a malformed payload error.
func ErrMalformed(event string, err error) *ChatError {
	return NewChatError(ErrorTypeMalformedPayload, fmt.Sprintf("invalid %s payload", event)).
		WithCause(err)
}

// ErrServerEvent creates a protocol error from a server error event.
func ErrServerEvent(message string, detail json.RawMessage) *ChatError {
	return NewChatError(ErrorTypeProtocol, message).WithDetail(detail)
}

// ErrTransportFailure creates a transport error wrapping a cause.
func ErrTransportFailure(message string, err error) *ChatError {
	return NewChatError(ErrorTypeTransport, message).WithCause(err)
}

// ErrHTTPStatus creates a transport error for a non-success HTTP response.
func ErrHTTPStatus(status int, message string) *ChatError {
	return NewChatError(ErrorTypeTransport, message).
		WithCode(ErrorCodeHTTPStatus).
		WithStatusCode(status)
}
