package chat

import "github.com/tjfontaine/streamchat/internal/core/domain"

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeStateChanged     NoticeKind = "state_changed"
	NoticeMalformedPayload NoticeKind = "malformed_payload"
	NoticeProtocolError    NoticeKind = "protocol_error"
	NoticeTransportFailure NoticeKind = "transport_failure"
	NoticeSessionUpdated   NoticeKind = "session_updated"
)

// Notice reports something the host may want to show. Malformed payload
// notices do not end the exchange.
type Notice struct {
	Kind      NoticeKind
	RequestID string
	State     domain.ClientState
	SessionID string
	Err       error
}

// NoticeHandler receives notices synchronously on the goroutine running the
// exchange. It must not block for long and must not call Close.
type NoticeHandler func(Notice)
