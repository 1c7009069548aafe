// Package streamchat provides the public API for embedding the streaming chat
// client. This is the stable API for external consumers.
package streamchat

import (
	chatapi "github.com/tjfontaine/streamchat/internal/api/chat"
	"github.com/tjfontaine/streamchat/internal/chat"
	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/session"
	"github.com/tjfontaine/streamchat/internal/transcript"
)

// Client runs one exchange at a time against a chat backend.
// See internal/chat.Client for full documentation.
type Client = chat.Client

// Option is a functional option for configuring a Client.
type Option = chat.Option

// Result describes a finished exchange.
type Result = chat.Result

// Notice is delivered to the handler installed with WithNoticeHandler.
type Notice = chat.Notice

type (
	Message       = domain.Message
	MessageStatus = domain.MessageStatus
	ClientState   = domain.ClientState
	ChatError     = domain.ChatError
)

// Transport kinds.
const (
	EventSource = chatapi.KindEventSource
	Post        = chatapi.KindPost
)

// New creates a client over a transport.
// Example:
//
//	tr, _ := streamchat.NewTransport(streamchat.Post, streamchat.WithBaseURL("http://localhost:8000"))
//	c, err := streamchat.New(tr, streamchat.WithToken(os.Getenv("CHAT_TOKEN")))
var New = chat.New

// NewTransport creates an HTTP transport of the given kind.
var NewTransport = chatapi.NewClient

// NewSession and NewTranscript build the state a client can share with a UI.
var (
	NewSession    = session.New
	NewTranscript = transcript.New
)

// Client options
var (
	WithCredentials     = chat.WithCredentials
	WithToken           = chat.WithToken
	WithSession         = chat.WithSession
	WithTranscript      = chat.WithTranscript
	WithIdleTimeout     = chat.WithIdleTimeout
	WithLogger          = chat.WithLogger
	WithNoticeHandler   = chat.WithNoticeHandler
	WithArchive         = chat.WithArchive
	WithTracer          = chat.WithTracer
	WithConversationKey = chat.WithConversationKey
)

// Transport options
var (
	WithBaseURL    = chatapi.WithBaseURL
	WithPath       = chatapi.WithPath
	WithHTTPClient = chatapi.WithHTTPClient
	WithUserAgent  = chatapi.WithUserAgent
)

// Errors reported by Send.
var (
	ErrPrecondition     = domain.ErrPrecondition
	ErrMalformedPayload = domain.ErrMalformedPayload
	ErrProtocol         = domain.ErrProtocol
	ErrTransport        = domain.ErrTransport
	ErrClientClosed     = domain.ErrClientClosed
)
