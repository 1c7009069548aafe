// Package ports defines the interfaces the streaming chat client depends on.
package ports

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

// CredentialSource supplies the bearer token attached to every exchange.
// Implementations: static, environment, token file with hot reload.
type CredentialSource interface {
	Token(ctx context.Context) (string, error)
}

// SessionStore persists the last known session identifier between runs.
// Implementations: memory (default), SQLite.
type SessionStore interface {
	// GetSessionID returns "" when no session is known.
	GetSessionID(ctx context.Context) (string, error)
	SetSessionID(ctx context.Context, sessionID string) error
	ClearSessionID(ctx context.Context) error
}

// ExchangeRequest is everything a transport needs to open one stream.
type ExchangeRequest struct {
	RequestID string
	Message   string
	Token     string

	// SessionID is informational; the continuity header itself is in Header.
	SessionID string

	// Header holds extra per-exchange headers such as the continuity header.
	Header http.Header
}

// Transport opens the byte stream of one exchange.
// Implementations: eventsource (GET) and post (POST JSON body).
type Transport interface {
	Name() string

	// Open starts the exchange and returns the response body once the server has
	// accepted it. Closing the body releases the connection; cancelling ctx
	// aborts any pending read.
	Open(ctx context.Context, req *ExchangeRequest) (io.ReadCloser, error)
}

// ArchivedMessage is a transcript message written to an archive.
type ArchivedMessage struct {
	ConversationKey string
	RequestID       string
	Message         domain.Message
	ArchivedAt      time.Time
}

// TranscriptArchive records finished exchanges.
// Implementations: memory, SQLite.
type TranscriptArchive interface {
	AppendMessages(ctx context.Context, msgs []ArchivedMessage) error
	ListMessages(ctx context.Context, conversationKey string, limit int) ([]ArchivedMessage, error)
}
