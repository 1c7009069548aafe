package chat

import (
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/streamchat/internal/adapters/credentials"
	"github.com/tjfontaine/streamchat/internal/core/ports"
	"github.com/tjfontaine/streamchat/internal/session"
	"github.com/tjfontaine/streamchat/internal/transcript"
)

// DefaultIdleTimeout bounds the silence between two chunks of a stream.
const DefaultIdleTimeout = 120 * time.Second

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithCredentials sets the bearer token source.
func WithCredentials(src ports.CredentialSource) Option {
	return func(c *Client) error {
		c.credentials = src
		return nil
	}
}

// WithToken uses a fixed bearer token.
func WithToken(token string) Option {
	return WithCredentials(credentials.NewStatic(token))
}

// WithSession shares a session state, e.g. one loaded from a persistent store.
func WithSession(s *session.State) Option {
	return func(c *Client) error {
		if s == nil {
			return errors.New("session state is nil")
		}
		c.session = s
		return nil
	}
}

// WithTranscript shares a transcript with the host.
func WithTranscript(t *transcript.Transcript) Option {
	return func(c *Client) error {
		if t == nil {
			return errors.New("transcript is nil")
		}
		c.transcript = t
		return nil
	}
}

// WithIdleTimeout sets the read-idle timeout. Zero disables it.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("idle timeout must not be negative")
		}
		c.idleTimeout = d
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithNoticeHandler registers the host's notice channel.
func WithNoticeHandler(fn NoticeHandler) Option {
	return func(c *Client) error {
		c.notify = fn
		return nil
	}
}

// WithArchive records every finished exchange.
func WithArchive(a ports.TranscriptArchive) Option {
	return func(c *Client) error {
		c.archive = a
		return nil
	}
}

// WithTracer overrides the tracer used for exchange spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) error {
		if t != nil {
			c.tracer = t
		}
		return nil
	}
}

// WithConversationKey fixes the archive key. By default the session id is
// used once known.
func WithConversationKey(key string) Option {
	return func(c *Client) error {
		c.conversationKey = key
		return nil
	}
}
