// Package chat implements the streaming chat client: it sends one user turn,
// reads the event stream of the reply into the transcript and tracks the
// conversation's session across turns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tjfontaine/streamchat/internal/codec/events"
	"github.com/tjfontaine/streamchat/internal/codec/sse"
	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/core/ports"
	"github.com/tjfontaine/streamchat/internal/session"
	"github.com/tjfontaine/streamchat/internal/transcript"
)

const (
	tracerName = "github.com/tjfontaine/streamchat/internal/chat"

	// DefaultConversationKey is the archive key used before any session is known.
	DefaultConversationKey = "default"

	readBufferSize = 4 << 10
	archiveTimeout = 5 * time.Second
)

// Client runs at most one exchange at a time against a transport.
type Client struct {
	transport       ports.Transport
	credentials     ports.CredentialSource
	session         *session.State
	transcript      *transcript.Transcript
	idleTimeout     time.Duration
	logger          *slog.Logger
	notify          NoticeHandler
	archive         ports.TranscriptArchive
	tracer          trace.Tracer
	conversationKey string

	mu     sync.Mutex
	busy   bool
	closed bool
	state  domain.ClientState
	active *exchange
}

// Result describes a finished exchange.
type Result struct {
	RequestID string
	User      domain.Message
	Assistant domain.Message
	Outcome   domain.MessageStatus
	SessionID string
}

type outcome struct {
	status domain.MessageStatus
	err    error
}

// New creates a client for transport.
func New(transport ports.Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, errors.New("transport is required")
	}

	c := &Client{
		transport:   transport,
		idleTimeout: DefaultIdleTimeout,
		logger:      slog.Default(),
		tracer:      otel.Tracer(tracerName),
		state:       domain.StateIdle,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	if c.session == nil {
		c.session = session.New(nil, "")
	}
	if c.transcript == nil {
		c.transcript = transcript.New()
	}

	return c, nil
}

// State returns the current phase of the client.
func (c *Client) State() domain.ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) Transcript() *transcript.Transcript { return c.transcript }

func (c *Client) Session() *session.State { return c.session }

// TransportName returns the name of the configured transport.
func (c *Client) TransportName() string { return c.transport.Name() }

// Send appends text as a user turn and streams the reply, blocking until the
// exchange ends. Surrounding whitespace is trimmed from text.
//
// A closed client, a busy client, blank input and a missing credential are
// rejected with a precondition error before the transcript is touched, checked
// in that order. A server error event returns a protocol error and a broken,
// refused or idle stream returns a transport error; in both cases the assistant
// message keeps its partial text and is closed as failed. Stop ends the
// exchange as cancelled with a nil error, even while the credential is still
// being fetched.
func (c *Client) Send(ctx context.Context, text string) (*Result, error) {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return nil, domain.ErrClientClosed
	case c.busy:
		c.mu.Unlock()
		return nil, domain.ErrBusy
	case text == "":
		c.mu.Unlock()
		return nil, domain.ErrBlankInput
	}

	requestID := uuid.New().String()
	exCtx, cancel := context.WithCancelCause(ctx)
	ex := newExchange(requestID, cancel, c.idleTimeout)
	c.busy = true
	c.active = ex
	c.mu.Unlock()

	// Bodies that ignore the request context still unblock on cancellation.
	context.AfterFunc(exCtx, ex.closeBody)

	token, err := c.token(exCtx)
	if context.Cause(exCtx) != nil {
		out := c.classify(ctx, exCtx, err)
		c.abandon(ex)
		return &Result{RequestID: requestID, Outcome: out.status}, out.err
	}
	if err != nil {
		c.abandon(ex)
		return nil, err
	}

	if openID, ok := c.transcript.OpenID(); ok {
		c.logger.Warn("closing stale assistant message", slog.String("message_id", openID))
		c.transcript.CloseAssistant(openID, domain.MessageStatusCancelled, "")
	}

	user, err := c.transcript.AppendUser(text)
	if err != nil {
		c.abandon(ex)
		return nil, err
	}
	assistantID, err := c.transcript.OpenAssistant()
	if err != nil {
		c.abandon(ex)
		return nil, fmt.Errorf("open assistant message: %w", err)
	}
	ex.assistantID = assistantID
	ex.user = user

	spanCtx, span := c.tracer.Start(exCtx, "chat.exchange", trace.WithAttributes(
		attribute.String("chat.request_id", requestID),
		attribute.String("chat.transport", c.transport.Name()),
	))
	defer span.End()

	c.logger.Info("exchange started",
		slog.String("request_id", requestID),
		slog.String("transport", c.transport.Name()))
	c.setState(ex, domain.StateSending)

	out := c.run(ctx, spanCtx, ex, token)
	return c.finish(spanCtx, span, ex, out)
}

// Stop aborts the active exchange, closing its transport before returning.
// It reports whether an exchange was running.
func (c *Client) Stop() bool {
	c.mu.Lock()
	ex := c.active
	c.mu.Unlock()

	if ex == nil {
		return false
	}
	ex.abort(errStopped)
	return true
}

// Close stops the active exchange, waits for it to finish and rejects later
// sends. It must not be called from a notice handler or transcript subscriber.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	ex := c.active
	c.mu.Unlock()

	if ex == nil {
		return nil
	}
	ex.abort(errStopped)
	<-ex.done
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.credentials == nil {
		return "", domain.ErrMissingCredential
	}

	type fetched struct {
		token string
		err   error
	}
	ch := make(chan fetched, 1)
	go func() {
		token, err := c.credentials.Token(ctx)
		ch <- fetched{token: token, err: err}
	}()

	var f fetched
	select {
	case f = <-ch:
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}

	if f.err != nil {
		return "", domain.NewChatError(domain.ErrorTypePrecondition, "bearer token unavailable").
			WithCode(domain.ErrorCodeMissingCredential).
			WithCause(f.err)
	}
	if strings.TrimSpace(f.token) == "" {
		return "", domain.ErrMissingCredential
	}
	return f.token, nil
}

// abandon releases an exchange that ended before its transport was opened.
func (c *Client) abandon(ex *exchange) {
	ex.release()

	c.mu.Lock()
	if c.active == ex {
		c.active = nil
		c.busy = false
	}
	c.mu.Unlock()
	close(ex.done)
}

func (c *Client) run(ctx, exCtx context.Context, ex *exchange, token string) outcome {
	req := &ports.ExchangeRequest{
		RequestID: ex.requestID,
		Message:   ex.user.Text,
		Token:     token,
		Header:    http.Header{},
	}
	if id, ok := c.session.Current(); ok {
		req.SessionID = id
	}
	c.session.Apply(req.Header)

	// Stopped while the transcript was being prepared.
	if cause := context.Cause(exCtx); cause != nil {
		return c.classify(ctx, exCtx, cause)
	}

	ex.arm()
	body, err := c.transport.Open(exCtx, req)
	if err != nil {
		return c.classify(ctx, exCtx, err)
	}
	if !ex.attach(body) || context.Cause(exCtx) != nil {
		ex.closeBody()
		return c.classify(ctx, exCtx, context.Cause(exCtx))
	}

	ex.touch()
	c.setState(ex, domain.StateStreaming)
	return c.stream(ctx, exCtx, ex, body)
}

// stream feeds the body through the frame parser and applies every event in
// arrival order until a terminal event or the end of the body.
func (c *Client) stream(ctx, exCtx context.Context, ex *exchange, body io.Reader) outcome {
	parser := sse.NewParser()
	defer func() {
		if n := parser.Close(); n > 0 {
			c.logger.Debug("discarded unterminated frame",
				slog.String("request_id", ex.requestID),
				slog.Int("bytes", n))
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			ex.touch()
			for _, frame := range parser.Feed(buf[:n]) {
				if out, done := c.handleFrame(exCtx, ex, frame); done {
					return out
				}
			}
		}
		if err == nil {
			continue
		}
		if context.Cause(exCtx) != nil || err != io.EOF {
			return c.classify(ctx, exCtx, err)
		}
		// A clean close without done keeps the accumulated text.
		return outcome{status: domain.MessageStatusCompleted}
	}
}

func (c *Client) handleFrame(ctx context.Context, ex *exchange, frame domain.Frame) (outcome, bool) {
	ev, err := events.Decode(frame)
	if err != nil {
		c.logger.Warn("discarding malformed frame",
			slog.String("request_id", ex.requestID),
			slog.String("event", frame.Event),
			slog.String("error", err.Error()))
		c.emit(Notice{Kind: NoticeMalformedPayload, RequestID: ex.requestID, Err: err})
		return outcome{}, false
	}

	switch ev := ev.(type) {
	case domain.SessionEvent:
		changed, err := c.session.Observe(ctx, ev)
		if err != nil {
			c.logger.Warn("failed to persist session id",
				slog.String("request_id", ex.requestID),
				slog.String("error", err.Error()))
		}
		if changed {
			c.emit(Notice{Kind: NoticeSessionUpdated, RequestID: ex.requestID, SessionID: ev.SessionID})
		}

	case domain.DeltaEvent:
		if ev.Text != "" {
			c.transcript.AppendDelta(ex.assistantID, ev.Text)
		}

	case domain.DoneEvent:
		return outcome{status: domain.MessageStatusCompleted}, true

	case domain.ErrorEvent:
		return outcome{
			status: domain.MessageStatusFailed,
			err:    domain.ErrServerEvent(ev.Message, ev.Detail),
		}, true
	}

	return outcome{}, false
}

// classify maps a failure to an outcome using the exchange's cancel cause.
func (c *Client) classify(ctx, exCtx context.Context, err error) outcome {
	cause := context.Cause(exCtx)
	switch {
	case cause == nil:
		var chatErr *domain.ChatError
		if !errors.As(err, &chatErr) {
			err = domain.ErrTransportFailure("stream interrupted", err)
		}
		return outcome{status: domain.MessageStatusFailed, err: err}

	case errors.Is(cause, domain.ErrIdleTimeout):
		return outcome{
			status: domain.MessageStatusFailed,
			err: domain.NewChatError(domain.ErrorTypeTransport, fmt.Sprintf("no data received for %s", c.idleTimeout)).
				WithCode(domain.ErrorCodeIdleTimeout),
		}

	case errors.Is(cause, errStopped):
		return outcome{status: domain.MessageStatusCancelled}

	default:
		return outcome{status: domain.MessageStatusCancelled, err: ctx.Err()}
	}
}

func (c *Client) finish(ctx context.Context, span trace.Span, ex *exchange, out outcome) (*Result, error) {
	ex.release()

	errMsg := ""
	if out.err != nil {
		errMsg = displayMessage(out.err)
	}
	c.transcript.CloseAssistant(ex.assistantID, out.status, errMsg)
	assistant, _ := c.transcript.Get(ex.assistantID)
	sessionID, _ := c.session.Current()

	span.SetAttributes(
		attribute.String("chat.outcome", string(out.status)),
		attribute.Int("chat.response_chars", len(assistant.Text)),
	)
	if sessionID != "" {
		span.SetAttributes(attribute.String("chat.session_id", sessionID))
	}

	attrs := []any{
		slog.String("request_id", ex.requestID),
		slog.String("outcome", string(out.status)),
		slog.Int("response_chars", len(assistant.Text)),
	}
	switch {
	case out.err != nil && out.status == domain.MessageStatusFailed:
		span.RecordError(out.err)
		span.SetStatus(codes.Error, out.err.Error())
		c.logger.Warn("exchange failed", append(attrs, slog.String("error", out.err.Error()))...)

		kind := NoticeTransportFailure
		if errors.Is(out.err, domain.ErrProtocol) {
			kind = NoticeProtocolError
		}
		c.emit(Notice{Kind: kind, RequestID: ex.requestID, SessionID: sessionID, Err: out.err})
	default:
		c.logger.Info("exchange finished", attrs...)
	}

	c.archiveExchange(ctx, ex, assistant, sessionID)

	var terminal domain.ClientState
	switch out.status {
	case domain.MessageStatusCompleted:
		terminal = domain.StateCompleted
	case domain.MessageStatusFailed:
		terminal = domain.StateFailed
	}

	c.mu.Lock()
	owner := c.active == ex
	if owner {
		c.active = nil
		if terminal != "" {
			c.state = terminal
		}
	}
	c.mu.Unlock()

	if owner {
		if terminal != "" {
			c.emit(Notice{Kind: NoticeStateChanged, RequestID: ex.requestID, State: terminal})
		}
		c.mu.Lock()
		c.state = domain.StateIdle
		c.busy = false
		c.mu.Unlock()
		c.emit(Notice{Kind: NoticeStateChanged, RequestID: ex.requestID, State: domain.StateIdle})
	}
	close(ex.done)

	return &Result{
		RequestID: ex.requestID,
		User:      ex.user,
		Assistant: assistant,
		Outcome:   out.status,
		SessionID: sessionID,
	}, out.err
}

func (c *Client) archiveExchange(ctx context.Context, ex *exchange, assistant domain.Message, sessionID string) {
	if c.archive == nil {
		return
	}

	key := c.conversationKey
	if key == "" {
		key = sessionID
	}
	if key == "" {
		key = DefaultConversationKey
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	now := time.Now()
	msgs := []ports.ArchivedMessage{
		{ConversationKey: key, RequestID: ex.requestID, Message: ex.user, ArchivedAt: now},
		{ConversationKey: key, RequestID: ex.requestID, Message: assistant, ArchivedAt: now},
	}
	if err := c.archive.AppendMessages(ctx, msgs); err != nil {
		c.logger.Warn("failed to archive exchange",
			slog.String("request_id", ex.requestID),
			slog.String("error", err.Error()))
	}
}

func (c *Client) setState(ex *exchange, state domain.ClientState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.emit(Notice{Kind: NoticeStateChanged, RequestID: ex.requestID, State: state})
}

func (c *Client) emit(n Notice) {
	if c.notify != nil {
		c.notify(n)
	}
}

func displayMessage(err error) string {
	var chatErr *domain.ChatError
	if errors.As(err, &chatErr) && chatErr.Message != "" {
		return chatErr.Message
	}
	return err.Error()
}
