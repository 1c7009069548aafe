package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"

	"github.com/tjfontaine/streamchat/internal/adapters/credentials"
	chatapi "github.com/tjfontaine/streamchat/internal/api/chat"
	"github.com/tjfontaine/streamchat/internal/chat"
	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/core/ports"
	"github.com/tjfontaine/streamchat/internal/pkg/config"
	"github.com/tjfontaine/streamchat/internal/session"
	"github.com/tjfontaine/streamchat/internal/storage/memory"
	"github.com/tjfontaine/streamchat/internal/storage/sqlite"
	"github.com/tjfontaine/streamchat/internal/tokens"
	"github.com/tjfontaine/streamchat/internal/transcript"
)

// store is what the CLI needs from a storage backend.
type store interface {
	ports.SessionStore
	ports.TranscriptArchive
	Close() error
}

type tokenStats interface {
	Stats(msgs []domain.Message) tokens.Stats
}

// app holds the wired client and the resources it owns.
type app struct {
	client  *chat.Client
	store   store
	archive string
	counter tokenStats
	logger  *slog.Logger

	closers []func() error

	// out serializes writes from the exchange goroutine and the prompt.
	outMu   sync.Mutex
	out     io.Writer
	printed map[string]int
}

func newApp(ctx context.Context, cfg *config.Config, conversationKey string, logger *slog.Logger) (*app, error) {
	a := &app{
		archive: conversationKey,
		logger:  logger,
		out:     io.Discard,
		printed: make(map[string]int),
	}

	st, err := openStore(cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	creds, err := a.credentials(ctx, cfg.Auth)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []chatapi.ClientOption{
		chatapi.WithBaseURL(cfg.Server.BaseURL),
		chatapi.WithPath(cfg.Server.Path),
	}
	if cfg.Transport.UserAgent != "" {
		opts = append(opts, chatapi.WithUserAgent(cfg.Transport.UserAgent))
	}
	tr, err := chatapi.NewClient(chatapi.Kind(cfg.Transport.Kind), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	idle, err := cfg.Transport.IdleTimeoutDuration()
	if err != nil {
		a.Close()
		return nil, err
	}

	sess := session.New(st, cfg.Transport.ContinuityHeader)
	if err := sess.Load(ctx); err != nil {
		a.Close()
		return nil, err
	}

	ts := transcript.New()
	ts.Subscribe(a.onChange)

	a.client, err = chat.New(tr,
		chat.WithCredentials(creds),
		chat.WithSession(sess),
		chat.WithTranscript(ts),
		chat.WithIdleTimeout(idle),
		chat.WithArchive(st),
		chat.WithConversationKey(conversationKey),
		chat.WithLogger(logger),
		chat.WithNoticeHandler(a.onNotice),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.client.Close)

	if counter, err := tokens.NewCounter(tokens.DefaultEncoding); err == nil {
		a.counter = counter
	} else {
		logger.Warn("tokenizer unavailable, estimating token counts", slog.String("error", err.Error()))
		a.counter = tokens.NewEstimator()
	}

	logger.Debug("chat client ready",
		slog.String("transport", tr.Name()),
		slog.String("endpoint", tr.Endpoint()),
		slog.String("storage", cfg.Storage.Type))
	return a, nil
}

func openStore(c config.StorageConfig) (store, error) {
	switch c.Type {
	case "sqlite":
		st, err := sqlite.New(c.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	default:
		return memory.New(), nil
	}
}

// credentials prefers a watched token file, then a configured token, then the
// STREAMCHAT_TOKEN environment variable.
func (a *app) credentials(ctx context.Context, c config.AuthConfig) (ports.CredentialSource, error) {
	if c.TokenFile != "" {
		f, err := credentials.NewFile(c.TokenFile, a.logger)
		if err != nil {
			return nil, err
		}
		if err := f.Load(ctx); err != nil {
			return nil, err
		}
		if err := f.Watch(ctx, func() {
			a.logger.Info("bearer token reloaded", slog.String("path", c.TokenFile))
		}); err != nil {
			a.logger.Warn("token file will not be reloaded", slog.String("error", err.Error()))
		}
		a.closers = append(a.closers, f.Close)
		return f, nil
	}
	if c.Token != "" {
		return credentials.NewStatic(c.Token), nil
	}
	return credentials.NewEnv("STREAMCHAT_TOKEN"), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) setOutput(w io.Writer) {
	a.outMu.Lock()
	a.out = w
	a.outMu.Unlock()
}

func (a *app) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}

// onChange prints assistant text as it grows.
func (a *app) onChange(c transcript.Change) {
	msg := c.Message
	if msg.Role != domain.RoleAssistant {
		return
	}

	a.outMu.Lock()
	defer a.outMu.Unlock()

	switch c.Kind {
	case transcript.ChangeDelta:
		n := a.printed[msg.ID]
		if n < len(msg.Text) {
			io.WriteString(a.out, msg.Text[n:])
			a.printed[msg.ID] = len(msg.Text)
		}
	case transcript.ChangeClosed:
		delete(a.printed, msg.ID)
		switch msg.Status {
		case domain.MessageStatusCancelled:
			io.WriteString(a.out, " [stopped]\n")
		case domain.MessageStatusFailed:
			fmt.Fprintf(a.out, "\n[failed: %s]\n", msg.Error)
		default:
			io.WriteString(a.out, "\n")
		}
	}
}

func (a *app) onNotice(n chat.Notice) {
	switch n.Kind {
	case chat.NoticeMalformedPayload:
		a.logger.Warn("skipped malformed event",
			slog.String("request_id", n.RequestID),
			slog.String("error", n.Err.Error()))
	case chat.NoticeSessionUpdated:
		a.logger.Debug("session updated", slog.String("session_id", n.SessionID))
	}
}

// sendOnce sends one message; Ctrl+C stops the reply.
func (a *app) sendOnce(ctx context.Context, message string, out io.Writer) error {
	a.setOutput(out)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCh:
			a.client.Stop()
		case <-done:
		}
	}()

	_, err := a.client.Send(ctx, message)
	return err
}

func (a *app) printArchive(ctx context.Context, limit int, out io.Writer) error {
	if limit <= 0 {
		limit = -1
	}
	key := a.archive
	if key == "" {
		if id, ok := a.client.Session().Current(); ok {
			key = id
		} else {
			key = chat.DefaultConversationKey
		}
	}

	msgs, err := a.store.ListMessages(ctx, key, limit)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}
	if len(msgs) == 0 {
		fmt.Fprintf(out, "no archived messages for %q\n", key)
		return nil
	}
	for _, m := range msgs {
		writeMessage(out, m.Message)
	}
	return nil
}

func writeMessage(w io.Writer, m domain.Message) {
	fmt.Fprintf(w, "%-9s %s", m.Role+":", m.Text)
	if m.Status != "" && m.Status != domain.MessageStatusCompleted {
		fmt.Fprintf(w, " [%s]", m.Status)
	}
	if m.Error != "" {
		fmt.Fprintf(w, " (%s)", m.Error)
	}
	fmt.Fprintln(w)
}
