package memory

import (
	"context"
	"sync"
	"time"

	"github.com/tjfontaine/streamchat/internal/core/ports"
)

// Store is an in-memory implementation of SessionStore and TranscriptArchive.
type Store struct {
	mu        sync.RWMutex
	sessionID string
	archive   map[string][]ports.ArchivedMessage
}

var (
	_ ports.SessionStore      = (*Store)(nil)
	_ ports.TranscriptArchive = (*Store)(nil)
)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		archive: make(map[string][]ports.ArchivedMessage),
	}
}

func (s *Store) GetSessionID(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID, nil
}

func (s *Store) SetSessionID(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = sessionID
	return nil
}

func (s *Store) ClearSessionID(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	return nil
}

func (s *Store) AppendMessages(ctx context.Context, msgs []ports.ArchivedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, m := range msgs {
		if m.ArchivedAt.IsZero() {
			m.ArchivedAt = now
		}
		s.archive[m.ConversationKey] = append(s.archive[m.ConversationKey], m)
	}
	return nil
}

// ListMessages returns the most recent messages of a conversation in
// chronological order. A limit of zero returns everything.
func (s *Store) ListMessages(ctx context.Context, conversationKey string, limit int) ([]ports.ArchivedMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.archive[conversationKey]
	start := 0
	if limit > 0 && len(msgs) > limit {
		start = len(msgs) - limit
	}

	out := make([]ports.ArchivedMessage, len(msgs)-start)
	copy(out, msgs[start:])
	return out, nil
}

func (s *Store) Close() error {
	return nil
}
