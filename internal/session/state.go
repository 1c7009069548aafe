// Package session tracks the server-issued session identifier that lets the
// backend resume a conversation across exchanges.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/core/ports"
)

// DefaultHeader is the continuity header understood by the chat backend.
const DefaultHeader = "x-session-id"

// State holds the last known session identifier. A nil store keeps the id in
// memory only.
type State struct {
	mu     sync.RWMutex
	id     string
	info   json.RawMessage
	store  ports.SessionStore
	header string
}

// New creates a session state backed by store.
func New(store ports.SessionStore, header string) *State {
	if header == "" {
		header = DefaultHeader
	}
	return &State{
		store:  store,
		header: header,
	}
}

// Load hydrates the state from the store.
func (s *State) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	id, err := s.store.GetSessionID(ctx)
	if err != nil {
		return fmt.Errorf("load session id: %w", err)
	}

	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	return nil
}

// Current returns the held session id and whether one is known.
func (s *State) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id, s.id != ""
}

// Info returns the payload of the last session event that carried an id.
func (s *State) Info() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.info
}

// Header returns the name of the continuity header.
func (s *State) Header() string {
	return s.header
}

// Observe records the id carried by a session event. An event without an id
// leaves the known session untouched. It reports whether the held id changed.
func (s *State) Observe(ctx context.Context, ev domain.SessionEvent) (bool, error) {
	if !ev.HasID || ev.SessionID == "" {
		return false, nil
	}

	s.mu.Lock()
	changed := s.id != ev.SessionID
	s.id = ev.SessionID
	s.info = ev.Raw
	s.mu.Unlock()

	if s.store == nil || !changed {
		return changed, nil
	}
	if err := s.store.SetSessionID(ctx, ev.SessionID); err != nil {
		return changed, fmt.Errorf("persist session id: %w", err)
	}
	return changed, nil
}

// Apply sets the continuity header on h when a session is known.
func (s *State) Apply(h http.Header) {
	if id, ok := s.Current(); ok {
		h.Set(s.header, id)
	}
}

// Reset forgets the session so the next exchange starts a new conversation.
func (s *State) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.id = ""
	s.info = nil
	s.mu.Unlock()

	if s.store == nil {
		return nil
	}
	if err := s.store.ClearSessionID(ctx); err != nil {
		return fmt.Errorf("clear session id: %w", err)
	}
	return nil
}
