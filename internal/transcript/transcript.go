// Package transcript holds the ordered message log of a chat session.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

// ChangeKind identifies the mutation reported to subscribers.
type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeDelta    ChangeKind = "delta"
	ChangeClosed   ChangeKind = "closed"
)

// Change is a snapshot of the message affected by a mutation.
type Change struct {
	Kind    ChangeKind
	Message domain.Message
}

// Transcript is a chronological list of messages with at most one open
// assistant message. It is safe for concurrent use. Subscribers are invoked
// synchronously after the lock is released, on the mutating goroutine.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.Message
	index    map[string]int
	openID   string

	subMu  sync.RWMutex
	subs   map[int]func(Change)
	nextID int

	now func() time.Time
}

// New creates an empty transcript.
func New() *Transcript {
	return &Transcript{
		index: make(map[string]int),
		subs:  make(map[int]func(Change)),
		now:   time.Now,
	}
}

func newID() string {
	return "msg_" + uuid.New().String()
}

// AppendUser adds a complete user message.
func (t *Transcript) AppendUser(text string) (domain.Message, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Message{}, domain.ErrBlankInput
	}

	msg := domain.Message{
		ID:        newID(),
		Role:      domain.RoleUser,
		Text:      text,
		Complete:  true,
		Status:    domain.MessageStatusCompleted,
		CreatedAt: t.now(),
	}

	t.mu.Lock()
	t.insert(msg)
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeAppended, Message: msg})
	return msg, nil
}

// OpenAssistant appends an empty, incomplete assistant message and returns its id.
func (t *Transcript) OpenAssistant() (string, error) {
	t.mu.Lock()
	if t.openID != "" {
		t.mu.Unlock()
		return "", domain.ErrAssistantOpen
	}
	msg := domain.Message{
		ID:        newID(),
		Role:      domain.RoleAssistant,
		Status:    domain.MessageStatusStreaming,
		CreatedAt: t.now(),
	}
	t.insert(msg)
	t.openID = msg.ID
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeAppended, Message: msg})
	return msg.ID, nil
}

// AppendDelta concatenates text to the open assistant message with the given id.
// It reports false and does nothing when id is unknown or already complete.
func (t *Transcript) AppendDelta(id, text string) bool {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok || t.messages[i].Complete {
		t.mu.Unlock()
		return false
	}
	t.messages[i].Text += text
	msg := t.messages[i]
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeDelta, Message: msg})
	return true
}

// CloseAssistant marks the message complete with the given final status.
// Only the first close has an effect; later calls report false.
func (t *Transcript) CloseAssistant(id string, status domain.MessageStatus, errMsg string) bool {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok || t.messages[i].Complete {
		t.mu.Unlock()
		return false
	}
	if status == "" || status == domain.MessageStatusStreaming {
		status = domain.MessageStatusCompleted
	}
	t.messages[i].Complete = true
	t.messages[i].Status = status
	t.messages[i].Error = errMsg
	if t.openID == id {
		t.openID = ""
	}
	msg := t.messages[i]
	t.mu.Unlock()

	t.notify(Change{Kind: ChangeClosed, Message: msg})
	return true
}

// OpenID returns the id of the open assistant message, if any.
func (t *Transcript) OpenID() (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.openID, t.openID != ""
}

// Messages returns a snapshot of the transcript in order.
func (t *Transcript) Messages() []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

// Get returns a copy of the message with the given id.
func (t *Transcript) Get(id string) (domain.Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	i, ok := t.index[id]
	if !ok {
		return domain.Message{}, false
	}
	return t.messages[i], true
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Subscribe registers fn for every later mutation. The returned function
// removes the subscription.
func (t *Transcript) Subscribe(fn func(Change)) (cancel func()) {
	t.subMu.Lock()
	id := t.nextID
	t.nextID++
	t.subs[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

// insert must be called with mu held.
func (t *Transcript) insert(msg domain.Message) {
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
}

func (t *Transcript) notify(c Change) {
	t.subMu.RLock()
	fns := make([]func(Change), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
