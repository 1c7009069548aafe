package transcript

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

func TestTranscript_AppendUser(t *testing.T) {
	tr := New()

	for _, blank := range []string{"", "   ", "\n\t"} {
		if _, err := tr.AppendUser(blank); !errors.Is(err, domain.ErrBlankInput) {
			t.Errorf("AppendUser(%q) error = %v, want blank_input", blank, err)
		}
	}
	if tr.Len() != 0 {
		t.Fatalf("Len() = %d after blank input, want 0", tr.Len())
	}

	msg, err := tr.AppendUser("hello")
	if err != nil {
		t.Fatalf("AppendUser() error = %v", err)
	}
	if msg.Role != domain.RoleUser || !msg.Complete || msg.Text != "hello" {
		t.Errorf("AppendUser() = %+v", msg)
	}
	if !strings.HasPrefix(msg.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", msg.ID)
	}
}

func TestTranscript_SingleOpenAssistant(t *testing.T) {
	tr := New()

	id, err := tr.OpenAssistant()
	if err != nil {
		t.Fatalf("OpenAssistant() error = %v", err)
	}

	if _, err := tr.OpenAssistant(); !errors.Is(err, domain.ErrAssistantOpen) {
		t.Fatalf("second OpenAssistant() error = %v, want assistant_open", err)
	}
	if !errors.Is(domain.ErrAssistantOpen, domain.ErrInvariant) {
		t.Error("ErrAssistantOpen is not an invariant violation")
	}

	if !tr.CloseAssistant(id, domain.MessageStatusCompleted, "") {
		t.Fatal("CloseAssistant() = false, want true")
	}
	if _, ok := tr.OpenID(); ok {
		t.Error("OpenID() still reports an open message")
	}
	if _, err := tr.OpenAssistant(); err != nil {
		t.Errorf("OpenAssistant() after close error = %v", err)
	}
}

func TestTranscript_Deltas(t *testing.T) {
	tr := New()
	if _, err := tr.AppendUser("hi"); err != nil {
		t.Fatalf("AppendUser() error = %v", err)
	}
	id, _ := tr.OpenAssistant()

	for _, d := range []string{"Hel", "lo", " wor", "ld"} {
		if !tr.AppendDelta(id, d) {
			t.Fatalf("AppendDelta(%q) = false", d)
		}
	}
	if tr.AppendDelta("msg_unknown", "x") {
		t.Error("AppendDelta() on unknown id = true")
	}

	tr.CloseAssistant(id, domain.MessageStatusCompleted, "")
	if tr.AppendDelta(id, "late") {
		t.Error("AppendDelta() after close = true")
	}

	got, ok := tr.Get(id)
	if !ok {
		t.Fatal("Get() did not find assistant message")
	}
	if got.Text != "Hello world" {
		t.Errorf("Text = %q, want %q", got.Text, "Hello world")
	}

	msgs := tr.Messages()
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Errorf("Messages() = %+v, want user then assistant", msgs)
	}
}

func TestTranscript_CloseIsIdempotent(t *testing.T) {
	tr := New()
	id, _ := tr.OpenAssistant()
	tr.AppendDelta(id, "partial")

	if !tr.CloseAssistant(id, domain.MessageStatusFailed, "connection reset") {
		t.Fatal("first CloseAssistant() = false")
	}
	if tr.CloseAssistant(id, domain.MessageStatusCompleted, "") {
		t.Error("second CloseAssistant() = true")
	}

	got, _ := tr.Get(id)
	if got.Status != domain.MessageStatusFailed || got.Error != "connection reset" {
		t.Errorf("message = %+v, want first close to win", got)
	}
	if got.Text != "partial" {
		t.Errorf("Text = %q, want partial text preserved", got.Text)
	}
}

func TestTranscript_SnapshotsAreCopies(t *testing.T) {
	tr := New()
	id, _ := tr.OpenAssistant()
	tr.AppendDelta(id, "a")

	snap := tr.Messages()
	snap[0].Text = "mutated"

	got, _ := tr.Get(id)
	if got.Text != "a" {
		t.Errorf("Text = %q, snapshot mutation leaked", got.Text)
	}
}

func TestTranscript_Subscribe(t *testing.T) {
	tr := New()

	var (
		mu    sync.Mutex
		kinds []ChangeKind
	)
	cancel := tr.Subscribe(func(c Change) {
		mu.Lock()
		kinds = append(kinds, c.Kind)
		mu.Unlock()
	})

	tr.AppendUser("hi")
	id, _ := tr.OpenAssistant()
	tr.AppendDelta(id, "x")
	tr.CloseAssistant(id, domain.MessageStatusCompleted, "")
	tr.CloseAssistant(id, domain.MessageStatusCompleted, "")

	cancel()
	tr.AppendUser("after cancel")

	want := []ChangeKind{ChangeAppended, ChangeAppended, ChangeDelta, ChangeClosed}
	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != len(want) {
		t.Fatalf("changes = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("change[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}
