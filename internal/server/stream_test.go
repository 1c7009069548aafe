package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	chatapi "github.com/tjfontaine/streamchat/internal/api/chat"
	"github.com/tjfontaine/streamchat/internal/chat"
	"github.com/tjfontaine/streamchat/internal/codec/events"
	"github.com/tjfontaine/streamchat/internal/codec/sse"
	"github.com/tjfontaine/streamchat/internal/core/domain"
)

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	srv := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Router)
	t.Cleanup(ts.Close)
	return ts
}

// decodeStream parses a full response body into events.
func decodeStream(t *testing.T, body []byte) []domain.Event {
	t.Helper()
	var out []domain.Event
	for _, f := range sse.NewParser().Feed(body) {
		ev, err := events.Decode(f)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		if ev != nil {
			out = append(out, ev)
		}
	}
	return out
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	return resp, body
}

func TestReplyWords(t *testing.T) {
	words := replyWords("hello   there")
	want := []string{"You", " said:", " hello", " there"}
	if strings.Join(words, "|") != strings.Join(want, "|") {
		t.Errorf("replyWords() = %q, want %q", words, want)
	}
}

func TestChatHandler_Stream(t *testing.T) {
	ts := newTestServer(t, Config{})

	post, _ := http.NewRequest(http.MethodPost, ts.URL+DefaultPath, strings.NewReader(`{"message":"hi there"}`))
	get, _ := http.NewRequest(http.MethodGet, ts.URL+DefaultPath+"?message="+url.QueryEscape("hi there"), nil)

	for name, req := range map[string]*http.Request{"post": post, "get": get} {
		t.Run(name, func(t *testing.T) {
			resp, body := do(t, req)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
				t.Errorf("Content-Type = %q", ct)
			}

			evs := decodeStream(t, body)
			if len(evs) < 3 {
				t.Fatalf("events = %d, want at least 3", len(evs))
			}
			sess, ok := evs[0].(domain.SessionEvent)
			if !ok || !strings.HasPrefix(sess.SessionID, "sess_") {
				t.Errorf("first event = %#v, want session", evs[0])
			}
			if _, ok := evs[len(evs)-1].(domain.DoneEvent); !ok {
				t.Errorf("last event = %#v, want done", evs[len(evs)-1])
			}

			var text strings.Builder
			for _, ev := range evs {
				if d, ok := ev.(domain.DeltaEvent); ok {
					text.WriteString(d.Text)
				}
			}
			if text.String() != "You said: hi there" {
				t.Errorf("reply = %q", text.String())
			}
		})
	}
}

func TestChatHandler_SessionContinuity(t *testing.T) {
	ts := newTestServer(t, Config{})

	sessionOf := func(header string) (string, int) {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+DefaultPath+"?message=x", nil)
		if header != "" {
			req.Header.Set(SessionHeader, header)
		}
		_, body := do(t, req)
		sess := decodeStream(t, body)[0].(domain.SessionEvent)

		var payload sessionPayload
		if err := json.Unmarshal(sess.Raw, &payload); err != nil {
			t.Fatalf("session payload error = %v", err)
		}
		return sess.SessionID, payload.Turn
	}

	first, turn := sessionOf("")
	if turn != 1 {
		t.Errorf("first turn = %d, want 1", turn)
	}
	again, turn := sessionOf(first)
	if again != first || turn != 2 {
		t.Errorf("continued = %q turn %d, want %q turn 2", again, turn, first)
	}
	fresh, _ := sessionOf("sess_unknown")
	if fresh == "sess_unknown" || fresh == first {
		t.Errorf("unknown session id was reused: %q", fresh)
	}
}

func TestChatHandler_FailOn(t *testing.T) {
	ts := newTestServer(t, Config{FailOn: "boom"})

	req, _ := http.NewRequest(http.MethodPost, ts.URL+DefaultPath, strings.NewReader(`{"message":"please BOOM now"}`))
	_, body := do(t, req)

	evs := decodeStream(t, body)
	last, ok := evs[len(evs)-1].(domain.ErrorEvent)
	if !ok {
		t.Fatalf("last event = %#v, want error", evs[len(evs)-1])
	}
	if last.Message != "simulated failure" {
		t.Errorf("error message = %q", last.Message)
	}
}

func TestChatHandler_BadRequests(t *testing.T) {
	ts := newTestServer(t, Config{Token: "secret"})

	tests := []struct {
		name       string
		method     string
		target     string
		body       string
		token      string
		wantStatus int
	}{
		{name: "missing token", method: http.MethodGet, target: "?message=hi", wantStatus: http.StatusUnauthorized},
		{name: "blank message", method: http.MethodGet, target: "?message=%20", token: "secret", wantStatus: http.StatusUnprocessableEntity},
		{name: "invalid json", method: http.MethodPost, body: "{", token: "secret", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, ts.URL+DefaultPath+tt.target, strings.NewReader(tt.body))
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			resp, body := do(t, req)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if !bytes.Contains(body, []byte(`"detail"`)) {
				t.Errorf("body = %s, want detail", body)
			}
		})
	}
}

func TestServer_Healthz(t *testing.T) {
	ts := newTestServer(t, Config{Token: "secret"})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/healthz", nil)
	resp, _ := do(t, req)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

// TestServer_WithChatClient drives the streaming client against the server
// over both transports.
func TestServer_WithChatClient(t *testing.T) {
	ts := newTestServer(t, Config{Token: "secret", FailOn: "explode"})

	for _, kind := range []chatapi.Kind{chatapi.KindPost, chatapi.KindEventSource} {
		t.Run(string(kind), func(t *testing.T) {
			tr, err := chatapi.NewClient(kind, chatapi.WithBaseURL(ts.URL), chatapi.WithHTTPClient(ts.Client()))
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			c, err := chat.New(tr, chat.WithToken("secret"))
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer c.Close()

			ctx := context.Background()
			first, err := c.Send(ctx, "hello world")
			if err != nil {
				t.Fatalf("Send() error = %v", err)
			}
			if first.Assistant.Text != "You said: hello world" {
				t.Errorf("Assistant.Text = %q", first.Assistant.Text)
			}
			if first.Outcome != domain.MessageStatusCompleted {
				t.Errorf("Outcome = %q", first.Outcome)
			}

			second, err := c.Send(ctx, "again")
			if err != nil {
				t.Fatalf("second Send() error = %v", err)
			}
			if second.SessionID != first.SessionID {
				t.Errorf("SessionID = %q, want %q", second.SessionID, first.SessionID)
			}

			failed, err := c.Send(ctx, "explode please")
			if !errors.Is(err, domain.ErrProtocol) {
				t.Fatalf("Send() error = %v, want protocol error", err)
			}
			if failed.Outcome != domain.MessageStatusFailed || failed.Assistant.Text != "You said:" {
				t.Errorf("failed result = %q %q", failed.Outcome, failed.Assistant.Text)
			}

			if got := c.Transcript().Len(); got != 6 {
				t.Errorf("transcript length = %d, want 6", got)
			}
		})
	}
}
