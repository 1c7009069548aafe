package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjfontaine/streamchat/internal/core/domain"
	"github.com/tjfontaine/streamchat/internal/core/ports"
)

// fakeTransport hands out scripted bodies and records every request.
type fakeTransport struct {
	mu       sync.Mutex
	requests []*ports.ExchangeRequest
	open     func(ctx context.Context, req *ports.ExchangeRequest) (io.ReadCloser, error)
}

func (f *fakeTransport) Name() string { return "fake" }

func (f *fakeTransport) Open(ctx context.Context, req *ports.ExchangeRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.open(ctx, req)
}

func (f *fakeTransport) Requests() []*ports.ExchangeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*ports.ExchangeRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

// streamTransport returns the given streams in order, one per exchange.
func streamTransport(streams ...string) *fakeTransport {
	var (
		mu   sync.Mutex
		next int
	)
	return &fakeTransport{open: func(ctx context.Context, req *ports.ExchangeRequest) (io.ReadCloser, error) {
		mu.Lock()
		defer mu.Unlock()
		if next >= len(streams) {
			return nil, errors.New("no more scripted streams")
		}
		s := streams[next]
		next++
		return io.NopCloser(strings.NewReader(s)), nil
	}}
}

// pipeTransport returns one pipe-backed body the test writes into.
func pipeTransport() (*fakeTransport, *io.PipeWriter) {
	pr, pw := io.Pipe()
	return &fakeTransport{open: func(ctx context.Context, req *ports.ExchangeRequest) (io.ReadCloser, error) {
		return pr, nil
	}}, pw
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *noticeRecorder) handle(n Notice) {
	r.mu.Lock()
	r.notices = append(r.notices, n)
	r.mu.Unlock()
}

func (r *noticeRecorder) kinds(kind NoticeKind) []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Notice
	for _, n := range r.notices {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

func (r *noticeRecorder) states() []domain.ClientState {
	var out []domain.ClientState
	for _, n := range r.kinds(NoticeStateChanged) {
		out = append(out, n.State)
	}
	return out
}

type sendResult struct {
	res *Result
	err error
}

func sendAsync(ctx context.Context, c *Client, text string) <-chan sendResult {
	ch := make(chan sendResult, 1)
	go func() {
		res, err := c.Send(ctx, text)
		ch <- sendResult{res: res, err: err}
	}()
	return ch
}

func wait(t *testing.T, ch <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Send() did not return")
		return sendResult{}
	}
}

func newTestClient(t *testing.T, tr ports.Transport, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithToken("tok")}, opts...)
	c, err := New(tr, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func frame(event, data string) string {
	if event == "" {
		return "data: " + data + "\n\n"
	}
	return "event: " + event + "\ndata: " + data + "\n\n"
}
