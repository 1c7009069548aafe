package testutil

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Event formats one stream block.
func Event(name, data string) string {
	if name == "" {
		return fmt.Sprintf("data: %s\n\n", data)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", name, data)
}

// Step is one write of a scripted stream.
type Step struct {
	// Raw bytes written and flushed as one chunk.
	Raw string

	// Delay before the write.
	Delay time.Duration

	// Hang blocks until the client goes away instead of writing.
	Hang bool
}

// Chunks turns raw chunks into steps.
func Chunks(raw ...string) []Step {
	steps := make([]Step, len(raw))
	for i, r := range raw {
		steps[i] = Step{Raw: r}
	}
	return steps
}

// StreamServer is an httptest handler that plays a scripted event stream and
// records the requests it received.
type StreamServer struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string

	Status      int
	ContentType string
	Body        string
	Steps       []Step
}

// NewStreamServer plays steps with a 200 text/event-stream response.
func NewStreamServer(steps ...Step) *StreamServer {
	return &StreamServer{
		Status:      http.StatusOK,
		ContentType: "text/event-stream",
		Steps:       steps,
	}
}

func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, r.Clone(r.Context()))
	s.bodies = append(s.bodies, string(body))
	s.mu.Unlock()

	w.Header().Set("Content-Type", s.ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(s.Status)
	if s.Body != "" {
		w.Write([]byte(s.Body))
		return
	}

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	for _, step := range s.Steps {
		if step.Delay > 0 {
			select {
			case <-time.After(step.Delay):
			case <-r.Context().Done():
				return
			}
		}
		if step.Hang {
			<-r.Context().Done()
			return
		}
		if _, err := w.Write([]byte(step.Raw)); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// Requests returns the requests received so far.
func (s *StreamServer) Requests() []*http.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*http.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Bodies returns the request bodies received so far.
func (s *StreamServer) Bodies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.bodies))
	copy(out, s.bodies)
	return out
}
