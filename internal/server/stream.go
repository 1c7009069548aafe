package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionHeader carries the session id a client wants to continue.
const SessionHeader = "x-session-id"

type chatRequest struct {
	Message string `json:"message"`
}

type sessionPayload struct {
	SessionID string `json:"session_id"`
	Turn      int    `json:"turn"`
}

type deltaPayload struct {
	Text string `json:"text"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type chatHandler struct {
	cfg    Config
	logger *slog.Logger

	mu    sync.Mutex
	turns map[string]int
}

func newChatHandler(cfg Config, logger *slog.Logger) *chatHandler {
	return &chatHandler{
		cfg:    cfg,
		logger: logger,
		turns:  make(map[string]int),
	}
}

func (h *chatHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, r.URL.Query().Get("message"))
}

func (h *chatHandler) handlePost(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.stream(w, r, req.Message)
}

// nextTurn continues a known session or starts a new one.
func (h *chatHandler) nextTurn(requested string) (string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := requested
	if _, ok := h.turns[id]; !ok || id == "" {
		id = "sess_" + uuid.New().String()
	}
	h.turns[id]++
	return id, h.turns[id]
}

func (h *chatHandler) stream(w http.ResponseWriter, r *http.Request, message string) {
	ctx := r.Context()
	if strings.TrimSpace(message) == "" {
		writeError(w, http.StatusUnprocessableEntity, "message is required")
		return
	}

	sse, err := newEventWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	sessionID, turn := h.nextTurn(r.Header.Get(SessionHeader))
	AddLogField(ctx, "session_id", sessionID)

	if err := sse.Send("session", sessionPayload{SessionID: sessionID, Turn: turn}); err != nil {
		AddError(ctx, err)
		return
	}

	words := replyWords(message)
	fail := h.cfg.FailOn != "" && strings.Contains(strings.ToLower(message), strings.ToLower(h.cfg.FailOn))
	if fail && len(words) > 2 {
		words = words[:2]
	}

	for _, word := range words {
		if h.cfg.Delay > 0 {
			select {
			case <-time.After(h.cfg.Delay):
			case <-ctx.Done():
				AddError(ctx, ctx.Err())
				return
			}
		}
		if err := sse.Send("message", deltaPayload{Text: word}); err != nil {
			AddError(ctx, err)
			return
		}
	}

	if fail {
		h.logger.Warn("simulated stream failure",
			slog.String("request_id", GetRequestID(ctx)),
			slog.String("session_id", sessionID))
		sse.Send("error", errorPayload{Message: "simulated failure", Code: "fail_on"})
		return
	}
	sse.Send("done", struct{}{})
}

// replyWords splits the echo reply into deltas that concatenate back to the
// full text: every word after the first carries its leading space.
func replyWords(message string) []string {
	fields := strings.Fields("You said: " + message)
	out := make([]string, len(fields))
	for i, f := range fields {
		if i > 0 {
			f = " " + f
		}
		out[i] = f
	}
	return out
}

// eventWriter writes text/event-stream blocks and flushes each one.
type eventWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newEventWriter(w http.ResponseWriter) (*eventWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventWriter{w: w, flusher: flusher}, nil
}

// Send writes one event with a JSON payload.
func (e *eventWriter) Send(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	e.flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
