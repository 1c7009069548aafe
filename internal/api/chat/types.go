package chat

import (
	"encoding/json"
	"strings"
)

// ChatRequest is the JSON body of a POST exchange.
type ChatRequest struct {
	Message string `json:"message"`
}

// ErrorResponse is the loosely specified error body returned with a non-2xx status.
type ErrorResponse struct {
	Message string          `json:"message,omitempty"`
	Detail  json.RawMessage `json:"detail,omitempty"`
	Error   json.RawMessage `json:"error,omitempty"`
}

// ParseErrorResponse extracts a human-readable message from an error body.
// It returns "" when the body carries no recognizable message field.
func ParseErrorResponse(data []byte) (string, error) {
	var errResp ErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil {
		return "", err
	}
	if errResp.Message != "" {
		return errResp.Message, nil
	}
	if msg := rawText(errResp.Detail); msg != "" {
		return msg, nil
	}
	if msg := rawText(errResp.Error); msg != "" {
		return msg, nil
	}

	var nested struct {
		Message string `json:"message"`
	}
	if len(errResp.Error) > 0 && json.Unmarshal(errResp.Error, &nested) == nil {
		return nested.Message, nil
	}
	return "", nil
}

func rawText(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
