// Package tokens reports token usage of a transcript.
package tokens

import (
	"fmt"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

// DefaultEncoding is used when no encoding is requested.
const DefaultEncoding = tokenizer.O200kBase

// Token overhead per chat message: 3 framing tokens plus 1 for the role.
const (
	tokensPerMessage = 3
	tokensPerRole    = 1
)

// Stats summarizes a transcript.
type Stats struct {
	Messages        int
	UserTokens      int
	AssistantTokens int
	// Total includes per-message framing overhead.
	Total     int
	Estimated bool
}

// Counter counts tokens with a tiktoken encoding.
type Counter struct {
	codec tokenizer.Codec
}

// NewCounter creates a counter for encoding, or DefaultEncoding when empty.
func NewCounter(encoding tokenizer.Encoding) (*Counter, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokenizer encoding: %w", err)
	}
	return &Counter{codec: codec}, nil
}

// Count returns the number of tokens in text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, _ := c.codec.Encode(text)
	return len(ids)
}

// Stats counts every message of a transcript snapshot.
func (c *Counter) Stats(msgs []domain.Message) Stats {
	return stats(msgs, c.Count, false)
}

// Estimator approximates token counts from text length when no encoding is
// available.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

func (e *Estimator) Count(text string) int {
	if text == "" {
		return 0
	}
	n := int(float64(len(text)) / e.CharsPerToken)
	if n == 0 {
		n = 1
	}
	return n
}

func (e *Estimator) Stats(msgs []domain.Message) Stats {
	return stats(msgs, e.Count, true)
}

func stats(msgs []domain.Message, count func(string) int, estimated bool) Stats {
	s := Stats{Messages: len(msgs), Estimated: estimated}
	for _, m := range msgs {
		n := count(m.Text)
		switch m.Role {
		case domain.RoleUser:
			s.UserTokens += n
		case domain.RoleAssistant:
			s.AssistantTokens += n
		}
		s.Total += n + tokensPerMessage + tokensPerRole
	}
	return s
}
