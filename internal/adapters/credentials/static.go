// Package credentials provides bearer token sources for the chat client.
package credentials

import (
	"context"
	"os"
	"strings"

	"github.com/tjfontaine/streamchat/internal/core/ports"
)

// Static returns a fixed token.
type Static struct {
	token string
}

var _ ports.CredentialSource = (*Static)(nil)

// NewStatic creates a source for a fixed token. An empty token is allowed and
// makes every exchange fail its credential precondition.
func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

func (s *Static) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

// Env reads the token from an environment variable on every call.
type Env struct {
	name string
}

var _ ports.CredentialSource = (*Env)(nil)

// NewEnv creates a source reading the named variable.
func NewEnv(name string) *Env {
	return &Env{name: name}
}

func (e *Env) Token(ctx context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(e.name)), nil
}
