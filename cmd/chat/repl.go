package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

const prompt = "> "

// interactive reads lines from in until /quit or EOF. Sends run in the
// background so /stop and Ctrl+C can reach the reply in progress.
func (a *app) interactive(ctx context.Context, in io.Reader, out io.Writer) error {
	a.setOutput(out)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	var sending chan error
	a.printf("connected to %s (%s). /quit to exit.\n", a.client.TransportName(), a.sessionLabel())
	a.printf(prompt)

	for {
		select {
		case <-ctx.Done():
			a.client.Stop()
			return nil

		case <-sigCh:
			if !a.client.Stop() {
				a.printf("\n")
				return nil
			}

		case err := <-sending:
			sending = nil
			a.reportSendError(err)
			a.printf(prompt)

		case line, ok := <-lines:
			if !ok {
				if sending != nil {
					a.reportSendError(<-sending)
				}
				return nil
			}
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "/") {
				if quit := a.command(ctx, line); quit {
					a.client.Stop()
					if sending != nil {
						<-sending
					}
					return nil
				}
				if sending == nil {
					a.printf(prompt)
				}
				continue
			}
			if line == "" {
				a.printf(prompt)
				continue
			}
			if sending != nil {
				a.printf("a reply is still streaming; /stop to abort it\n")
				continue
			}

			ch := make(chan error, 1)
			go func(text string) {
				_, err := a.client.Send(ctx, text)
				ch <- err
			}(line)
			sending = ch
		}
	}
}

// reportSendError prints errors that are not already shown on the assistant
// message.
func (a *app) reportSendError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, domain.ErrPrecondition) {
		a.printf("cannot send: %v\n", err)
	}
}

// command runs a slash command and reports whether the loop should exit.
func (a *app) command(ctx context.Context, line string) bool {
	name, _, _ := strings.Cut(line, " ")

	switch name {
	case "/quit", "/exit":
		return true

	case "/stop":
		if !a.client.Stop() {
			a.printf("nothing to stop\n")
		}

	case "/session":
		id, ok := a.client.Session().Current()
		if !ok {
			a.printf("no session yet\n")
			return false
		}
		a.printf("session: %s\n", id)
		if info := a.client.Session().Info(); len(info) > 0 {
			var pretty map[string]any
			if json.Unmarshal(info, &pretty) == nil {
				b, _ := json.MarshalIndent(pretty, "", "  ")
				a.printf("%s\n", b)
			}
		}

	case "/new":
		if err := a.client.Session().Reset(ctx); err != nil {
			a.printf("reset session: %v\n", err)
			return false
		}
		a.printf("started a new conversation\n")

	case "/history":
		msgs := a.client.Transcript().Messages()
		if len(msgs) == 0 {
			a.printf("transcript is empty\n")
			return false
		}
		var b strings.Builder
		for _, m := range msgs {
			writeMessage(&b, m)
		}
		a.printf("%s", b.String())

	case "/stats":
		s := a.counter.Stats(a.client.Transcript().Messages())
		suffix := ""
		if s.Estimated {
			suffix = " (estimated)"
		}
		a.printf("messages: %d, user tokens: %d, assistant tokens: %d, total: %d%s\n",
			s.Messages, s.UserTokens, s.AssistantTokens, s.Total, suffix)

	default:
		a.printf("unknown command %s\n", name)
	}
	return false
}

func (a *app) sessionLabel() string {
	if id, ok := a.client.Session().Current(); ok {
		return fmt.Sprintf("session %s", id)
	}
	return "new session"
}
