// Package sse decodes the text/event-stream framing used by the chat backend.
//
// A stream is a sequence of blocks separated by a blank line ("\n\n"). Inside a
// block, "event:" lines name the event and "data:" lines carry the payload.
// Chunks handed to the Parser may split the stream anywhere; the frames produced
// depend only on the concatenated bytes.
package sse

import (
	"bytes"
	"strings"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

const (
	eventPrefix = "event:"
	dataPrefix  = "data:"
)

var separator = []byte("\n\n")

// Parser is an incremental frame decoder. It is not safe for concurrent use;
// one Parser belongs to one stream.
type Parser struct {
	buf []byte
}

// NewParser creates an empty parser.
func NewParser() *Parser {
	return &Parser{}
}

// Feed appends a chunk and returns every frame completed by it, in order.
func (p *Parser) Feed(chunk []byte) []domain.Frame {
	p.buf = append(p.buf, chunk...)

	var frames []domain.Frame
	for {
		idx := bytes.Index(p.buf, separator)
		if idx < 0 {
			break
		}
		block := string(p.buf[:idx])
		p.buf = p.buf[idx+len(separator):]

		if frame, ok := parseBlock(block); ok {
			frames = append(frames, frame)
		}
	}

	// Reclaim the consumed prefix once the buffer drains.
	if len(p.buf) == 0 {
		p.buf = nil
	}
	return frames
}

// Buffered returns the number of bytes held for an incomplete frame.
func (p *Parser) Buffered() int {
	return len(p.buf)
}

// Close discards any unterminated trailing frame and returns its size.
func (p *Parser) Close() int {
	n := len(p.buf)
	p.buf = nil
	return n
}

func parseBlock(block string) (domain.Frame, bool) {
	event := ""
	var data []string

	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, eventPrefix):
			event = strings.TrimSpace(line[len(eventPrefix):])
		case strings.HasPrefix(line, dataPrefix):
			data = append(data, strings.TrimSpace(line[len(dataPrefix):]))
		}
	}

	if len(data) == 0 {
		return domain.Frame{}, false
	}
	if event == "" {
		event = domain.DefaultEvent
	}
	return domain.Frame{Event: event, Data: strings.Join(data, "\n")}, true
}
