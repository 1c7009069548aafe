package chat

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tjfontaine/streamchat/internal/core/domain"
)

var errStopped = errors.New("exchange stopped")

// exchange is one send, stream, terminate cycle. It owns the transport body.
type exchange struct {
	requestID   string
	assistantID string
	user        domain.Message

	cancel context.CancelCauseFunc
	idle   time.Duration
	timer  *time.Timer

	mu         sync.Mutex
	body       io.ReadCloser
	aborted    bool
	bodyClosed bool

	done chan struct{}
}

func newExchange(requestID string, cancel context.CancelCauseFunc, idle time.Duration) *exchange {
	return &exchange{
		requestID: requestID,
		cancel:    cancel,
		idle:      idle,
		done:      make(chan struct{}),
	}
}

// arm starts the idle timer once the transport is about to be opened.
func (ex *exchange) arm() {
	if ex.idle > 0 {
		ex.timer = time.AfterFunc(ex.idle, func() { ex.abort(domain.ErrIdleTimeout) })
	}
}

// attach hands the opened body to the exchange. It reports false, after
// closing body, when the exchange was aborted while the transport was opening.
func (ex *exchange) attach(body io.ReadCloser) bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.aborted {
		body.Close()
		ex.bodyClosed = true
		return false
	}
	ex.body = body
	return true
}

// abort cancels the exchange with cause and closes the body synchronously.
// The first cause wins.
func (ex *exchange) abort(cause error) {
	ex.cancel(cause)

	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.aborted = true
	ex.closeBodyLocked()
}

// touch re-arms the idle timer after activity.
func (ex *exchange) touch() {
	if ex.timer != nil {
		ex.timer.Reset(ex.idle)
	}
}

func (ex *exchange) closeBody() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.closeBodyLocked()
}

func (ex *exchange) release() {
	if ex.timer != nil {
		ex.timer.Stop()
	}
	ex.closeBody()
	ex.cancel(nil)
}

func (ex *exchange) closeBodyLocked() {
	if ex.body != nil && !ex.bodyClosed {
		ex.body.Close()
		ex.bodyClosed = true
	}
}
