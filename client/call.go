package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/message"
)

// RequestError is the error of a FAILED reply. It unwraps to the taxonomy
// sentinel of the reported kind when the kind is known.
type RequestError struct {
	RequestID string
	Kind      string
	Message   string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s failed (%s): %s", e.RequestID, e.Kind, e.Message)
}

func (e *RequestError) Unwrap() error {
	return errors.Sentinel(e.Kind)
}

// Call is one outstanding request.
type Call struct {
	RequestID string

	updates chan *message.Reply
	done    chan struct{}

	mu           sync.Mutex
	status       message.Status
	lastProgress float64
	reported     bool
	final        *message.Reply
	err          error
	closed       bool
}

func newCall(requestID string, buffer int) *Call {
	return &Call{
		RequestID: requestID,
		updates:   make(chan *message.Reply, buffer),
		done:      make(chan struct{}),
	}
}

// Updates delivers the STARTED and IN_PROGRESS replies. It is closed once
// the terminal reply arrives or the call is abandoned.
func (c *Call) Updates() <-chan *message.Reply {
	return c.updates
}

// Done is closed when the call finishes.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Status returns the last accepted status.
func (c *Call) Status() message.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Progress returns the highest reported progress.
func (c *Call) Progress() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastProgress
}

// Wait blocks until the terminal reply or ctx is done. A FAILED reply is
// returned together with a *RequestError.
func (c *Call) Wait(ctx context.Context) (*message.Reply, error) {
	select {
	case <-c.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.final, c.err
}

// accept validates reply against the stream seen so far.
func (c *Call) accept(reply *message.Reply) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("call already finished")
	}
	if !reply.Status.CanFollow(c.status) {
		return fmt.Errorf("%s cannot follow %q", reply.Status, c.status)
	}
	if reply.Status == message.StatusInProgress && reply.Progress != nil {
		p := *reply.Progress
		if c.reported && p < c.lastProgress {
			return fmt.Errorf("progress %.3f below %.3f", p, c.lastProgress)
		}
		c.lastProgress = p
		c.reported = true
	}
	c.status = reply.Status

	if !reply.Status.IsTerminal() {
		select {
		case c.updates <- reply:
		default:
		}
		return nil
	}

	c.final = reply
	if reply.Status == message.StatusFailed {
		failure := reply.Error
		if failure == nil {
			failure = &message.Failure{Kind: errors.KindUnknown}
		}
		c.err = &RequestError{RequestID: c.RequestID, Kind: failure.Kind, Message: failure.Message}
	}
	if reply.Status == message.StatusComplete {
		c.lastProgress = 1
	}
	c.finish()
	return nil
}

func (c *Call) abandon(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.err = err
	c.finish()
}

func (c *Call) finish() {
	c.closed = true
	close(c.updates)
	close(c.done)
}
