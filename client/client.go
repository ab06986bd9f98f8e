// Package client sends requests to workers and tracks their reply streams.
//
// A Client subscribes to one reply address shared by all its requests.
// Replies are matched to outstanding requests by requestId only; replies
// for unknown ids are discarded, as are replies that would break the
// STARTED -> IN_PROGRESS* -> COMPLETE | FAILED order or report progress
// lower than already seen.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/message"
	"github.com/Alfresco/gytheio-sub001/transport"
)

// DefaultUpdateBuffer is the number of non-terminal replies buffered per call.
const DefaultUpdateBuffer = 32

// Config configures a Client.
type Config struct {
	RequestAddress string
	ReplyAddress   string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUpdateBuffer sets the per-call update buffer. Updates that do not
// fit are dropped; the terminal reply is never dropped.
func WithUpdateBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// Client publishes requests and correlates their replies.
type Client struct {
	config    Config
	transport transport.Transport
	logger    *slog.Logger
	buffer    int

	mu          sync.Mutex
	outstanding map[string]*Call
	sub         transport.Subscription

	discarded atomic.Uint64
	rejected  atomic.Uint64
}

// New creates a Client. Call Start before Send.
func New(tr transport.Transport, cfg Config, opts ...Option) (*Client, error) {
	if tr == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Client", "New", "transport is required")
	}
	if cfg.RequestAddress == "" || cfg.ReplyAddress == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Client", "New", "request and reply addresses are required")
	}

	c := &Client{
		config:      cfg,
		transport:   tr,
		logger:      slog.Default(),
		buffer:      DefaultUpdateBuffer,
		outstanding: make(map[string]*Call),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "client", "reply_address", cfg.ReplyAddress)
	return c, nil
}

// Start subscribes to the reply address.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sub != nil {
		return nil
	}

	sub, err := c.transport.Subscribe(ctx, c.config.ReplyAddress, c.handleReply)
	if err != nil {
		return errors.Messaging(err, "Client", "Start", "subscribe to "+c.config.ReplyAddress)
	}
	c.sub = sub
	return nil
}

// Send publishes req. Without a replyTo the request is addressed to the
// client's reply address. The returned Call tracks the reply stream.
func (c *Client) Send(ctx context.Context, req message.Request) (*Call, error) {
	env := req.Envelope()
	if env.ReplyTo() == "" {
		env.SetReplyTo(c.config.ReplyAddress)
	}

	data, err := message.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	call := newCall(env.RequestID(), c.buffer)

	c.mu.Lock()
	if c.sub == nil {
		c.mu.Unlock()
		return nil, errors.WrapInvalid(errors.ErrNotStarted, "Client", "Send", "client not started")
	}
	if _, dup := c.outstanding[call.RequestID]; dup {
		c.mu.Unlock()
		return nil, errors.WrapInvalid(fmt.Errorf("request %s already outstanding", call.RequestID),
			"Client", "Send", "register request")
	}
	c.outstanding[call.RequestID] = call
	c.mu.Unlock()

	if err := c.transport.Publish(ctx, c.config.RequestAddress, data); err != nil {
		c.forget(call.RequestID)
		return nil, errors.Messaging(err, "Client", "Send", "publish to "+c.config.RequestAddress)
	}

	c.logger.Debug("Request sent", "request_id", call.RequestID, "kind", req.Kind())
	return call, nil
}

// Outstanding returns the number of requests without a terminal reply.
func (c *Client) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outstanding)
}

// Discarded returns the number of replies dropped for unknown request ids
// or undecodable bodies.
func (c *Client) Discarded() uint64 {
	return c.discarded.Load()
}

// Rejected returns the number of replies dropped for breaking the order
// of their stream.
func (c *Client) Rejected() uint64 {
	return c.rejected.Load()
}

// Close unsubscribes and abandons every outstanding call.
func (c *Client) Close() error {
	c.mu.Lock()
	sub := c.sub
	c.sub = nil
	calls := c.outstanding
	c.outstanding = make(map[string]*Call)
	c.mu.Unlock()

	for _, call := range calls {
		call.abandon(errors.Messaging(fmt.Errorf("client closed"), "Client", "Close", "abandon request"))
	}
	if sub == nil {
		return nil
	}
	if err := sub.Unsubscribe(); err != nil {
		return errors.Messaging(err, "Client", "Close", "unsubscribe")
	}
	return nil
}

func (c *Client) handleReply(_ context.Context, data []byte) {
	reply, err := message.UnmarshalReply(data)
	if err != nil {
		c.discarded.Add(1)
		c.logger.Warn("Discarding undecodable reply", "error", err)
		return
	}

	c.mu.Lock()
	call, ok := c.outstanding[reply.RequestID]
	c.mu.Unlock()
	if !ok {
		c.discarded.Add(1)
		c.logger.Debug("Discarding reply for unknown request", "request_id", reply.RequestID, "status", reply.Status)
		return
	}

	if err := call.accept(reply); err != nil {
		c.rejected.Add(1)
		c.logger.Warn("Rejecting out-of-order reply", "request_id", reply.RequestID, "error", err)
		return
	}
	if reply.Status.IsTerminal() {
		c.forget(reply.RequestID)
	}
}

func (c *Client) forget(requestID string) {
	c.mu.Lock()
	delete(c.outstanding, requestID)
	c.mu.Unlock()
}
