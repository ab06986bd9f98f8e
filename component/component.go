package component

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/message"
	"github.com/Alfresco/gytheio-sub001/metric"
	"github.com/Alfresco/gytheio-sub001/transport"
	"github.com/Alfresco/gytheio-sub001/worker"
)

// DefaultPublishTimeout bounds each reply handed to the transport.
const DefaultPublishTimeout = 5 * time.Second

// Processor executes one request kind. Process runs synchronously and
// reports progress through progress.
type Processor interface {
	RequestKind() string
	Process(ctx context.Context, req message.Request, progress worker.ProgressFunc) ([]message.Result, error)
}

// Config configures a Component.
type Config struct {
	Name           string        `json:"name"`
	RequestAddress string        `json:"request_address"`
	ReplyAddress   string        `json:"reply_address"` // used when a request has no replyTo
	PublishTimeout time.Duration `json:"publish_timeout"`

	// ProgressInterval is the minimum spacing of IN_PROGRESS replies of one
	// request. The first progress reply and terminal replies are never held
	// back. Zero publishes every progress update.
	ProgressInterval time.Duration `json:"progress_interval"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Component", "Validate", "name is required")
	}
	if c.RequestAddress == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Component", "Validate", "request address is required")
	}
	if c.PublishTimeout < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Component", "Validate", "publish timeout must not be negative")
	}
	if c.ProgressInterval < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Component", "Validate", "progress interval must not be negative")
	}
	return nil
}

type lastRequest struct {
	id string
	at time.Time
}

// Component binds one Processor to one Transport. It decodes requests
// arriving on the request address, runs them one at a time and streams
// STARTED, IN_PROGRESS, then COMPLETE or FAILED replies.
type Component struct {
	config    Config
	processor Processor
	transport transport.Transport
	logger    *slog.Logger
	metrics   *metric.Metrics

	lifecycleMu sync.Mutex
	state       State
	sub         transport.Subscription
	startedAt   time.Time

	// processMu keeps one request in flight.
	processMu sync.Mutex

	last         atomic.Pointer[lastRequest]
	lastActivity atomic.Pointer[time.Time]
	lastError    atomic.Pointer[string]
	received     atomic.Uint64
	errorCount   atomic.Int64
}

var _ LifecycleComponent = (*Component)(nil)

// New creates a Component. deps.Transport is required.
func New(cfg Config, processor Processor, deps Dependencies) (*Component, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if processor == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Component", "New", "processor is required")
	}
	if deps.Transport == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Component", "New", "transport is required")
	}
	if cfg.PublishTimeout == 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}

	return &Component{
		config:    cfg,
		processor: processor,
		transport: deps.Transport,
		logger:    deps.GetLoggerWithComponent(cfg.Name),
		metrics:   deps.GetMetrics(),
		state:     StateCreated,
	}, nil
}

// Initialize prepares the component for Start. It performs no I/O.
func (c *Component) Initialize() error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.state != StateStarted {
		c.state = StateInitialized
	}
	return nil
}

// Start subscribes to the request address. Requests are delivered with
// ctx, but a request keeps running after ctx is cancelled.
func (c *Component) Start(ctx context.Context) error {
	if ctx == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Component", "Start", "context is required")
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "Component", "Start", "context check")
	}

	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	switch c.state {
	case StateStarted:
		return nil
	case StateInitialized, StateStopped:
	default:
		return errors.WrapInvalid(errors.ErrNotStarted, "Component", "Start", "component not initialized")
	}

	sub, err := c.transport.Subscribe(ctx, c.config.RequestAddress, c.handleMessage)
	if err != nil {
		c.state = StateFailed
		return errors.Messaging(err, "Component", "Start", "subscribe to "+c.config.RequestAddress)
	}

	c.sub = sub
	c.state = StateStarted
	c.startedAt = time.Now()
	c.logger.Info("Component started",
		"request_address", c.config.RequestAddress,
		"reply_address", c.config.ReplyAddress,
		"request_kind", c.processor.RequestKind())
	return nil
}

// Stop unsubscribes and waits up to timeout for the request in flight to
// finish. The request is never cancelled. State and Health do not block
// while Stop waits.
func (c *Component) Stop(timeout time.Duration) error {
	c.lifecycleMu.Lock()
	if c.state != StateStarted {
		c.lifecycleMu.Unlock()
		return nil
	}
	sub := c.sub
	c.sub = nil
	c.state = StateStopped
	c.lifecycleMu.Unlock()

	done := make(chan error, 1)
	go func() {
		err := sub.Unsubscribe()
		c.processMu.Lock()
		c.processMu.Unlock() //nolint:staticcheck // waits for the request in flight
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return errors.Messaging(err, "Component", "Stop", "unsubscribe from "+c.config.RequestAddress)
		}
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("request still in flight after %s", timeout),
			"Component", "Stop", "wait for request")
	}

	c.logger.Info("Component stopped")
	return nil
}

// State returns the lifecycle state.
func (c *Component) State() State {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()
	return c.state
}

// LastRequestID returns the id of the last accepted request, or "".
func (c *Component) LastRequestID() string {
	if lr := c.last.Load(); lr != nil {
		return lr.id
	}
	return ""
}

func (c *Component) handleMessage(ctx context.Context, data []byte) {
	c.touch()

	req, err := message.UnmarshalRequest(data)
	if err == nil && req.Kind() != c.processor.RequestKind() {
		err = errors.Deserialization(
			fmt.Errorf("request kind %s not served, expected %s", req.Kind(), c.processor.RequestKind()),
			"Component", "handleMessage", "request kind check")
	}
	if err != nil {
		c.recordError(err)
		if c.metrics != nil {
			c.metrics.DecodeFailures.WithLabelValues(c.config.Name).Inc()
		}
		c.logger.Warn("Dropping undecodable request", "error", err, "bytes", len(data))
		return
	}

	c.OnReceive(ctx, req)
}

// OnReceive runs req and publishes its replies. It blocks while another
// request is in flight. The processor gets a context detached from ctx's
// cancellation.
func (c *Component) OnReceive(ctx context.Context, req message.Request) {
	c.processMu.Lock()
	defer c.processMu.Unlock()

	env := req.Envelope()
	now := time.Now()
	c.last.Store(&lastRequest{id: env.RequestID(), at: now})
	c.received.Add(1)
	if c.metrics != nil {
		c.metrics.RequestsReceived.WithLabelValues(c.config.Name, req.Kind()).Inc()
		c.metrics.InFlight.WithLabelValues(c.config.Name).Set(1)
		defer c.metrics.InFlight.WithLabelValues(c.config.Name).Set(0)
	}

	workCtx := context.WithoutCancel(ctx)
	logger := c.logger.With("request_id", env.RequestID(), "kind", req.Kind())
	logger.Debug("Request accepted", "sources", len(env.SourceReferences()))

	stream := newReplyStream(workCtx, c, req, c.replyAddress(req))
	stream.started()

	results, err := c.processor.Process(workCtx, req, stream.progress)
	elapsed := time.Since(now)

	outcome := "complete"
	if err != nil {
		outcome = "failed"
	}
	if c.metrics != nil {
		c.metrics.ProcessingDuration.WithLabelValues(c.config.Name, outcome).Observe(elapsed.Seconds())
	}

	if err != nil {
		c.recordError(err)
		logger.Error("Request failed", "error", err, "error_kind", errors.Kind(err), "elapsed", elapsed)
		stream.failed(err)
		return
	}

	logger.Info("Request complete", "results", len(results), "elapsed", elapsed)
	stream.complete(results)
}

func (c *Component) replyAddress(req message.Request) string {
	if to := req.Envelope().ReplyTo(); to != "" {
		return to
	}
	return c.config.ReplyAddress
}

func (c *Component) publish(ctx context.Context, address string, reply *message.Reply) {
	if address == "" {
		c.publishFailed(reply, errors.Messaging(fmt.Errorf("no reply address"),
			"Component", "publish", "resolve reply address"))
		return
	}

	data, err := message.EncodeReply(reply)
	if err != nil {
		c.publishFailed(reply, errors.Messaging(err, "Component", "publish", "encode reply"))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, c.config.PublishTimeout)
	defer cancel()
	if err := c.transport.Publish(pubCtx, address, data); err != nil {
		c.publishFailed(reply, errors.Messaging(err, "Component", "publish", "publish to "+address))
		return
	}

	if c.metrics != nil {
		c.metrics.RepliesPublished.WithLabelValues(c.config.Name, string(reply.Status)).Inc()
	}
}

func (c *Component) publishFailed(reply *message.Reply, err error) {
	c.recordError(err)
	if c.metrics != nil {
		c.metrics.PublishFailures.WithLabelValues(c.config.Name).Inc()
	}
	c.logger.Error("Failed to publish reply",
		"request_id", reply.RequestID, "status", reply.Status, "error", err)
}

func (c *Component) recordError(err error) {
	c.errorCount.Add(1)
	msg := err.Error()
	c.lastError.Store(&msg)
}

func (c *Component) touch() {
	now := time.Now()
	c.lastActivity.Store(&now)
}

// Meta returns component metadata
func (c *Component) Meta() Metadata {
	return Metadata{
		Name:        c.config.Name,
		Type:        "worker",
		Description: "Dispatches " + c.processor.RequestKind() + " requests to a worker",
		Version:     "1.0.0",
		RequestKind: c.processor.RequestKind(),
	}
}

// Health returns current health status
func (c *Component) Health() HealthStatus {
	c.lifecycleMu.Lock()
	started := c.state == StateStarted
	startedAt := c.startedAt
	c.lifecycleMu.Unlock()

	status := HealthStatus{
		Healthy:    started,
		LastCheck:  time.Now(),
		ErrorCount: int(c.errorCount.Load()),
	}
	if started {
		status.Uptime = time.Since(startedAt)
	}
	if msg := c.lastError.Load(); msg != nil {
		status.LastError = *msg
	}
	if lr := c.last.Load(); lr != nil {
		status.LastRequestID = lr.id
		status.LastRequestAt = lr.at
	}
	return status
}

// DataFlow returns averages since Start
func (c *Component) DataFlow() FlowMetrics {
	var flow FlowMetrics
	if t := c.lastActivity.Load(); t != nil {
		flow.LastActivity = *t
	}

	c.lifecycleMu.Lock()
	startedAt := c.startedAt
	c.lifecycleMu.Unlock()

	received := float64(c.received.Load())
	if !startedAt.IsZero() {
		if secs := time.Since(startedAt).Seconds(); secs > 0 {
			flow.MessagesPerSecond = received / secs
		}
	}
	if received > 0 {
		flow.ErrorRate = float64(c.errorCount.Load()) / received
	}
	return flow
}
