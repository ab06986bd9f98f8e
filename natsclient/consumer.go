package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/Alfresco/gytheio-sub001/errors"
)

// DefaultAckWait is the redelivery deadline of a consumer without AckWait.
const DefaultAckWait = 30 * time.Second

const (
	fetchWait  = 5 * time.Second
	fetchRetry = time.Second
)

// StreamHandler processes one JetStream message. The message is acked after
// the handler returns.
type StreamHandler func(ctx context.Context, data []byte)

// ConsumerConfig describes a durable pull consumer. Every worker using the
// same Stream and Durable shares one consumer and therefore the load.
type ConsumerConfig struct {
	Stream  string
	Durable string
	Subject string
	// AckWait is how long the server waits for an ack before redelivering.
	// A running handler keeps extending it.
	AckWait time.Duration
	// MaxAckPending bounds unacked messages across the whole pool, not per
	// worker. Zero leaves the server default.
	MaxAckPending int
}

func (cfg ConsumerConfig) ackWait() time.Duration {
	if cfg.AckWait > 0 {
		return cfg.AckWait
	}
	return DefaultAckWait
}

// progressInterval is how often a running handler tells the server it is
// still working on its message.
func (cfg ConsumerConfig) progressInterval() time.Duration {
	return cfg.ackWait() / 3
}

func (cfg ConsumerConfig) key() string {
	return cfg.Stream + ":" + cfg.Durable
}

// streamConsumer is one worker's fetch loop over a shared consumer.
type streamConsumer struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Stop ends the fetch loop. A handler already running is not interrupted.
func (s *streamConsumer) Stop() {
	s.cancel()
}

// ConsumeStream starts fetching from a durable pull consumer. Each worker
// holds at most one message at a time: the next message is fetched only
// after the previous one was handled and acked, so adding workers on the
// same durable adds throughput.
func (c *Client) ConsumeStream(ctx context.Context, cfg ConsumerConfig, handler StreamHandler) error {
	if cfg.Stream == "" || cfg.Durable == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Client", "ConsumeStream", "stream and durable name")
	}
	js, err := c.JetStream()
	if err != nil {
		return err
	}
	if c.closed.Load() {
		return errors.WrapInvalid(fmt.Errorf("client is closed"), "Client", "ConsumeStream", "check client state")
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, cfg.Stream, jetstream.ConsumerConfig{
		Durable:       cfg.Durable,
		FilterSubject: cfg.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       cfg.ackWait(),
		MaxAckPending: cfg.MaxAckPending,
	})
	if err != nil {
		c.recordFailure()
		return errors.WrapTransient(err, "Client", "ConsumeStream", "create consumer")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sc := &streamConsumer{cancel: cancel, done: make(chan struct{})}

	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()

	if c.closed.Load() {
		cancel()
		return errors.WrapInvalid(fmt.Errorf("client is closing"), "Client", "ConsumeStream", "register consumer")
	}
	if c.consumers == nil {
		c.consumers = make(map[string]*streamConsumer)
	}
	if existing, ok := c.consumers[cfg.key()]; ok {
		existing.Stop()
	}
	c.consumers[cfg.key()] = sc

	go c.fetchLoop(loopCtx, ctx, consumer, cfg, handler, sc.done)

	c.resetCircuit()
	return nil
}

// StopConsumer stops a consumer started by ConsumeStream
func (c *Client) StopConsumer(stream, durable string) {
	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()
	key := ConsumerConfig{Stream: stream, Durable: durable}.key()
	if existing, ok := c.consumers[key]; ok {
		existing.Stop()
		delete(c.consumers, key)
	}
}

func (c *Client) fetchLoop(
	loopCtx, handlerCtx context.Context,
	consumer jetstream.Consumer,
	cfg ConsumerConfig,
	handler StreamHandler,
	done chan struct{},
) {
	defer close(done)
	for loopCtx.Err() == nil {
		msg, err := consumer.Next(jetstream.FetchMaxWait(fetchWait))
		if loopCtx.Err() != nil {
			if msg != nil {
				// Stopped while the fetch was pending; hand it to another worker.
				_ = msg.Nak()
			}
			return
		}
		if err != nil {
			if !stderrors.Is(err, nats.ErrTimeout) {
				c.logger.Debugf("Fetch from %s failed: %v", cfg.key(), err)
				select {
				case <-loopCtx.Done():
					return
				case <-time.After(fetchRetry):
				}
			}
			continue
		}

		stop := keepAlive(msg, cfg.progressInterval(), c.logger)
		handler(handlerCtx, msg.Data())
		stop()

		if err := msg.Ack(); err != nil {
			c.logger.Errorf("Failed to ack message on %s: %v", msg.Subject(), err)
		}
	}
}

// progressReporter extends the ack deadline of a delivered message.
type progressReporter interface {
	InProgress() error
}

// keepAlive calls InProgress every interval until the returned stop func is
// called. stop waits for the ticker goroutine to exit.
func keepAlive(msg progressReporter, interval time.Duration, logger Logger) (stop func()) {
	if interval <= 0 {
		return func() {}
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					logger.Debugf("Failed to extend ack deadline: %v", err)
				}
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}
