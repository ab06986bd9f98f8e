// Package natstransport implements transport.Transport over NATS.
//
// Core delivers requests through a queue group so that every worker
// subscribed with the same group shares the load. JetStream delivers
// requests through a durable pull consumer, acking each message after its
// handler returns, which gives at-least-once delivery across restarts. Each
// worker fetches one request at a time, so workers on the same durable
// process in parallel.
package natstransport

import (
	"context"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Alfresco/gytheio-sub001/errors"
	"github.com/Alfresco/gytheio-sub001/natsclient"
	"github.com/Alfresco/gytheio-sub001/transport"
)

// Core publishes and subscribes on core NATS subjects.
type Core struct {
	client *natsclient.Client
	queue  string
}

var _ transport.Transport = (*Core)(nil)

// NewCore creates a core transport. A non-empty queue makes subscriptions
// queue-group members.
func NewCore(client *natsclient.Client, queue string) *Core {
	return &Core{client: client, queue: queue}
}

// Publish sends data to subject.
func (t *Core) Publish(ctx context.Context, subject string, data []byte) error {
	if err := t.client.Publish(ctx, subject, data); err != nil {
		return errors.Messaging(err, "NATSTransport", "Publish", "publish to "+subject)
	}
	return nil
}

// Subscribe delivers messages on subject to handler.
func (t *Core) Subscribe(ctx context.Context, subject string, handler transport.Handler) (transport.Subscription, error) {
	sub, err := t.client.QueueSubscribe(ctx, subject, t.queue, natsclient.MsgHandler(handler))
	if err != nil {
		return nil, errors.Messaging(err, "NATSTransport", "Subscribe", "subscribe to "+subject)
	}
	return sub, nil
}

// StreamConfig describes the stream a JetStream transport consumes from.
type StreamConfig struct {
	// Name of the stream, created or updated on construction.
	Name string
	// Subjects bound to the stream. Publishes to a matching subject are
	// acknowledged by the stream; anything else goes over core NATS.
	Subjects []string
	// Durable consumer name shared by every worker of one pool.
	Durable string
	// AckWait is the redelivery deadline of a request. Workers extend it
	// while a request is being processed.
	AckWait time.Duration
	// MaxAckPending bounds requests in flight across the pool. Zero leaves
	// the server default.
	MaxAckPending int
}

// JetStream consumes from a stream and publishes replies on core NATS.
type JetStream struct {
	client *natsclient.Client
	cfg    StreamConfig
}

var _ transport.Transport = (*JetStream)(nil)

// NewJetStream ensures the stream exists and returns a transport over it.
func NewJetStream(ctx context.Context, client *natsclient.Client, cfg StreamConfig) (*JetStream, error) {
	if cfg.Name == "" || len(cfg.Subjects) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "JetStreamTransport", "NewJetStream", "stream name and subjects")
	}
	if _, err := client.EnsureStream(ctx, jetstream.StreamConfig{
		Name:     cfg.Name,
		Subjects: cfg.Subjects,
	}); err != nil {
		return nil, errors.Messaging(err, "JetStreamTransport", "NewJetStream", "ensure stream")
	}
	return &JetStream{client: client, cfg: cfg}, nil
}

// Publish sends data to subject, through the stream when the subject is
// bound to it.
func (t *JetStream) Publish(ctx context.Context, subject string, data []byte) error {
	var err error
	if t.bound(subject) {
		err = t.client.PublishToStream(ctx, subject, data)
	} else {
		err = t.client.Publish(ctx, subject, data)
	}
	if err != nil {
		return errors.Messaging(err, "JetStreamTransport", "Publish", "publish to "+subject)
	}
	return nil
}

// Subscribe consumes subject from the stream with the durable consumer.
// Subjects not bound to the stream are subscribed on core NATS.
func (t *JetStream) Subscribe(ctx context.Context, subject string, handler transport.Handler) (transport.Subscription, error) {
	if !t.bound(subject) {
		sub, err := t.client.Subscribe(ctx, subject, natsclient.MsgHandler(handler))
		if err != nil {
			return nil, errors.Messaging(err, "JetStreamTransport", "Subscribe", "subscribe to "+subject)
		}
		return sub, nil
	}

	durable := t.cfg.Durable
	if durable == "" {
		durable = durableName(subject)
	}
	err := t.client.ConsumeStream(ctx, natsclient.ConsumerConfig{
		Stream:        t.cfg.Name,
		Durable:       durable,
		Subject:       subject,
		AckWait:       t.cfg.AckWait,
		MaxAckPending: t.cfg.MaxAckPending,
	}, natsclient.StreamHandler(handler))
	if err != nil {
		return nil, errors.Messaging(err, "JetStreamTransport", "Subscribe", "consume "+subject)
	}
	return &consumerSubscription{client: t.client, stream: t.cfg.Name, durable: durable}, nil
}

func (t *JetStream) bound(subject string) bool {
	for _, pattern := range t.cfg.Subjects {
		if SubjectMatches(pattern, subject) {
			return true
		}
	}
	return false
}

type consumerSubscription struct {
	client  *natsclient.Client
	stream  string
	durable string
}

func (s *consumerSubscription) Unsubscribe() error {
	s.client.StopConsumer(s.stream, s.durable)
	return nil
}

// SubjectMatches reports whether subject matches a NATS subject pattern
// with "*" and ">" wildcards.
func SubjectMatches(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, token := range p {
		if token == ">" {
			return i < len(s)
		}
		if i >= len(s) {
			return false
		}
		if token != "*" && token != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}

// durableName derives a consumer name from a subject. Consumer names may
// not contain '.', '*' or '>'.
func durableName(subject string) string {
	return strings.NewReplacer(".", "-", "*", "any", ">", "all").Replace(subject)
}
