// Package transport defines the message transport used by components and
// clients, and an in-memory implementation.
//
// Transports move opaque bytes between addresses. Correlation lives in the
// message body; transports never add or read correlation headers.
package transport

import (
	"context"
)

// Handler receives one message body. Handlers of one subscription are
// invoked sequentially in delivery order.
type Handler func(ctx context.Context, data []byte)

// Subscription is an active Subscribe registration.
type Subscription interface {
	Unsubscribe() error
}

// Transport publishes message bodies to addresses and delivers bodies
// published to an address to its subscribers.
type Transport interface {
	Publish(ctx context.Context, address string, data []byte) error
	Subscribe(ctx context.Context, address string, handler Handler) (Subscription, error)
}
