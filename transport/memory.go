package transport

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/Alfresco/gytheio-sub001/errors"
)

// DefaultMemoryBuffer is the per-subscription queue length of Memory.
const DefaultMemoryBuffer = 256

// Memory is an in-process Transport. Every subscriber of an address gets a
// copy of each message; publishing to an address without subscribers is a
// no-op. Each subscription delivers on its own goroutine, so handlers may
// publish without deadlocking.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySubscription
	buffer int
	closed bool
}

var _ Transport = (*Memory)(nil)

// NewMemory creates an in-memory transport.
func NewMemory() *Memory {
	return &Memory{
		subs:   make(map[string][]*memorySubscription),
		buffer: DefaultMemoryBuffer,
	}
}

// Publish enqueues data for every subscriber of address. It blocks while a
// subscriber queue is full, until ctx is done.
func (m *Memory) Publish(ctx context.Context, address string, data []byte) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errors.Messaging(fmt.Errorf("transport closed"), "MemoryTransport", "Publish", "publish to "+address)
	}
	subs := slices.Clone(m.subs[address])
	m.mu.RUnlock()

	for _, sub := range subs {
		msg := slices.Clone(data)
		select {
		case sub.queue <- msg:
		case <-sub.done:
		case <-ctx.Done():
			return errors.Messaging(ctx.Err(), "MemoryTransport", "Publish", "publish to "+address)
		}
	}
	return nil
}

// Subscribe registers handler for address. Handlers run with ctx.
func (m *Memory) Subscribe(ctx context.Context, address string, handler Handler) (Subscription, error) {
	if handler == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "MemoryTransport", "Subscribe", "handler validation")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errors.Messaging(fmt.Errorf("transport closed"), "MemoryTransport", "Subscribe", "subscribe to "+address)
	}

	sub := &memorySubscription{
		owner:   m,
		address: address,
		queue:   make(chan []byte, m.buffer),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	m.subs[address] = append(m.subs[address], sub)
	go sub.run(ctx, handler)
	return sub, nil
}

// Close stops every subscription. Further publishes fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	var all []*memorySubscription
	for _, subs := range m.subs {
		all = append(all, subs...)
	}
	m.subs = make(map[string][]*memorySubscription)
	m.mu.Unlock()

	for _, sub := range all {
		sub.stop()
	}
	return nil
}

func (m *Memory) remove(sub *memorySubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subs[sub.address]
	if i := slices.Index(subs, sub); i >= 0 {
		m.subs[sub.address] = slices.Delete(subs, i, i+1)
	}
	if len(m.subs[sub.address]) == 0 {
		delete(m.subs, sub.address)
	}
}

type memorySubscription struct {
	owner    *Memory
	address  string
	queue    chan []byte
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

func (s *memorySubscription) run(ctx context.Context, handler Handler) {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case data := <-s.queue:
			handler(ctx, data)
		}
	}
}

func (s *memorySubscription) stop() {
	s.stopOnce.Do(func() { close(s.done) })
	<-s.stopped
}

// Unsubscribe stops delivery and waits for an in-flight handler to return.
// Queued messages are discarded. It must not be called from the handler.
func (s *memorySubscription) Unsubscribe() error {
	s.owner.remove(s)
	s.stop()
	return nil
}
