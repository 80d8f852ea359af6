// Package messaging carries events out of the session engine. The external
// broker is an out-of-scope collaborator behind the Publisher interface; Bus
// is the in-process default used when no broker is configured.
package messaging

import (
	"context"
	"errors"
	"sync"
)

var ErrBusClosed = errors.New("message bus closed")

// Publisher is the event-publishing capability the engine depends on.
// Publish must be safely retryable: delivering the same payload twice is the
// consumer's problem, not an error here.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

const subscriberBuffer = 16

// Bus is a concurrency-safe in-process topic bus with fan-out to buffered
// subscriber channels.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]chan []byte
	closed bool
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every subscriber of topic. A subscriber whose
// buffer is full causes an error so the caller's retry policy can engage.
func (b *Bus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- payload:
		default:
			return errors.New("subscriber queue full for topic " + topic)
		}
	}
	return nil
}

// Subscribe registers a new buffered channel for topic.
func (b *Bus) Subscribe(topic string) <-chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan []byte, subscriberBuffer)
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Close stops the bus and closes all subscriber channels. Further publishes
// fail with ErrBusClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, chans := range b.subs {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subs = nil
}
