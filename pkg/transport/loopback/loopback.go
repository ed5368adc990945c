// Package loopback is an in-process transport. Transports connected to the
// same Bus see each other's messages, which lets callers and implementations
// live in one process, or in tests, without a broker.
//
// Every delivery runs on its own goroutine, the way a broker client hands
// messages to a delivery thread. No ordering between messages is guaranteed.
package loopback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/MeteorMsg/Meteor/pkg/transport"
)

const logPrefix = "loopback:loopback"

// Stats is a snapshot of bus counters.
type Stats struct {
	Published uint64
	Delivered uint64
}

type subscription struct {
	owner   *Transport
	handler transport.Handler
}

// Bus fans payloads out to every subscription of the matching direction.
type Bus struct {
	mu            sync.RWMutex
	subscriptions map[transport.Direction][]subscription

	published atomic.Uint64
	delivered atomic.Uint64
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{subscriptions: make(map[transport.Direction][]subscription)}
}

// Connect returns a new Transport attached to b.
func (b *Bus) Connect() *Transport {
	return &Transport{bus: b}
}

// Stats returns current counters.
func (b *Bus) Stats() Stats {
	return Stats{Published: b.published.Load(), Delivered: b.delivered.Load()}
}

func (b *Bus) publish(dir transport.Direction, payload []byte) {
	b.published.Add(1)

	b.mu.RLock()
	subs := b.subscriptions[dir]
	b.mu.RUnlock()

	for _, sub := range subs {
		data := append([]byte(nil), payload...)
		handler := sub.handler
		b.delivered.Add(1)
		go handler(data)
	}
}

func (b *Bus) subscribe(owner *Transport, dir transport.Direction, handler transport.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy on write so publish can range over a snapshot without the lock.
	subs := make([]subscription, 0, len(b.subscriptions[dir])+1)
	subs = append(subs, b.subscriptions[dir]...)
	b.subscriptions[dir] = append(subs, subscription{owner: owner, handler: handler})
}

func (b *Bus) detach(owner *Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for dir, subs := range b.subscriptions {
		kept := make([]subscription, 0, len(subs))
		for _, sub := range subs {
			if sub.owner != owner {
				kept = append(kept, sub)
			}
		}
		b.subscriptions[dir] = kept
	}
}

// Transport is one participant on a Bus.
type Transport struct {
	bus    *Bus
	closed atomic.Bool
}

// New returns a Transport on a private Bus.
func New() *Transport {
	return NewBus().Connect()
}

// Send publishes payload to every subscriber of dir on the bus.
func (t *Transport) Send(ctx context.Context, dir transport.Direction, payload []byte) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.bus.publish(dir, payload)
	return nil
}

// Subscribe registers handler for dir.
func (t *Transport) Subscribe(dir transport.Direction, handler transport.Handler) error {
	if t.closed.Load() {
		return transport.ErrClosed
	}
	if handler == nil {
		return fmt.Errorf("%s - nil handler for %s", logPrefix, dir)
	}
	t.bus.subscribe(t, dir, handler)
	slog.Debug(fmt.Sprintf("%s - subscribed to %s", logPrefix, dir))
	return nil
}

// Close detaches the transport's subscriptions from the bus.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.bus.detach(t)
	return nil
}
