// Package comms carries invocations over COMMS (NATS) subjects derived from a
// channel name: one subject toward implementations, one toward callers.
package comms

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	comms "github.com/nats-io/nats.go"

	"github.com/MeteorMsg/Meteor/pkg/commsutil"
	"github.com/MeteorMsg/Meteor/pkg/transport"
)

const logPrefix = "comms:comms"

// Opts configures a Transport. Nil or zero values use defaults.
type Opts struct {
	// Channel is the base name both subjects are derived from.
	Channel string
	// OwnsConn makes Close drain and close the connection.
	OwnsConn bool
}

// Transport publishes and subscribes on two COMMS subjects.
type Transport struct {
	nc       *comms.Conn
	subjects map[transport.Direction]string
	ownsConn bool

	mu     sync.Mutex
	subs   []*comms.Subscription
	closed bool
}

// New creates a Transport over nc. Pass nil for opts to use defaults.
func New(nc *comms.Conn, opts *Opts) *Transport {
	channel := commsutil.DefaultChannel
	owns := false
	if opts != nil {
		if opts.Channel != "" {
			channel = opts.Channel
		}
		owns = opts.OwnsConn
	}
	return &Transport{
		nc:       nc,
		subjects: commsutil.BuildTopics(channel),
		ownsConn: owns,
	}
}

// Dial connects to url and returns a Transport that owns the connection.
func Dial(url, name, channel string) (*Transport, error) {
	nc, err := commsutil.Connect(url, name, commsutil.ConnectOpts{})
	if err != nil {
		return nil, err
	}
	return New(nc, &Opts{Channel: channel, OwnsConn: true}), nil
}

// Subject returns the subject used for dir.
func (t *Transport) Subject(dir transport.Direction) string {
	return t.subjects[dir]
}

// Send publishes payload on the subject for dir.
func (t *Transport) Send(ctx context.Context, dir transport.Direction, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	subject := t.subjects[dir]
	if err := t.nc.Publish(subject, payload); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to publish to %s: %v", logPrefix, subject, err))
		return fmt.Errorf("%s - failed to publish to %s: %w", logPrefix, subject, err)
	}
	return nil
}

// Subscribe delivers every message on the subject for dir to handler.
func (t *Transport) Subscribe(dir transport.Direction, handler transport.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}

	subject := t.subjects[dir]
	sub, err := t.nc.Subscribe(subject, func(msg *comms.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("%s - failed to subscribe to %s: %w", logPrefix, subject, err)
	}
	// Make sure the server knows about the subscription before anything is sent.
	if err := t.nc.Flush(); err != nil {
		slog.Warn(fmt.Sprintf("%s - flush after subscribing to %s failed: %v", logPrefix, subject, err))
	}
	t.subs = append(t.subs, sub)
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", logPrefix, subject))
	return nil
}

// Ping reports whether the connection is up and the server answers a flush.
func (t *Transport) Ping(ctx context.Context) error {
	if !t.nc.IsConnected() {
		return fmt.Errorf("%s - not connected (status %s)", logPrefix, t.nc.Status())
	}
	if err := t.nc.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("%s - flush failed: %w", logPrefix, err)
	}
	return nil
}

// Close unsubscribes and, when the transport owns the connection, drains it.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	subs := t.subs
	t.subs = nil
	t.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn(fmt.Sprintf("%s - failed to unsubscribe from %s: %v", logPrefix, sub.Subject, err))
		}
	}
	if t.ownsConn {
		if err := t.nc.Drain(); err != nil {
			return fmt.Errorf("%s - failed to drain connection: %w", logPrefix, err)
		}
	}
	slog.Info(fmt.Sprintf("%s - Transport closed", logPrefix))
	return nil
}
