// Package transport defines the pub/sub contract the invocation engine is built on.
package transport

import (
	"context"
	"errors"
	"fmt"
)

// ErrClosed is returned by Send and Subscribe after Close.
var ErrClosed = errors.New("transport closed")

// Direction selects one of the two logical channels on a shared transport.
type Direction int

const (
	// ToImplementation carries invocation descriptors from callers to implementations.
	ToImplementation Direction = iota
	// ToCaller carries invocation responses back to callers.
	ToCaller
)

// String returns the channel suffix used to derive topic names.
func (d Direction) String() string {
	switch d {
	case ToImplementation:
		return "towardimplementation"
	case ToCaller:
		return "towardcaller"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Directions lists both logical channels.
func Directions() []Direction {
	return []Direction{ToImplementation, ToCaller}
}

// Handler receives one inbound payload. Delivery is at-most-once but duplicates
// must be tolerated.
type Handler func(payload []byte)

// Transport is a directional send/subscribe primitive.
type Transport interface {
	// Send publishes payload on the given direction.
	Send(ctx context.Context, dir Direction, payload []byte) error

	// Subscribe registers handler for every inbound payload on dir.
	Subscribe(dir Direction, handler Handler) error

	// Close releases the transport. Later Send and Subscribe calls return ErrClosed.
	Close() error
}
