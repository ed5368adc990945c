package meteor

import (
	"time"

	"github.com/MeteorMsg/Meteor/pkg/dispatcher"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

// DefaultTimeout bounds every invocation unless WithTimeout overrides it.
const DefaultTimeout = 30 * time.Second

// Option configures a Meteor.
type Option func(*Meteor)

// WithSerializer sets the codec for descriptors, responses and arguments.
// Both ends of a bus must agree on it.
func WithSerializer(s serializer.Serializer) Option {
	return func(m *Meteor) {
		if s != nil {
			m.serializer = s
		}
	}
}

// WithTimeout sets the per-invocation deadline.
func WithTimeout(d time.Duration) Option {
	return func(m *Meteor) {
		m.timeout = d
	}
}

// WithServices adds interfaces to the service catalog used by RegisterImplementation.
func WithServices(descs ...*dispatcher.ServiceDesc) Option {
	return func(m *Meteor) {
		m.pendingServices = append(m.pendingServices, descs...)
	}
}

// WithIgnoreUnknownProcedures drops descriptors this process cannot resolve
// instead of answering NO_SUCH_PROCEDURE. Use it when several processes host
// different implementations on one bus.
func WithIgnoreUnknownProcedures() Option {
	return func(m *Meteor) {
		m.ignoreUnknown = true
	}
}
