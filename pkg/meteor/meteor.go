// Package meteor wires a transport, a serializer, the invocation tracker and
// the procedure registry into one endpoint that can both call and serve
// remote procedures.
package meteor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MeteorMsg/Meteor/pkg/dispatcher"
	"github.com/MeteorMsg/Meteor/pkg/invocation"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
	"github.com/MeteorMsg/Meteor/pkg/tracker"
	"github.com/MeteorMsg/Meteor/pkg/transport"
)

const logPrefix = "meteor:meteor"

// ErrNoMatchingInterface is returned when an implementation satisfies no
// interface in the service catalog.
var ErrNoMatchingInterface = errors.New("implementation matches no registered interface")

// Meteor is one endpoint on a bus.
type Meteor struct {
	transport     transport.Transport
	serializer    serializer.Serializer
	timeout       time.Duration
	ignoreUnknown bool

	tracker    *tracker.Tracker
	registry   *dispatcher.Registry
	dispatcher *dispatcher.Dispatcher

	mu              sync.RWMutex
	services        []*dispatcher.ServiceDesc
	pendingServices []*dispatcher.ServiceDesc

	ctx     context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
	started time.Time
}

// New creates a Meteor over t and subscribes to both directions.
func New(t transport.Transport, opts ...Option) (*Meteor, error) {
	if t == nil {
		return nil, fmt.Errorf("%s - transport is required", logPrefix)
	}
	m := &Meteor{
		transport:  t,
		serializer: serializer.Default,
		timeout:    DefaultTimeout,
		registry:   dispatcher.NewRegistry(),
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.timeout <= 0 {
		return nil, fmt.Errorf("%s - %w: got %s", logPrefix, invocation.ErrInvalidTimeout, m.timeout)
	}
	for _, desc := range m.pendingServices {
		if err := m.RegisterService(desc); err != nil {
			return nil, err
		}
	}
	m.pendingServices = nil

	m.tracker = tracker.New(t, m.serializer)
	m.dispatcher = dispatcher.NewDispatcher(m.registry, m.serializer)
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if err := t.Subscribe(transport.ToImplementation, m.onDescriptor); err != nil {
		m.cancel()
		return nil, fmt.Errorf("%s - failed to subscribe toward implementation: %w", logPrefix, err)
	}
	if err := t.Subscribe(transport.ToCaller, m.onResponse); err != nil {
		m.cancel()
		return nil, fmt.Errorf("%s - failed to subscribe toward caller: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Meteor started serializer=%s timeout=%s", logPrefix, m.serializer.Name(), m.timeout))
	return m, nil
}

// onDescriptor handles one inbound invocation. Dispatch runs on its own
// goroutine so a slow implementation never blocks the transport's delivery.
func (m *Meteor) onDescriptor(payload []byte) {
	if m.closed.Load() {
		return
	}
	d, err := invocation.DecodeDescriptor(m.serializer, payload)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping undecodable descriptor: %v", logPrefix, err))
		return
	}
	go m.serve(d)
}

func (m *Meteor) serve(d *invocation.Descriptor) {
	resp := m.dispatcher.Dispatch(m.ctx, d)
	if m.ignoreUnknown && !resp.Ok && resp.Error != nil && resp.Error.Kind == invocation.KindNoSuchProcedure {
		slog.Debug(fmt.Sprintf("%s - ignoring %s in namespace %s, not hosted here", logPrefix, d.Method, d.Namespace))
		return
	}

	data, err := invocation.EncodeResponse(m.serializer, resp)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode response for %s: %v", logPrefix, d.InvocationID, err))
		return
	}
	if m.closed.Load() {
		return
	}
	if err := m.transport.Send(m.ctx, transport.ToCaller, data); err != nil {
		slog.Error(fmt.Sprintf("%s - failed to send response for %s: %v", logPrefix, d.InvocationID, err))
	}
}

func (m *Meteor) onResponse(payload []byte) {
	resp, err := invocation.DecodeResponse(m.serializer, payload)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - dropping undecodable response: %v", logPrefix, err))
		return
	}
	m.tracker.Complete(resp)
}

// RegisterService adds desc to the service catalog. Registering the same
// interface again replaces the previous description.
func (m *Meteor) RegisterService(desc *dispatcher.ServiceDesc) error {
	if err := desc.Validate(); err != nil {
		return fmt.Errorf("%s - %w", logPrefix, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.services {
		if existing.Interface == desc.Interface {
			m.services[i] = desc
			return nil
		}
	}
	m.services = append(m.services, desc)
	return nil
}

// RegisterProcedure returns a caller stub for desc in namespace. An empty
// namespace selects the interface's default namespace. An invalid desc
// yields ErrInvalidServiceDesc and no stub.
func (m *Meteor) RegisterProcedure(desc *dispatcher.ServiceDesc, namespace string) (*dispatcher.Stub, error) {
	if err := m.RegisterService(desc); err != nil {
		return nil, err
	}
	stub := dispatcher.NewStub(namespace, desc, m.tracker, m.serializer, m.timeout)
	slog.Debug(fmt.Sprintf("%s - registered procedure %s namespace=%s", logPrefix, desc.Interface, stub.Namespace()))
	return stub, nil
}

// RegisterImplementation binds impl under every catalogued interface it
// satisfies. It returns the bound interface identities.
func (m *Meteor) RegisterImplementation(impl any, namespace string) ([]string, error) {
	m.mu.RLock()
	services := append([]*dispatcher.ServiceDesc(nil), m.services...)
	m.mu.RUnlock()

	var bound []string
	for _, desc := range services {
		if impl == nil || !desc.Accepts(impl) {
			continue
		}
		if err := m.registry.Bind(namespace, desc, impl); err != nil {
			return bound, fmt.Errorf("%s - %w", logPrefix, err)
		}
		bound = append(bound, desc.Interface)
	}
	if len(bound) == 0 {
		return nil, fmt.Errorf("%s - %w: %T", logPrefix, ErrNoMatchingInterface, impl)
	}
	return bound, nil
}

// Invoke sends d and waits for its result using the configured timeout.
func (m *Meteor) Invoke(ctx context.Context, d *invocation.Descriptor) ([]byte, error) {
	return m.tracker.Invoke(ctx, d, m.timeout)
}

// Procedures lists the bound implementations.
func (m *Meteor) Procedures() []dispatcher.Binding {
	return m.registry.Bindings()
}

// Close fails pending invocations with ErrShuttingDown and closes the
// transport. It is safe to call more than once.
func (m *Meteor) Close() error {
	if m.closed.Swap(true) {
		return nil
	}
	m.tracker.Close()
	m.cancel()
	if err := m.transport.Close(); err != nil {
		return fmt.Errorf("%s - failed to close transport: %w", logPrefix, err)
	}
	slog.Info(fmt.Sprintf("%s - Meteor closed", logPrefix))
	return nil
}
