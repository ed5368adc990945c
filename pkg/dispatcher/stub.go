package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/MeteorMsg/Meteor/pkg/invocation"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

const stubLogPrefix = "dispatcher:stub"

// Invoker sends a descriptor and waits for its result.
type Invoker interface {
	Invoke(ctx context.Context, d *invocation.Descriptor, timeout time.Duration) ([]byte, error)
}

// Stub is the caller side of a ServiceDesc bound to one namespace.
type Stub struct {
	namespace  string
	desc       *ServiceDesc
	invoker    Invoker
	serializer serializer.Serializer
	timeout    time.Duration
}

// NewStub creates a Stub. An empty namespace selects desc's default namespace.
func NewStub(namespace string, desc *ServiceDesc, invoker Invoker, s serializer.Serializer, timeout time.Duration) *Stub {
	if namespace == "" {
		namespace = desc.DefaultNamespace()
	}
	if s == nil {
		s = serializer.Default
	}
	return &Stub{namespace: namespace, desc: desc, invoker: invoker, serializer: s, timeout: timeout}
}

// Namespace returns the namespace the stub calls into.
func (s *Stub) Namespace() string {
	return s.namespace
}

// Interface returns the interface identity the stub calls.
func (s *Stub) Interface() string {
	return s.desc.Interface
}

// Call invokes method remotely and decodes the result into reply, which may be
// nil. A variadic tail is passed as a single slice argument.
func (s *Stub) Call(ctx context.Context, method string, reply any, args ...any) error {
	m, err := s.desc.methodForCall(method, len(args))
	if err != nil {
		return err
	}
	encoded, err := EncodeArgs(s.serializer, args...)
	if err != nil {
		return fmt.Errorf("%s - failed to encode arguments of %s: %w", stubLogPrefix, method, err)
	}

	d := invocation.NewDescriptor(s.namespace, s.desc.Signature(m), encoded)
	result, err := s.invoker.Invoke(ctx, d, s.timeout)
	if err != nil {
		return err
	}
	if reply == nil || len(result) == 0 {
		return nil
	}
	if err := s.serializer.Unmarshal(result, reply); err != nil {
		return fmt.Errorf("%s - failed to decode result of %s: %w", stubLogPrefix, method, err)
	}
	return nil
}
