// Package dispatcher binds implementations to namespaces and routes inbound
// invocation descriptors to them.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/MeteorMsg/Meteor/pkg/invocation"
)

var (
	ErrInvalidServiceDesc     = errors.New("invalid service description")
	ErrImplementationMismatch = errors.New("implementation does not satisfy interface")
)

// HandlerFunc decodes the arguments of one method, calls it on impl and
// returns the value to be serialized back to the caller.
type HandlerFunc func(ctx context.Context, impl any, args *Args) (any, error)

// MethodDesc is one entry of a dispatch table.
type MethodDesc struct {
	Name       string
	ParamTypes []string
	Handler    HandlerFunc
}

// ServiceDesc describes a remotely callable interface.
type ServiceDesc struct {
	// Interface is the canonical interface identity carried on the wire.
	Interface string
	Methods   []MethodDesc
	// Accepts reports whether impl implements the interface.
	Accepts func(impl any) bool
}

// DefaultNamespace is the namespace used when none is given.
func (s *ServiceDesc) DefaultNamespace() string {
	return s.Interface
}

// Signature returns the wire signature of m.
func (s *ServiceDesc) Signature(m *MethodDesc) invocation.MethodSignature {
	return invocation.MethodSignature{
		Interface:  s.Interface,
		Name:       m.Name,
		ParamTypes: m.ParamTypes,
	}
}

// Validate checks that the dispatch table is usable.
func (s *ServiceDesc) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil", ErrInvalidServiceDesc)
	}
	if s.Interface == "" {
		return fmt.Errorf("%w: missing interface identity", ErrInvalidServiceDesc)
	}
	if s.Accepts == nil {
		return fmt.Errorf("%w: %s has no Accepts func", ErrInvalidServiceDesc, s.Interface)
	}
	seen := make(map[string]bool, len(s.Methods))
	for i := range s.Methods {
		m := &s.Methods[i]
		if m.Name == "" || m.Handler == nil {
			return fmt.Errorf("%w: %s method %d is incomplete", ErrInvalidServiceDesc, s.Interface, i)
		}
		sig := s.Signature(m)
		if seen[sig.Key()] {
			return fmt.Errorf("%w: %s declares %s twice", ErrInvalidServiceDesc, s.Interface, sig.Key())
		}
		seen[sig.Key()] = true
	}
	return nil
}

// lookup finds the method matching sig. An exact parameter match wins; a
// signature without parameter types matches by name when the name is unique.
func (s *ServiceDesc) lookup(sig invocation.MethodSignature) (*MethodDesc, bool) {
	key := sig.Key()
	var byName *MethodDesc
	named := 0
	for i := range s.Methods {
		m := &s.Methods[i]
		if s.Signature(m).Key() == key {
			return m, true
		}
		if m.Name == sig.Name {
			byName = m
			named++
		}
	}
	if len(sig.ParamTypes) == 0 && named == 1 {
		return byName, true
	}
	return nil, false
}

// methodForCall picks the method a caller means by name and argument count.
func (s *ServiceDesc) methodForCall(name string, argc int) (*MethodDesc, error) {
	var match *MethodDesc
	for i := range s.Methods {
		m := &s.Methods[i]
		if m.Name != name || len(m.ParamTypes) != argc {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%w: %s.%s is ambiguous for %d arguments", invocation.ErrNoSuchProcedure, s.Interface, name, argc)
		}
		match = m
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s.%s with %d arguments", invocation.ErrNoSuchProcedure, s.Interface, name, argc)
	}
	return match, nil
}
