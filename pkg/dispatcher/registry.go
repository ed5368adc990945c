package dispatcher

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

const registryLogPrefix = "dispatcher:registry"

type bindingKey struct {
	namespace string
	iface     string
}

type boundService struct {
	desc *ServiceDesc
	impl any
}

// Binding describes one bound implementation.
type Binding struct {
	Namespace string   `json:"namespace"`
	Interface string   `json:"interface"`
	Methods   []string `json:"methods"`
}

// Registry maps (namespace, interface) to a bound implementation.
type Registry struct {
	mu       sync.RWMutex
	bindings map[bindingKey]boundService
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[bindingKey]boundService)}
}

// Bind binds impl to desc under namespace, replacing any previous binding.
// An empty namespace selects desc's default namespace.
func (r *Registry) Bind(namespace string, desc *ServiceDesc, impl any) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if impl == nil || !desc.Accepts(impl) {
		return fmt.Errorf("%w: %T is not a %s", ErrImplementationMismatch, impl, desc.Interface)
	}
	if namespace == "" {
		namespace = desc.DefaultNamespace()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	key := bindingKey{namespace: namespace, iface: desc.Interface}
	if _, exists := r.bindings[key]; exists {
		slog.Warn(fmt.Sprintf("%s - replacing binding namespace=%s interface=%s", registryLogPrefix, namespace, desc.Interface))
	}
	r.bindings[key] = boundService{desc: desc, impl: impl}
	slog.Info(fmt.Sprintf("%s - bound %T namespace=%s interface=%s", registryLogPrefix, impl, namespace, desc.Interface))
	return nil
}

// Unbind removes a binding. It reports whether one existed.
func (r *Registry) Unbind(namespace, iface string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := bindingKey{namespace: namespace, iface: iface}
	if _, ok := r.bindings[key]; !ok {
		return false
	}
	delete(r.bindings, key)
	return true
}

// Resolve returns the dispatch table and implementation bound to (namespace, iface).
func (r *Registry) Resolve(namespace, iface string) (*ServiceDesc, any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bindings[bindingKey{namespace: namespace, iface: iface}]
	if !ok {
		return nil, nil, false
	}
	return b.desc, b.impl, true
}

// Len returns the number of bindings.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// Bindings lists every binding ordered by namespace then interface.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	out := make([]Binding, 0, len(r.bindings))
	for key, b := range r.bindings {
		methods := make([]string, 0, len(b.desc.Methods))
		for i := range b.desc.Methods {
			methods = append(methods, b.desc.Signature(&b.desc.Methods[i]).Key())
		}
		out = append(out, Binding{Namespace: key.namespace, Interface: key.iface, Methods: methods})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Interface < out[j].Interface
	})
	return out
}
