package mathfunctions

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MeteorMsg/Meteor/pkg/dispatcher"
	"github.com/MeteorMsg/Meteor/pkg/invocation"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

const mathTestPrefix = "mathfunctions:mathfunctions_test"

func TestImpl(t *testing.T) {
	ctx := context.Background()
	impl := Impl{}

	tests := []struct {
		name string
		call func() (int, error)
		want int
	}{
		{"multiply", func() (int, error) { return impl.Multiply(ctx, 6, 7) }, 42},
		{"multiply by zero", func() (int, error) { return impl.Multiply(ctx, 0, 7) }, 0},
		{"add", func() (int, error) { return impl.Add(ctx, 1, 2, 3, 4, 5) }, 15},
		{"add nothing", func() (int, error) { return impl.Add(ctx) }, 0},
		{"substract", func() (int, error) { return impl.Substract(ctx, 10, 1, 2) }, 7},
		{"substract nothing", func() (int, error) { return impl.Substract(ctx, 5) }, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.call()
			if err != nil {
				t.Fatalf("%s - unexpected error: %v", mathTestPrefix, err)
			}
			if got != tt.want {
				t.Errorf("%s - got %d, want %d", mathTestPrefix, got, tt.want)
			}
		})
	}
}

func TestImpl_Overflow(t *testing.T) {
	ctx := context.Background()
	impl := Impl{}

	calls := map[string]func() (int, error){
		"multiply":           func() (int, error) { return impl.Multiply(ctx, math.MaxInt, 2) },
		"multiply min by -1": func() (int, error) { return impl.Multiply(ctx, math.MinInt, -1) },
		"add":                func() (int, error) { return impl.Add(ctx, math.MaxInt, 1) },
		"substract":          func() (int, error) { return impl.Substract(ctx, math.MinInt, 1) },
	}
	for name, call := range calls {
		_, err := call()
		if invocation.KindOf(err) != KindOverflow {
			t.Errorf("%s - %s: expected %s, got %v", mathTestPrefix, name, KindOverflow, err)
		}
	}
}

func TestServiceDesc(t *testing.T) {
	if err := ServiceDesc.Validate(); err != nil {
		t.Fatalf("%s - ServiceDesc invalid: %v", mathTestPrefix, err)
	}
	if ServiceDesc.DefaultNamespace() != Interface {
		t.Errorf("%s - default namespace = %q", mathTestPrefix, ServiceDesc.DefaultNamespace())
	}
	if !ServiceDesc.Accepts(Impl{}) {
		t.Errorf("%s - Impl not accepted", mathTestPrefix)
	}
	if ServiceDesc.Accepts(struct{}{}) {
		t.Errorf("%s - unrelated type accepted", mathTestPrefix)
	}
}

// directInvoker dispatches without a transport.
type directInvoker struct {
	disp *dispatcher.Dispatcher
}

func (d directInvoker) Invoke(ctx context.Context, desc *invocation.Descriptor, _ time.Duration) ([]byte, error) {
	resp := d.disp.Dispatch(ctx, desc)
	if !resp.Ok {
		return nil, resp.Err()
	}
	return resp.Result, nil
}

func TestClient_ThroughDispatcher(t *testing.T) {
	reg := dispatcher.NewRegistry()
	if err := reg.Bind("", ServiceDesc, Impl{}); err != nil {
		t.Fatalf("%s - Bind: %v", mathTestPrefix, err)
	}
	inv := directInvoker{disp: dispatcher.NewDispatcher(reg, serializer.Msgpack{})}
	client := NewClient(dispatcher.NewStub("", ServiceDesc, inv, serializer.Msgpack{}, time.Second))
	ctx := context.Background()

	if client.Namespace() != Interface {
		t.Errorf("%s - client namespace = %q", mathTestPrefix, client.Namespace())
	}
	if got, err := client.Add(ctx, 1, 2, 3, 4, 5); err != nil || got != 15 {
		t.Errorf("%s - Add = %d, %v; want 15", mathTestPrefix, got, err)
	}
	if got, err := client.Multiply(ctx, 3, 4); err != nil || got != 12 {
		t.Errorf("%s - Multiply = %d, %v; want 12", mathTestPrefix, got, err)
	}
	if got, err := client.Substract(ctx, 5); err != nil || got != 5 {
		t.Errorf("%s - Substract = %d, %v; want 5", mathTestPrefix, got, err)
	}

	_, err := client.Add(ctx, math.MaxInt, 1)
	var remote *invocation.RemoteInvocationError
	if !errors.As(err, &remote) || remote.Kind != KindOverflow {
		t.Errorf("%s - expected remote overflow, got %v", mathTestPrefix, err)
	}
}
