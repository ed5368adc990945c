package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeteorMsg/Meteor/pkg/invocation"
	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes inbound descriptors to bound implementations.
type Dispatcher struct {
	registry   *Registry
	serializer serializer.Serializer
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(reg *Registry, s serializer.Serializer) *Dispatcher {
	if s == nil {
		s = serializer.Default
	}
	return &Dispatcher{registry: reg, serializer: s}
}

// Dispatch invokes the procedure named by d and returns its response. Every
// failure, including a panic in the implementation, becomes an error response.
func (d *Dispatcher) Dispatch(ctx context.Context, desc *invocation.Descriptor) *invocation.Response {
	slog.Debug(fmt.Sprintf("%s - namespace=%s method=%s id=%s", logPrefix, desc.Namespace, desc.Method, desc.InvocationID))

	service, impl, ok := d.registry.Resolve(desc.Namespace, desc.Method.Interface)
	if !ok {
		return errorResponse(desc.InvocationID, invocation.KindNoSuchProcedure,
			fmt.Sprintf("No implementation of %s in namespace %s", desc.Method.Interface, desc.Namespace))
	}
	method, ok := service.lookup(desc.Method)
	if !ok {
		return errorResponse(desc.InvocationID, invocation.KindNoSuchProcedure,
			fmt.Sprintf("Unknown method: %s", desc.Method))
	}
	if len(desc.Arguments) != len(method.ParamTypes) {
		return errorResponse(desc.InvocationID, invocation.KindInvalidArgument,
			fmt.Sprintf("%s expects %d arguments, got %d", desc.Method, len(method.ParamTypes), len(desc.Arguments)))
	}

	result, err := d.call(ctx, method, impl, NewArgs(d.serializer, desc.Arguments))
	if err != nil {
		return handlerErrorToResponse(desc.InvocationID, err)
	}
	if result == nil {
		return invocation.NewResult(desc.InvocationID, nil)
	}
	data, err := d.serializer.Marshal(result)
	if err != nil {
		slog.Error(fmt.Sprintf("%s - failed to encode result of %s: %v", logPrefix, desc.Method, err))
		return errorResponse(desc.InvocationID, invocation.KindInternal, "Failed to encode result")
	}
	return invocation.NewResult(desc.InvocationID, data)
}

func (d *Dispatcher) call(ctx context.Context, method *MethodDesc, impl any, args *Args) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - %s panicked: %v", logPrefix, method.Name, r))
			err = &panicError{value: r}
		}
	}()
	return method.Handler(ctx, impl, args)
}

// --- helpers ---

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("%v", e.value)
}

func errorResponse(id, kind, message string) *invocation.Response {
	return invocation.NewErrorResponse(id, kind, message)
}

func handlerErrorToResponse(id string, err error) *invocation.Response {
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		return errorResponse(id, invocation.KindInvalidArgument, argErr.Error())
	}
	var pe *panicError
	if errors.As(err, &pe) {
		return errorResponse(id, invocation.KindPanic, pe.Error())
	}
	return errorResponse(id, invocation.KindOf(err), invocation.MessageOf(err))
}
