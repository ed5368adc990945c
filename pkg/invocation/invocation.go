// Package invocation defines the wire model of a remote call: the descriptor
// sent toward an implementation and the response sent back to the caller.
package invocation

import (
	"strings"

	"github.com/google/uuid"
)

// MethodSignature identifies one method of one interface. ParamTypes are
// ordered type tags; a variadic tail is tagged with a leading "...".
type MethodSignature struct {
	Interface  string   `json:"interface" msgpack:"interface"`
	Name       string   `json:"name" msgpack:"name"`
	ParamTypes []string `json:"paramTypes,omitempty" msgpack:"paramTypes,omitempty"`
}

// Key is the overload-resolution key, e.g. "Substract(int,...int)".
func (s MethodSignature) Key() string {
	return s.Name + "(" + strings.Join(s.ParamTypes, ",") + ")"
}

func (s MethodSignature) String() string {
	return s.Interface + "." + s.Key()
}

// Variadic reports whether the last parameter is a variadic tail.
func (s MethodSignature) Variadic() bool {
	n := len(s.ParamTypes)
	return n > 0 && strings.HasPrefix(s.ParamTypes[n-1], "...")
}

// Descriptor is one outgoing call. Each element of Arguments holds one
// independently serialized parameter; a variadic tail occupies a single element.
type Descriptor struct {
	Version      string          `json:"v" msgpack:"v"`
	InvocationID string          `json:"id" msgpack:"id"`
	Namespace    string          `json:"namespace" msgpack:"namespace"`
	Method       MethodSignature `json:"method" msgpack:"method"`
	Arguments    [][]byte        `json:"args" msgpack:"args"`
}

// NewInvocationID returns a random 128-bit identifier.
func NewInvocationID() string {
	return uuid.NewString()
}

// NewDescriptor builds a descriptor with a fresh invocation id.
func NewDescriptor(namespace string, method MethodSignature, args [][]byte) *Descriptor {
	return &Descriptor{
		Version:      ProtocolVersion,
		InvocationID: NewInvocationID(),
		Namespace:    namespace,
		Method:       method,
		Arguments:    args,
	}
}

// ErrorDetail is the error payload of a failed invocation.
type ErrorDetail struct {
	Kind    string `json:"kind" msgpack:"kind"`
	Message string `json:"message" msgpack:"message"`
}

// Response is one reply to a Descriptor.
type Response struct {
	Version      string       `json:"v" msgpack:"v"`
	InvocationID string       `json:"id" msgpack:"id"`
	Ok           bool         `json:"ok" msgpack:"ok"`
	Result       []byte       `json:"result,omitempty" msgpack:"result,omitempty"`
	Error        *ErrorDetail `json:"error,omitempty" msgpack:"error,omitempty"`
}

// NewResult builds a successful response carrying a serialized return value.
func NewResult(invocationID string, result []byte) *Response {
	return &Response{
		Version:      ProtocolVersion,
		InvocationID: invocationID,
		Ok:           true,
		Result:       result,
	}
}

// NewErrorResponse builds a failed response.
func NewErrorResponse(invocationID, kind, message string) *Response {
	return &Response{
		Version:      ProtocolVersion,
		InvocationID: invocationID,
		Ok:           false,
		Error:        &ErrorDetail{Kind: kind, Message: message},
	}
}

// Err converts a failed response into a *RemoteInvocationError. It returns nil
// for successful responses.
func (r *Response) Err() error {
	if r.Ok {
		return nil
	}
	e := &RemoteInvocationError{InvocationID: r.InvocationID, Kind: KindInternal, Message: "invocation failed"}
	if r.Error != nil {
		e.Kind = r.Error.Kind
		e.Message = r.Error.Message
	}
	return e
}
