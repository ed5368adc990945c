package dispatcher

import (
	"fmt"

	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

// ArgumentError reports an argument that could not be decoded.
type ArgumentError struct {
	Index int
	Err   error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("argument %d: %v", e.Index, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Args decodes the serialized arguments of a descriptor on demand.
type Args struct {
	serializer serializer.Serializer
	raw        [][]byte
}

// NewArgs wraps raw arguments encoded with s.
func NewArgs(s serializer.Serializer, raw [][]byte) *Args {
	return &Args{serializer: s, raw: raw}
}

// Len returns the number of encoded arguments. A variadic tail counts as one.
func (a *Args) Len() int {
	return len(a.raw)
}

// Decode unmarshals argument i into v.
func (a *Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a.raw) {
		return &ArgumentError{Index: i, Err: fmt.Errorf("out of range, have %d", len(a.raw))}
	}
	if err := a.serializer.Unmarshal(a.raw[i], v); err != nil {
		return &ArgumentError{Index: i, Err: err}
	}
	return nil
}

// EncodeArgs serializes each argument independently.
func EncodeArgs(s serializer.Serializer, args ...any) ([][]byte, error) {
	out := make([][]byte, len(args))
	for i, arg := range args {
		data, err := s.Marshal(arg)
		if err != nil {
			return nil, &ArgumentError{Index: i, Err: err}
		}
		out[i] = data
	}
	return out, nil
}
