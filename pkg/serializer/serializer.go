// Package serializer provides the byte codecs used for invocation descriptors,
// responses and individual argument values.
package serializer

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer encodes values to bytes and back. Implementations must round-trip
// every type they accept.
type Serializer interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Known serializer names.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// JSON is the default serializer.
type JSON struct{}

func (JSON) Name() string { return NameJSON }

// Marshal serializes a value to JSON bytes.
func (JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal deserializes JSON bytes into v.
func (JSON) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Msgpack is a compact binary serializer.
type Msgpack struct{}

func (Msgpack) Name() string { return NameMsgpack }

func (Msgpack) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// Default is used when no serializer is configured.
var Default Serializer = JSON{}

// ByName returns the serializer registered under name. An empty name yields Default.
func ByName(name string) (Serializer, error) {
	switch name {
	case "", NameJSON:
		return JSON{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("serializer: unknown serializer %q (use json or msgpack)", name)
	}
}
