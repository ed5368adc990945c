package invocation

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/MeteorMsg/Meteor/pkg/serializer"
)

// ProtocolVersion is stamped on every encoded descriptor and response.
const ProtocolVersion = "1.0.0"

// compatibleVersions accepts any message from the same major protocol line.
var compatibleVersions = mustConstraint("^1.0.0")

func mustConstraint(c string) *semver.Constraints {
	constraint, err := semver.NewConstraint(c)
	if err != nil {
		panic(fmt.Sprintf("invocation: invalid protocol constraint %q: %v", c, err))
	}
	return constraint
}

// CheckVersion reports whether a peer's protocol version can be understood.
func CheckVersion(v string) error {
	if v == "" {
		return fmt.Errorf("%w: missing version", ErrIncompatibleVersion)
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrIncompatibleVersion, v, err)
	}
	if !compatibleVersions.Check(ver) {
		return fmt.Errorf("%w: %s not in %s", ErrIncompatibleVersion, v, compatibleVersions)
	}
	return nil
}

// EncodeDescriptor frames d for the wire.
func EncodeDescriptor(s serializer.Serializer, d *Descriptor) ([]byte, error) {
	frame := *d
	if frame.Version == "" {
		frame.Version = ProtocolVersion
	}
	data, err := s.Marshal(&frame)
	if err != nil {
		return nil, fmt.Errorf("encode descriptor %s: %w", d.InvocationID, err)
	}
	return data, nil
}

// DecodeDescriptor parses a framed descriptor and validates its version.
func DecodeDescriptor(s serializer.Serializer, data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := s.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: descriptor: %v", ErrMalformed, err)
	}
	if err := CheckVersion(d.Version); err != nil {
		return nil, err
	}
	if d.InvocationID == "" {
		return nil, fmt.Errorf("%w: descriptor without invocation id", ErrMalformed)
	}
	return &d, nil
}

// EncodeResponse frames r for the wire.
func EncodeResponse(s serializer.Serializer, r *Response) ([]byte, error) {
	frame := *r
	if frame.Version == "" {
		frame.Version = ProtocolVersion
	}
	data, err := s.Marshal(&frame)
	if err != nil {
		return nil, fmt.Errorf("encode response %s: %w", r.InvocationID, err)
	}
	return data, nil
}

// DecodeResponse parses a framed response and validates its version.
func DecodeResponse(s serializer.Serializer, data []byte) (*Response, error) {
	var r Response
	if err := s.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: response: %v", ErrMalformed, err)
	}
	if err := CheckVersion(r.Version); err != nil {
		return nil, err
	}
	if r.InvocationID == "" {
		return nil, fmt.Errorf("%w: response without invocation id", ErrMalformed)
	}
	return &r, nil
}
