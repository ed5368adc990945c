package invocation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MeteorMsg/Meteor/pkg/transport"
)

var (
	ErrInvocationTimeout   = errors.New("invocation timed out")
	ErrNoSuchProcedure     = errors.New("no such procedure")
	ErrTransportClosed     = transport.ErrClosed
	ErrShuttingDown        = errors.New("shutting down")
	ErrDuplicateInvocation = errors.New("duplicate invocation id")
	ErrInvalidTimeout      = errors.New("timeout must be positive")
	ErrIncompatibleVersion = errors.New("incompatible protocol version")
	ErrMalformed           = errors.New("malformed invocation message")
)

// Error kinds produced by the dispatcher itself.
const (
	KindNoSuchProcedure = "NO_SUCH_PROCEDURE"
	KindInvalidArgument = "INVALID_ARGUMENT"
	KindPanic           = "PANIC"
	KindInternal        = "INTERNAL_ERROR"
)

// Error lets an implementation choose the kind reported to the caller.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string {
	return e.Kind + ": " + e.Message
}

// NewError creates an implementation error with an explicit kind.
func NewError(kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// RemoteInvocationError is returned to a caller when the implementation failed.
type RemoteInvocationError struct {
	InvocationID string
	Kind         string
	Message      string
}

func (e *RemoteInvocationError) Error() string {
	return e.Kind + ": " + e.Message
}

// Is makes errors.Is(err, ErrNoSuchProcedure) hold for unresolved procedures.
func (e *RemoteInvocationError) Is(target error) bool {
	return target == ErrNoSuchProcedure && e.Kind == KindNoSuchProcedure
}

// TimeoutError reports that no response arrived before the deadline. The
// remote outcome is unknown.
type TimeoutError struct {
	InvocationID string
	Timeout      time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("invocation %s timed out after %s", e.InvocationID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrInvocationTimeout
}

// KindOf returns the kind carried in an error payload for err.
func KindOf(err error) string {
	var implErr *Error
	if errors.As(err, &implErr) {
		return implErr.Kind
	}
	var remoteErr *RemoteInvocationError
	if errors.As(err, &remoteErr) {
		return remoteErr.Kind
	}
	return strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
}

// MessageOf returns the message carried in an error payload for err.
func MessageOf(err error) string {
	var implErr *Error
	if errors.As(err, &implErr) {
		return implErr.Message
	}
	var remoteErr *RemoteInvocationError
	if errors.As(err, &remoteErr) {
		return remoteErr.Message
	}
	return err.Error()
}
