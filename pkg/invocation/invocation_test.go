package invocation

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

const invocationTestPrefix = "invocation:invocation_test"

func TestMethodSignature_Key(t *testing.T) {
	tests := []struct {
		sig      MethodSignature
		key      string
		variadic bool
	}{
		{MethodSignature{Name: "Now"}, "Now()", false},
		{MethodSignature{Name: "Multiply", ParamTypes: []string{"int", "int"}}, "Multiply(int,int)", false},
		{MethodSignature{Name: "Add", ParamTypes: []string{"...int"}}, "Add(...int)", true},
		{MethodSignature{Name: "Substract", ParamTypes: []string{"int", "...int"}}, "Substract(int,...int)", true},
	}
	for _, tt := range tests {
		if got := tt.sig.Key(); got != tt.key {
			t.Errorf("%s - Key() = %q, want %q", invocationTestPrefix, got, tt.key)
		}
		if got := tt.sig.Variadic(); got != tt.variadic {
			t.Errorf("%s - %s Variadic() = %v, want %v", invocationTestPrefix, tt.key, got, tt.variadic)
		}
	}
}

func TestNewDescriptor_UniqueIDs(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		d := NewDescriptor("ns", MethodSignature{Name: "M"}, nil)
		if d.InvocationID == "" {
			t.Fatalf("%s - empty invocation id", invocationTestPrefix)
		}
		if seen[d.InvocationID] {
			t.Fatalf("%s - duplicate invocation id %s", invocationTestPrefix, d.InvocationID)
		}
		seen[d.InvocationID] = true
	}
}

func TestResponse_Err(t *testing.T) {
	if err := NewResult("a", []byte("1")).Err(); err != nil {
		t.Errorf("%s - successful response returned error %v", invocationTestPrefix, err)
	}

	err := NewErrorResponse("b", "Overflow", "too big").Err()
	var remote *RemoteInvocationError
	if !errors.As(err, &remote) {
		t.Fatalf("%s - expected *RemoteInvocationError, got %T", invocationTestPrefix, err)
	}
	if remote.Kind != "Overflow" || remote.Message != "too big" || remote.InvocationID != "b" {
		t.Errorf("%s - unexpected remote error %+v", invocationTestPrefix, remote)
	}
	if errors.Is(err, ErrNoSuchProcedure) {
		t.Errorf("%s - Overflow must not match ErrNoSuchProcedure", invocationTestPrefix)
	}

	err = NewErrorResponse("c", KindNoSuchProcedure, "nothing bound").Err()
	if !errors.Is(err, ErrNoSuchProcedure) {
		t.Errorf("%s - expected errors.Is(err, ErrNoSuchProcedure)", invocationTestPrefix)
	}

	err = (&Response{InvocationID: "d"}).Err()
	if !errors.As(err, &remote) || remote.Kind != KindInternal {
		t.Errorf("%s - failed response without payload should be INTERNAL_ERROR, got %v", invocationTestPrefix, err)
	}
}

func TestTimeoutError(t *testing.T) {
	err := error(&TimeoutError{InvocationID: "x", Timeout: 50 * time.Millisecond})
	if !errors.Is(err, ErrInvocationTimeout) {
		t.Errorf("%s - TimeoutError must match ErrInvocationTimeout", invocationTestPrefix)
	}
	if err.Error() != "invocation x timed out after 50ms" {
		t.Errorf("%s - Error() = %q", invocationTestPrefix, err.Error())
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    string
		wantMessage string
	}{
		{"explicit kind", NewError("Overflow", "too big"), "Overflow", "too big"},
		{"wrapped explicit kind", fmt.Errorf("add: %w", NewError("Overflow", "too big")), "Overflow", "too big"},
		{"remote passthrough", &RemoteInvocationError{Kind: "Upstream", Message: "down"}, "Upstream", "down"},
		{"plain error", errors.New("boom"), "errors.errorString", "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.wantKind {
				t.Errorf("%s - KindOf() = %q, want %q", invocationTestPrefix, got, tt.wantKind)
			}
			if got := MessageOf(tt.err); got != tt.wantMessage {
				t.Errorf("%s - MessageOf() = %q, want %q", invocationTestPrefix, got, tt.wantMessage)
			}
		})
	}
}
