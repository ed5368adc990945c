package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/MeteorMsg/Meteor/internal/config"
	"github.com/MeteorMsg/Meteor/internal/mathfunctions"
	"github.com/MeteorMsg/Meteor/pkg/meteor"
	"github.com/MeteorMsg/Meteor/pkg/transport/loopback"
)

const callLogPrefix = "server:call"

// ErrUsage is returned for malformed call arguments.
var ErrUsage = errors.New("invalid call")

// ParseInts converts command-line operands to ints.
func ParseInts(args []string) ([]int, error) {
	out := make([]int, 0, len(args))
	for _, a := range args {
		n, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrUsage, a)
		}
		out = append(out, n)
	}
	return out, nil
}

// CallMath runs method on fn. Method names are case-insensitive.
func CallMath(ctx context.Context, fn mathfunctions.MathFunctions, method string, args []int) (int, error) {
	switch strings.ToLower(method) {
	case "multiply":
		if len(args) != 2 {
			return 0, fmt.Errorf("%w: multiply takes exactly 2 operands, got %d", ErrUsage, len(args))
		}
		return fn.Multiply(ctx, args[0], args[1])
	case "add":
		return fn.Add(ctx, args...)
	case "substract":
		if len(args) < 1 {
			return 0, fmt.Errorf("%w: substract needs at least 1 operand", ErrUsage)
		}
		return fn.Substract(ctx, args[0], args[1:]...)
	default:
		return 0, fmt.Errorf("%w: unknown method %q (use multiply, add or substract)", ErrUsage, method)
	}
}

// Call invokes a MathFunctions method on whichever serve process shares the
// configured bus. The caller hosts no implementations and ignores descriptors
// it cannot serve.
func Call(ctx context.Context, cfg *config.Config, namespace, method string, args []int) (int, error) {
	t, err := OpenTransport(ctx, cfg)
	if err != nil {
		return 0, err
	}
	opts, err := MeteorOptions(cfg)
	if err != nil {
		t.Close()
		return 0, err
	}
	m, err := meteor.New(t, append(opts, meteor.WithIgnoreUnknownProcedures())...)
	if err != nil {
		t.Close()
		return 0, fmt.Errorf("%s - failed to create endpoint: %w", callLogPrefix, err)
	}
	defer m.Close()

	stub, err := m.RegisterProcedure(mathfunctions.ServiceDesc, namespace)
	if err != nil {
		return 0, err
	}
	client := mathfunctions.NewClient(stub)
	slog.Debug(fmt.Sprintf("%s - calling %s in namespace %s", callLogPrefix, method, client.Namespace()))
	return CallMath(ctx, client, method, args)
}

// Demo runs the MathFunctions example on one loopback endpoint: procedures and
// implementations in the default and Cooler namespaces, results written to w.
func Demo(ctx context.Context, w io.Writer, opts ...meteor.Option) error {
	m, err := meteor.New(loopback.New(), append([]meteor.Option{meteor.WithServices(mathfunctions.ServiceDesc)}, opts...)...)
	if err != nil {
		return fmt.Errorf("%s - failed to create endpoint: %w", callLogPrefix, err)
	}
	defer m.Close()

	defaultStub, err := m.RegisterProcedure(mathfunctions.ServiceDesc, "")
	if err != nil {
		return err
	}
	coolerStub, err := m.RegisterProcedure(mathfunctions.ServiceDesc, mathfunctions.NamespaceCooler)
	if err != nil {
		return err
	}
	math := mathfunctions.NewClient(defaultStub)
	cooler := mathfunctions.NewClient(coolerStub)

	if _, err := m.RegisterImplementation(mathfunctions.Impl{}, ""); err != nil {
		return err
	}
	if _, err := m.RegisterImplementation(mathfunctions.Impl{}, mathfunctions.NamespaceCooler); err != nil {
		return err
	}

	sum, err := math.Add(ctx, 1, 2, 3, 4, 5)
	if err != nil {
		return fmt.Errorf("%s - add: %w", callLogPrefix, err)
	}
	fmt.Fprintf(w, "1 + 2 + 3 + 4 + 5 = %d\n", sum)

	product, err := cooler.Multiply(ctx, 6, 7)
	if err != nil {
		return fmt.Errorf("%s - multiply: %w", callLogPrefix, err)
	}
	fmt.Fprintf(w, "[%s] 6 * 7 = %d\n", cooler.Namespace(), product)

	diff, err := cooler.Substract(ctx, 20, 5, 3)
	if err != nil {
		return fmt.Errorf("%s - substract: %w", callLogPrefix, err)
	}
	fmt.Fprintf(w, "[%s] 20 - 5 - 3 = %d\n", cooler.Namespace(), diff)
	return nil
}
