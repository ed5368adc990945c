// Package mathfunctions is the example service: a small arithmetic interface,
// its implementation, and the dispatch table and client that carry it over a bus.
package mathfunctions

import (
	"context"
	"fmt"
	"math"

	"github.com/MeteorMsg/Meteor/pkg/invocation"
)

// Interface is the canonical identity of MathFunctions on the wire.
const Interface = "github.com/MeteorMsg/Meteor/internal/mathfunctions.MathFunctions"

// NamespaceCooler is the second namespace the demo binds an implementation under.
const NamespaceCooler = "Cooler-math-functions"

// KindOverflow is reported when a result does not fit in an int.
const KindOverflow = "OVERFLOW"

// MathFunctions is callable locally or remotely.
type MathFunctions interface {
	Multiply(ctx context.Context, x, times int) (int, error)
	Add(ctx context.Context, numbers ...int) (int, error)
	Substract(ctx context.Context, from int, numbers ...int) (int, error)
}

// Impl is the reference implementation.
type Impl struct{}

var _ MathFunctions = Impl{}

func (Impl) Multiply(_ context.Context, x, times int) (int, error) {
	if x == 0 || times == 0 {
		return 0, nil
	}
	result := x * times
	if result/times != x || (x == -1 && times == math.MinInt) || (times == -1 && x == math.MinInt) {
		return 0, invocation.NewError(KindOverflow, fmt.Sprintf("%d * %d overflows", x, times))
	}
	return result, nil
}

func (Impl) Add(_ context.Context, numbers ...int) (int, error) {
	result := 0
	for _, n := range numbers {
		if (n > 0 && result > math.MaxInt-n) || (n < 0 && result < math.MinInt-n) {
			return 0, invocation.NewError(KindOverflow, fmt.Sprintf("sum overflows at %d", n))
		}
		result += n
	}
	return result, nil
}

func (Impl) Substract(_ context.Context, from int, numbers ...int) (int, error) {
	result := from
	for _, n := range numbers {
		if (n < 0 && result > math.MaxInt+n) || (n > 0 && result < math.MinInt+n) {
			return 0, invocation.NewError(KindOverflow, fmt.Sprintf("difference overflows at %d", n))
		}
		result -= n
	}
	return result, nil
}
