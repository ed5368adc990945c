package mathfunctions

import (
	"context"

	"github.com/MeteorMsg/Meteor/pkg/dispatcher"
)

// ServiceDesc is the dispatch table for MathFunctions.
var ServiceDesc = &dispatcher.ServiceDesc{
	Interface: Interface,
	Accepts: func(impl any) bool {
		_, ok := impl.(MathFunctions)
		return ok
	},
	Methods: []dispatcher.MethodDesc{
		{
			Name:       "Multiply",
			ParamTypes: []string{"int", "int"},
			Handler:    multiplyHandler,
		},
		{
			Name:       "Add",
			ParamTypes: []string{"...int"},
			Handler:    addHandler,
		},
		{
			Name:       "Substract",
			ParamTypes: []string{"int", "...int"},
			Handler:    substractHandler,
		},
	},
}

func multiplyHandler(ctx context.Context, impl any, args *dispatcher.Args) (any, error) {
	var x, times int
	if err := args.Decode(0, &x); err != nil {
		return nil, err
	}
	if err := args.Decode(1, &times); err != nil {
		return nil, err
	}
	return impl.(MathFunctions).Multiply(ctx, x, times)
}

func addHandler(ctx context.Context, impl any, args *dispatcher.Args) (any, error) {
	var numbers []int
	if err := args.Decode(0, &numbers); err != nil {
		return nil, err
	}
	return impl.(MathFunctions).Add(ctx, numbers...)
}

func substractHandler(ctx context.Context, impl any, args *dispatcher.Args) (any, error) {
	var from int
	var numbers []int
	if err := args.Decode(0, &from); err != nil {
		return nil, err
	}
	if err := args.Decode(1, &numbers); err != nil {
		return nil, err
	}
	return impl.(MathFunctions).Substract(ctx, from, numbers...)
}

// Client calls MathFunctions through a stub.
type Client struct {
	stub *dispatcher.Stub
}

var _ MathFunctions = (*Client)(nil)

// NewClient wraps stub, which must have been created for ServiceDesc.
func NewClient(stub *dispatcher.Stub) *Client {
	return &Client{stub: stub}
}

// Namespace returns the namespace the client calls into.
func (c *Client) Namespace() string {
	return c.stub.Namespace()
}

func (c *Client) Multiply(ctx context.Context, x, times int) (int, error) {
	var out int
	err := c.stub.Call(ctx, "Multiply", &out, x, times)
	return out, err
}

func (c *Client) Add(ctx context.Context, numbers ...int) (int, error) {
	var out int
	err := c.stub.Call(ctx, "Add", &out, numbers)
	return out, err
}

func (c *Client) Substract(ctx context.Context, from int, numbers ...int) (int, error) {
	var out int
	err := c.stub.Call(ctx, "Substract", &out, from, numbers)
	return out, err
}
