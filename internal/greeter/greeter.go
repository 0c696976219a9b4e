// Package greeter holds the demo services the router ships with.
package greeter

import (
	"context"
	"errors"
	"fmt"

	"jsonrpc-router/message"
	"jsonrpc-router/server"
)

// Data is the per-router value handed to every service.
type Data struct {
	Node string // Name of the serving router
}

// Hello answers "hello" with a greeting for the string param.
var Hello = server.ServiceFunc[Data](func(ctx context.Context, req *message.Request, _ Data) (*message.Response, error) {
	if req.Method != "hello" {
		return nil, nil
	}
	var name string
	if err := req.Deserialize(&name); err != nil {
		return nil, err
	}
	return message.NewResponse(req, fmt.Sprintf("Hello, %s!", name))
})

// Echo answers "echo" with its params unchanged, and "node" with the router name.
var Echo = server.ServiceFunc[Data](func(ctx context.Context, req *message.Request, data Data) (*message.Response, error) {
	switch req.Method {
	case "echo":
		return &message.Response{JSONRPC: message.Version, Result: req.Params, ID: req.ID}, nil
	case "node":
		return message.NewResponse(req, data.Node)
	}
	return nil, nil
})

type Operands struct {
	A int `json:"a"`
	B int `json:"b"`
}

var errDivideByZero = errors.New("divide by zero")

// Math is exposed under the "math" namespace.
type Math struct{}

func (Math) Add(ctx context.Context, _ Data, op Operands) (int, error) {
	return op.A + op.B, nil
}

func (Math) Sub(ctx context.Context, _ Data, op Operands) (int, error) {
	return op.A - op.B, nil
}

func (Math) Div(ctx context.Context, _ Data, op Operands) (int, error) {
	if op.B == 0 {
		return 0, message.InvalidParams(nil, errDivideByZero)
	}
	return op.A / op.B, nil
}

// Services returns the demo services in dispatch order.
func Services() ([]server.Service[Data], error) {
	math, err := server.NewMethodService[Data]("math", Math{})
	if err != nil {
		return nil, err
	}
	return []server.Service[Data]{Hello, Echo, math}, nil
}
