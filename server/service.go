package server

import (
	"context"

	"jsonrpc-router/message"
)

// Service maybe handles a request.
//
// Handle returns a non-nil response when the service claims the method and resolved
// the call, (nil, nil) when the method is not its own, and an error when it claimed the
// method but failed. The service correlates the response ID with the request, normally
// by building it with message.NewResponse.
//
// Services are invoked from concurrent dispatches and must not mutate data.
type Service[T any] interface {
	Handle(ctx context.Context, req *message.Request, data T) (*message.Response, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc[T any] func(ctx context.Context, req *message.Request, data T) (*message.Response, error)

func (f ServiceFunc[T]) Handle(ctx context.Context, req *message.Request, data T) (*message.Response, error) {
	return f(ctx, req, data)
}
