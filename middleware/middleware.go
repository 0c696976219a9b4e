// Package middleware wraps request dispatch with cross-cutting behaviour.
//
// Middlewares compose in onion order:
//
//	Chain(A, B, C)(handler) → A(B(C(handler)))
//	A.before → B.before → C.before → handler → C.after → B.after → A.after
//
// A HandlerFunc returns either a response or an error. Errors are turned into
// correlated error responses by the server, so middlewares refuse a request by
// returning a *message.Error rather than building a response themselves.
package middleware

import (
	"context"

	"jsonrpc-router/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) (*message.Response, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines several middlewares into one. The first middleware is the outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
