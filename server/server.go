// Package server implements first-match-wins dispatch of JSON-RPC requests over an
// ordered list of services.
//
// Dispatch pipeline:
//
//	Serve(ctx, req, data)
//	  → Dispatch: middleware chain → handle
//	      handle: service[0] → service[1] → ... (first response or error wins)
//	              no service claims the method → MethodNotFound response
//	  → errors become correlated error responses (message.ErrorResponse)
//	  → notification rule: reply iff response.Error != nil || response.ID != nil
//
// The service list is fixed at construction, so a Server is safe for concurrent use
// without locks. Services of one dispatch run strictly one after another.
package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"jsonrpc-router/message"
	"jsonrpc-router/middleware"
)

var errNoResponse = errors.New("middleware returned no response")

type options struct {
	logger      *zap.Logger
	middlewares []middleware.Middleware
}

// Option configures a Server.
type Option func(*options)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMiddleware appends middlewares around dispatch. They run in the order given.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// Server routes each request to the first service that claims it.
// T is the type of the caller-owned value shared by every service of one dispatch.
type Server[T any] struct {
	services []Service[T]          // Tried in registration order
	chain    middleware.Middleware // Built once in New
	logger   *zap.Logger
}

// New creates a server owning a copy of services. Several services may claim the same
// method; only the earliest registered one is ever reached for it.
func New[T any](services []Service[T], opts ...Option) *Server[T] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	svcs := make([]Service[T], len(services))
	copy(svcs, services)

	return &Server[T]{
		services: svcs,
		chain:    middleware.Chain(o.middlewares...),
		logger:   o.logger,
	}
}

// handle calls services in order and returns the first response. A service error stops
// the scan and is returned as is. If no service matches, the result is a
// MethodNotFound error response.
func (s *Server[T]) handle(ctx context.Context, req *message.Request, data T) (*message.Response, error) {
	for _, svc := range s.services {
		resp, err := svc.Handle(ctx, req, data)
		if err != nil {
			return nil, err
		}
		if resp != nil {
			return resp, nil
		}
	}

	s.logger.Debug("method not found", zap.String("method", req.Method))
	return message.MethodNotFound(req.Method, req.ID).Response(), nil
}

// Dispatch runs the request through the middleware chain and the services and always
// returns a response. Errors are converted with message.ErrorResponse.
func (s *Server[T]) Dispatch(ctx context.Context, req *message.Request, data T) *message.Response {
	handler := s.chain(func(ctx context.Context, req *message.Request) (*message.Response, error) {
		return s.handle(ctx, req, data)
	})

	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Debug("dispatch failed", zap.String("method", req.Method), zap.Error(err))
		return message.ErrorResponse(req.ID, err)
	}
	if resp == nil {
		return message.Internal(req.ID, errNoResponse).Response()
	}
	return resp
}

// Serve dispatches req and applies the notification rule. It returns nil only when the
// request had no ID and was handled successfully; an error response is returned even for
// a notification.
func (s *Server[T]) Serve(ctx context.Context, req *message.Request, data T) *message.Response {
	resp := s.Dispatch(ctx, req, data)
	if resp.Error != nil || resp.ID != nil {
		return resp
	}
	return nil
}

// Bind fixes the shared value of every dispatch, returning a handler a transport can
// call without knowing T.
func (s *Server[T]) Bind(data T) func(ctx context.Context, req *message.Request) *message.Response {
	return func(ctx context.Context, req *message.Request) *message.Response {
		return s.Serve(ctx, req, data)
	}
}
