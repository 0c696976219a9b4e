package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"jsonrpc-router/message"
)

// Recover turns a panicking service into an internal error response.
func Recover(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (resp *message.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("rpc panic", zap.String("method", req.Method), zap.Any("panic", r), zap.Stack("stack"))
					resp, err = nil, message.Internal(req.ID, fmt.Errorf("panic: %v", r))
				}
			}()
			return next(ctx, req)
		}
	}
}
