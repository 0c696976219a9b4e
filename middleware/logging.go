package middleware

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"jsonrpc-router/message"
)

// Logging records the method, duration and outcome of every dispatch.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.Duration("duration", time.Since(start)),
				zap.Bool("notification", req.IsNotification()),
			}
			if req.ID != nil {
				fields = append(fields, zap.Stringer("id", req.ID))
			}

			switch {
			case err != nil:
				var rpcErr *message.Error
				if errors.As(err, &rpcErr) {
					fields = append(fields, zap.Int("code", rpcErr.Code))
				}
				logger.Warn("rpc failed", append(fields, zap.Error(err))...)
			case resp != nil && resp.Error != nil:
				logger.Info("rpc error response", append(fields,
					zap.Int("code", resp.Error.Code),
					zap.String("error", resp.Error.Message))...)
			default:
				logger.Debug("rpc served", fields...)
			}
			return resp, err
		}
	}
}
