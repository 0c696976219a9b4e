package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"jsonrpc-router/message"
)

// RateLimit refuses requests beyond r per second with bursts of up to burst, using a
// token bucket shared by every request passing through the returned middleware.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (*message.Response, error) {
			if !limiter.Allow() {
				return nil, message.ServerError(req.ID, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
